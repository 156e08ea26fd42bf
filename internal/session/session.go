// Package session bundles a tree, its transforms and the loaded files into
// one handle. Every operation of the handle runs on the caller's
// goroutine; a Session must not be used concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/agentic-research/lenstree/api"
	"github.com/agentic-research/lenstree/internal/ingest"
	"github.com/agentic-research/lenstree/internal/lenses"
	"github.com/agentic-research/lenstree/internal/save"
	"github.com/agentic-research/lenstree/internal/transform"
	"github.com/agentic-research/lenstree/internal/tree"
)

// Version is reported at /augeas/version.
const Version = "0.4.0"

// Flags tune Init.
type Flags uint

const (
	// NoStdinc skips the built-in transforms; only the load path counts.
	NoStdinc Flags = 1 << iota
	// NoLoad sets up the tree without reading any file.
	NoLoad
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("session is closed")

// Options configure a session. The zero value manages the host's files
// with the built-in transforms.
type Options struct {
	// Root is the directory the managed paths are relative to. Ignored
	// when FS is set.
	Root string
	FS   billy.Filesystem

	// LoadPath lists directories searched for *.hcl and *.json transform
	// files, resolved on LensFS.
	LoadPath []string
	LensFS   billy.Filesystem

	Flags    Flags
	SaveMode save.Mode

	// Now stamps the mtime of saved files. Defaults to time.Now.
	Now     func() time.Time
	Logger  *slog.Logger
	Journal save.Recorder
}

// Session is an open handle on a tree of managed files.
type Session struct {
	opts   Options
	fs     billy.Filesystem
	tree   *tree.Tree
	cat    *ingest.Catalog
	log    *slog.Logger
	last   error
	closed bool
}

// Init builds the tree for opts and, unless NoLoad is given, loads every
// file the transforms claim. Per-file load failures are recorded under
// /augeas/files and do not fail Init.
func Init(ctx context.Context, opts Options) (*Session, error) {
	if opts.Root == "" {
		opts.Root = "/"
	}
	if opts.SaveMode == "" {
		opts.SaveMode = save.ModeOverwrite
	}
	s := &Session{
		opts: opts,
		fs:   opts.FS,
		tree: tree.New(),
		cat:  ingest.NewCatalog(),
		log:  opts.Logger,
	}
	if s.fs == nil {
		s.fs = osfs.New(opts.Root)
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	decls, err := s.declarations()
	if err != nil {
		return nil, &Error{Code: Syntax, Op: "init", Err: err}
	}
	s.setupTree(decls)

	if opts.Flags&NoLoad == 0 {
		if err := s.Load(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// declarations merges the built-in transforms with those found on the
// load path. A later declaration replaces an earlier one of the same name.
func (s *Session) declarations() ([]api.TransformDecl, error) {
	var decls []api.TransformDecl
	if s.opts.Flags&NoStdinc == 0 {
		decls = lenses.Defaults()
	}
	lensFS := s.opts.LensFS
	if lensFS == nil && len(s.opts.LoadPath) > 0 {
		lensFS = osfs.New("/")
	}
	for _, dir := range s.opts.LoadPath {
		found, err := transform.LoadDir(lensFS, dir)
		if err != nil {
			return nil, err
		}
		for _, d := range found {
			decls = replaceDecl(decls, d)
		}
	}
	return decls, nil
}

func replaceDecl(decls []api.TransformDecl, d api.TransformDecl) []api.TransformDecl {
	for i := range decls {
		if decls[i].Name == d.Name {
			decls[i] = d
			return decls
		}
	}
	return append(decls, d)
}

func (s *Session) setupTree(decls []api.TransformDecl) {
	t := s.tree
	root := t.Root()
	aug := t.Ensure(root, "augeas")
	rootDir := s.opts.Root
	if !strings.HasSuffix(rootDir, "/") {
		rootDir += "/"
	}
	t.SetValue(t.Ensure(aug, "root"), rootDir)
	t.SetValue(t.Ensure(aug, "version"), Version)
	t.SetValue(t.Ensure(aug, "save"), string(s.opts.SaveMode))
	t.SetValue(t.Ensure(aug, "context"), "/files")
	transform.Store(t, t.Ensure(aug, "load"), decls)
	t.Protect(t.Ensure(aug, "files"))
	t.Protect(t.Ensure(aug, "events"))
	t.Ensure(root, "files")
	t.ClearDirty(root)
}

// fail records err as the last error and returns it as an *Error.
func (s *Session) fail(op string, err error) error {
	if err == nil {
		s.last = nil
		return nil
	}
	var se *Error
	if !errors.As(err, &se) {
		se = &Error{Code: Code(err), Op: op, Err: err}
	}
	s.last = se
	return se
}

func (s *Session) check(op string) error {
	if s.closed {
		return &Error{Code: Internal, Op: op, Err: ErrClosed}
	}
	return nil
}

// Err returns the error of the last operation, or nil if it succeeded.
func (s *Session) Err() error { return s.last }

// ErrorCode classifies the error of the last operation.
func (s *Session) ErrorCode() ErrorCode { return Code(s.last) }

// base returns the node relative expressions start from: the single
// node selected by /augeas/context, or the root.
func (s *Session) base() int {
	t := s.tree
	expr, _, err := t.Get(t.Root(), "/augeas/context")
	if err != nil || expr == nil || *expr == "" {
		return t.Root()
	}
	nodes, err := t.Match(t.Root(), *expr)
	if err != nil || len(nodes) != 1 {
		return t.Root()
	}
	return nodes[0]
}

// Match returns the paths of every node expr selects.
func (s *Session) Match(expr string) ([]string, error) {
	if err := s.check("match"); err != nil {
		return nil, err
	}
	nodes, err := s.tree.Match(s.base(), expr)
	if err != nil {
		return nil, s.fail("match", err)
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = s.tree.PathOf(n)
	}
	return out, s.fail("match", nil)
}

// Get returns the value of the single node expr selects. found is false
// when nothing matches. A node that exists without a value gives a nil
// value and found true.
func (s *Session) Get(expr string) (value *string, found bool, err error) {
	if err := s.check("get"); err != nil {
		return nil, false, err
	}
	v, found, err := s.tree.Get(s.base(), expr)
	return v, found, s.fail("get", err)
}

// Set assigns value to the node expr selects, creating it if needed.
func (s *Session) Set(expr, value string) error {
	if err := s.check("set"); err != nil {
		return err
	}
	return s.fail("set", s.tree.Set(s.base(), expr, value))
}

// Clear removes the value of the node expr selects, creating it if needed.
func (s *Session) Clear(expr string) error {
	if err := s.check("clear"); err != nil {
		return err
	}
	return s.fail("clear", s.tree.Clear(s.base(), expr))
}

// Remove deletes every node expr selects and returns how many nodes went,
// subtrees included.
func (s *Session) Remove(expr string) (int, error) {
	if err := s.check("rm"); err != nil {
		return 0, err
	}
	n, err := s.tree.Remove(s.base(), expr)
	return n, s.fail("rm", err)
}

// Insert adds a node labeled label next to the node expr selects.
func (s *Session) Insert(expr, label string, before bool) error {
	if err := s.check("insert"); err != nil {
		return err
	}
	return s.fail("insert", s.tree.Insert(s.base(), expr, label, before))
}

// Move moves the subtree at src to dst.
func (s *Session) Move(src, dst string) error {
	if err := s.check("move"); err != nil {
		return err
	}
	return s.fail("move", s.tree.Move(s.base(), src, dst))
}

// registry rebuilds the transforms from /augeas/load and marks the
// unusable ones.
func (s *Session) registry() *transform.Registry {
	t := s.tree
	load := t.Ensure(t.Root(), "augeas", "load")
	r := transform.New(transform.Decls(t, load), lenses.Lookup)
	transform.MarkErrors(t, load, r)
	return r
}

// Transforms returns the declarations currently under /augeas/load.
func (s *Session) Transforms() []api.TransformDecl {
	t := s.tree
	return transform.Decls(t, t.Ensure(t.Root(), "augeas", "load"))
}

// Load discards /files and reads every managed file again using the
// transforms under /augeas/load.
func (s *Session) Load(ctx context.Context) error {
	if err := s.check("load"); err != nil {
		return err
	}
	cat, st, err := ingest.NewEngine(s.fs, s.tree, s.registry(), s.log).Load(ctx)
	if err != nil {
		return s.fail("load", err)
	}
	s.cat = cat
	s.log.Info("loaded", "files", st.Loaded, "failed", st.Failed)
	return s.fail("load", nil)
}

// Save writes every modified file back. It fails when any file could not
// be saved; the report and /augeas/files tell which and why.
func (s *Session) Save(ctx context.Context) (*save.Report, error) {
	if err := s.check("save"); err != nil {
		return nil, err
	}
	t := s.tree
	var modeValue string
	if v, _, _ := t.Get(t.Root(), "/augeas/save"); v != nil {
		modeValue = *v
	}
	mode, err := save.ParseMode(modeValue)
	if err != nil {
		return nil, s.fail("save", &Error{Code: Internal, Op: "save", Err: err})
	}
	c := &save.Coordinator{
		FS:       s.fs,
		Tree:     t,
		Registry: s.registry(),
		Catalog:  s.cat,
		Mode:     mode,
		Now:      s.opts.Now,
		Logger:   s.log,
		Journal:  s.opts.Journal,
	}
	rep, err := c.Save(ctx)
	if err != nil {
		return rep, s.fail("save", err)
	}
	if rep.Failed() {
		failed := 0
		for _, o := range rep.Outcomes {
			if o.State == save.Failed {
				failed++
			}
		}
		return rep, s.fail("save", &Error{
			Code: Code(rep.Err()),
			Op:   "save",
			Err:  fmt.Errorf("%d of %d files failed: %w", failed, len(rep.Outcomes), rep.Err()),
		})
	}
	return rep, s.fail("save", nil)
}

// Close releases the session. Any later call fails with ErrClosed.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.tree = nil
	s.cat = nil
	return nil
}
