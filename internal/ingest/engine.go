// Package ingest loads managed files into the tree: every file claimed by
// a transform is parsed with its lens and mirrored below /files, with its
// provenance recorded below /augeas/files.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/agentic-research/lenstree/internal/lens"
	"github.com/agentic-research/lenstree/internal/transform"
	"github.com/agentic-research/lenstree/internal/tree"
)

// Engine drives one load of the managed files.
type Engine struct {
	FS       billy.Filesystem
	Tree     *tree.Tree
	Registry *transform.Registry
	Logger   *slog.Logger
}

func NewEngine(fs billy.Filesystem, t *tree.Tree, r *transform.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{FS: fs, Tree: t, Registry: r, Logger: logger}
}

// Stats summarizes a load.
type Stats struct {
	Loaded int
	Failed int
}

// Load discards /files and /augeas/files and rebuilds both from disk. A
// file that cannot be parsed or is claimed by several transforms is left
// out of /files and gets an error node; the load itself only fails on
// cancellation or when a directory cannot be listed.
func (e *Engine) Load(ctx context.Context) (*Catalog, Stats, error) {
	t := e.Tree
	files := t.Ensure(t.Root(), "files")
	t.DeleteChildren(files)
	t.DeleteChildren(t.Ensure(t.Root(), "augeas", "files"))

	paths, err := e.enumerate()
	if err != nil {
		return nil, Stats{}, err
	}

	cat := NewCatalog()
	var st Stats
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, st, err
		}
		if e.loadFile(p, cat) {
			st.Loaded++
		} else {
			st.Failed++
		}
	}
	t.ClearDirty(t.Root())
	e.Logger.Debug("load finished", "loaded", st.Loaded, "failed", st.Failed)
	return cat, st, nil
}

// enumerate expands the include globs of every transform and returns the
// regular files that at least one transform claims, sorted.
func (e *Engine) enumerate() ([]string, error) {
	seen := make(map[string]bool)
	for _, tr := range e.Registry.Transforms() {
		for _, pattern := range tr.Incl {
			if !strings.HasPrefix(pattern, "/") {
				pattern = "/" + pattern
			}
			matches, err := util.Glob(e.FS, pattern)
			if err != nil {
				return nil, fmt.Errorf("expand %s for %s: %w", pattern, tr.Name, err)
			}
			for _, m := range matches {
				if seen[m] || !tr.Matches(m) {
					continue
				}
				info, err := e.FS.Stat(m)
				if err != nil || !info.Mode().IsRegular() {
					continue
				}
				seen[m] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// loadFile parses one file and grafts it below /files. It reports whether
// the file is now managed.
func (e *Engine) loadFile(p string, cat *Catalog) bool {
	t := e.Tree
	tr, err := e.Registry.Lookup(p)
	if err != nil {
		var mx *transform.MultipleTransformError
		var nl *transform.NoLensError
		switch {
		case errors.As(err, &mx):
			RecordError(t, p, KindLoadMxfm, err)
		case errors.As(err, &nl):
			RecordError(t, p, KindNoLens, err)
		default:
			RecordError(t, p, KindLoadMxfm, err)
		}
		e.Logger.Warn("file not loaded", "path", p, "err", err)
		return false
	}

	info, err := e.FS.Stat(p)
	if err != nil {
		RecordError(t, p, KindReadFailed, err)
		e.Logger.Warn("stat failed", "path", p, "err", err)
		return false
	}
	data, err := util.ReadFile(e.FS, p)
	if err != nil {
		RecordError(t, p, KindReadFailed, err)
		e.Logger.Warn("read failed", "path", p, "err", err)
		return false
	}

	text := string(data)
	frag, skel, err := lens.Get(tr.Lens, text)
	if err != nil {
		RecordError(t, p, KindParseFailed, err)
		e.Logger.Warn("parse failed", "path", p, "lens", tr.LensName, "err", err)
		return false
	}

	n := t.Ensure(t.Root(), append([]string{"files"}, Labels(p)...)...)
	t.DeleteChildren(n)
	t.Graft(n, frag)
	SetMeta(t, p, tr.LensName, info.ModTime())
	cat.Put(&File{
		Path:      p,
		Transform: tr.Name,
		Lens:      tr.LensName,
		Text:      text,
		Skeleton:  skel,
	})
	e.Logger.Debug("file loaded", "path", p, "lens", tr.LensName)
	return true
}
