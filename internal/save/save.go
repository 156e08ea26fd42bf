// Package save writes edited trees back to their files. Every dirty file
// runs through resolve, apply and write on its own; a failure is recorded
// in the file's metadata and never stops the remaining files.
package save

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"

	"github.com/agentic-research/lenstree/internal/ingest"
	"github.com/agentic-research/lenstree/internal/lens"
	"github.com/agentic-research/lenstree/internal/transform"
	"github.com/agentic-research/lenstree/internal/tree"
	"github.com/agentic-research/lenstree/internal/writeback"
)

// Mode selects what a save does with regenerated text.
type Mode string

const (
	ModeOverwrite Mode = "overwrite"
	ModeBackup    Mode = "backup"
	ModeNewFile   Mode = "newfile"
	ModeNoop      Mode = "noop"
)

// ParseMode accepts the names above; the empty string is ModeOverwrite.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.TrimSpace(s)); m {
	case "":
		return ModeOverwrite, nil
	case ModeOverwrite, ModeBackup, ModeNewFile, ModeNoop:
		return m, nil
	default:
		return "", fmt.Errorf("unknown save mode %q", s)
	}
}

// Suffixes of the side files written by backup and newfile modes.
const (
	BackupSuffix  = ".augsave"
	NewFileSuffix = ".augnew"
)

// State is where a file stands in the save pipeline.
type State uint8

const (
	Clean State = iota
	Dirty
	Resolving
	Applying
	Writing
	Committed
	NoOp
	Deleted
	Pending
	Failed
)

var stateNames = [...]string{
	Clean:     "clean",
	Dirty:     "dirty",
	Resolving: "resolving",
	Applying:  "applying",
	Writing:   "writing",
	Committed: "committed",
	NoOp:      "noop",
	Deleted:   "deleted",
	Pending:   "pending",
	Failed:    "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// Outcome is the final state of one file.
type Outcome struct {
	File  string
	State State
	// Kind is the metadata error kind when State is Failed.
	Kind string
	Err  error
}

// Report collects the outcome of every file a save looked at.
type Report struct {
	Outcomes []Outcome
}

// Failed reports whether any file ended in the Failed state.
func (r *Report) Failed() bool {
	for _, o := range r.Outcomes {
		if o.State == Failed {
			return true
		}
	}
	return false
}

// Err returns the error of the first failed file, or nil.
func (r *Report) Err() error {
	for _, o := range r.Outcomes {
		if o.State == Failed {
			return o.Err
		}
	}
	return nil
}

// Changed reports whether any file on disk was written or deleted.
func (r *Report) Changed() bool {
	for _, o := range r.Outcomes {
		if o.State == Committed || o.State == Deleted {
			return true
		}
	}
	return false
}

// Saved lists the files that were written or deleted, or would have been
// in noop mode.
func (r *Report) Saved() []string {
	var out []string
	for _, o := range r.Outcomes {
		switch o.State {
		case Committed, Deleted, Pending:
			out = append(out, o.File)
		}
	}
	return out
}

// Recorder receives every outcome of a save.
type Recorder interface {
	Record(ctx context.Context, at time.Time, o Outcome) error
}

// Coordinator saves the /files namespace of Tree. Registry must reflect
// the current /augeas/load declarations.
type Coordinator struct {
	FS       billy.Filesystem
	Tree     *tree.Tree
	Registry *transform.Registry
	Catalog  *ingest.Catalog
	Mode     Mode
	Now      func() time.Time
	Logger   *slog.Logger
	Journal  Recorder
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

func (c *Coordinator) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Save processes every dirty or deleted file and returns what happened to
// each. It only returns an error when ctx is cancelled between files.
func (c *Coordinator) Save(ctx context.Context) (*Report, error) {
	if c.Mode == "" {
		c.Mode = ModeOverwrite
	}
	rep := &Report{}
	for _, file := range c.dirtyFiles() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Outcomes = append(rep.Outcomes, c.saveFile(file))
	}
	for _, file := range c.deletedFiles() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Outcomes = append(rep.Outcomes, c.deleteFile(file))
	}
	c.settle(rep)
	c.recordEvents(rep)
	c.journal(ctx, rep)
	return rep, nil
}

// settle clears the dirty flags below /files except on files that failed
// or are still waiting to be written, and on their ancestors.
func (c *Coordinator) settle(rep *Report) {
	t := c.Tree
	keep := make(map[int]bool)
	for _, o := range rep.Outcomes {
		if o.State != Failed && o.State != Pending {
			continue
		}
		if n := ingest.ContentNode(t, o.File); n >= 0 {
			keep[n] = true
		}
	}
	var walk func(n int) bool
	walk = func(n int) bool {
		if !t.IsDirty(n) {
			return false
		}
		if keep[n] {
			return true
		}
		dirty := false
		for _, ch := range t.Children(n) {
			if walk(ch) {
				dirty = true
			}
		}
		if !dirty {
			t.ClearDirty(n)
		}
		return dirty
	}
	if root := t.Lookup(t.Root(), "files"); root >= 0 {
		walk(root)
	}
}

// dirtyFiles walks the dirty part of /files and returns the paths of the
// files it contains. A node is a file when it is already managed or some
// transform claims its path; a dirty value outside any file is reported as
// a file of its own so that it fails instead of being dropped.
func (c *Coordinator) dirtyFiles() []string {
	t := c.Tree
	root := t.Lookup(t.Root(), "files")
	if root < 0 || !t.IsDirty(root) {
		return nil
	}
	var out []string
	var labels []string
	var walk func(n int)
	walk = func(n int) {
		for _, ch := range t.Children(n) {
			if !t.IsDirty(ch) || t.Hidden(ch) {
				continue
			}
			labels = append(labels, t.Label(ch))
			file := ingest.FilePath(labels)
			_, managed := c.Catalog.Get(file)
			_, hasValue := t.Value(ch)
			switch {
			case managed || len(c.Registry.Resolve(file)) > 0:
				out = append(out, file)
			case hasValue:
				out = append(out, file)
			default:
				walk(ch)
			}
			labels = labels[:len(labels)-1]
		}
	}
	walk(root)
	return out
}

// deletedFiles returns managed files whose /files node is gone.
func (c *Coordinator) deletedFiles() []string {
	var out []string
	for _, p := range c.Catalog.Paths() {
		if ingest.ContentNode(c.Tree, p) < 0 {
			out = append(out, p)
		}
	}
	return out
}

func (c *Coordinator) fail(file, kind string, err error) Outcome {
	ingest.RecordError(c.Tree, file, kind, err)
	c.logger().Warn("save failed", "path", file, "kind", kind, "err", err)
	return Outcome{File: file, State: Failed, Kind: kind, Err: err}
}

func (c *Coordinator) saveFile(file string) Outcome {
	t := c.Tree
	log := c.logger().With("path", file)
	n := ingest.ContentNode(t, file)

	log.Debug("save", "state", Resolving)
	tr, err := c.Registry.Lookup(file)
	if err != nil {
		var mx *transform.MultipleTransformError
		if errors.As(err, &mx) {
			return c.fail(file, ingest.KindSaveMxfm, err)
		}
		return c.fail(file, ingest.KindNoLens, err)
	}

	log.Debug("save", "state", Applying, "lens", tr.LensName)
	prev, managed := c.Catalog.Get(file)
	frag := t.Extract(n)
	var text string
	if managed && prev.Lens == tr.LensName && prev.Skeleton != nil {
		text, err = lens.Put(tr.Lens, frag, prev.Skeleton)
	} else {
		text, err = lens.Create(tr.Lens, frag)
	}
	if err != nil {
		return c.fail(file, ingest.KindPutFailed, err)
	}

	if managed && text == prev.Text {
		ingest.ClearError(t, file)
		log.Debug("save", "state", NoOp)
		return Outcome{File: file, State: NoOp}
	}
	if c.Mode == ModeNoop {
		log.Debug("save", "state", Pending)
		return Outcome{File: file, State: Pending}
	}

	log.Debug("save", "state", Writing, "mode", c.Mode)
	if err := c.write(file, text, managed); err != nil {
		return c.fail(file, ingest.KindWriteFailed, err)
	}

	ingest.SetMeta(t, file, tr.LensName, c.now())
	if c.Mode != ModeNewFile {
		c.refresh(file, n, tr, text)
	}
	log.Info("file saved", "lens", tr.LensName)
	return Outcome{File: file, State: Committed}
}

func (c *Coordinator) write(file, text string, exists bool) error {
	switch c.Mode {
	case ModeNewFile:
		return writeback.WriteFile(c.FS, file+NewFileSuffix, []byte(text), 0o644)
	case ModeBackup:
		if exists {
			if err := writeback.Copy(c.FS, file, file+BackupSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
	}
	return writeback.WriteFile(c.FS, file, []byte(text), 0o644)
}

// refresh makes the catalog describe the text just written. When the
// written text parses back to a different tree, as happens when numbered
// records get renumbered, the content node is replaced by the reparsed
// tree so that the next save starts from what is on disk.
func (c *Coordinator) refresh(file string, n int, tr *transform.Transform, text string) {
	frag, skel, err := lens.Get(tr.Lens, text)
	if err != nil {
		// Put produced text its own lens rejects. Keep the old skeleton
		// out of the way so the next save creates fresh layout.
		c.logger().Warn("saved text does not parse back", "path", file, "err", err)
		c.Catalog.Put(&ingest.File{Path: file, Transform: tr.Name, Lens: tr.LensName, Text: text})
		return
	}
	if !sameChildren(c.Tree.Extract(n), frag) {
		c.Tree.DeleteChildren(n)
		c.Tree.Graft(n, frag)
	}
	c.Catalog.Put(&ingest.File{
		Path:      file,
		Transform: tr.Name,
		Lens:      tr.LensName,
		Text:      text,
		Skeleton:  skel,
	})
}

func sameChildren(a, b *lens.Tree) bool {
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		x, y := a.Children[i], b.Children[i]
		if x.Label != y.Label || (x.Value == nil) != (y.Value == nil) {
			return false
		}
		if x.Value != nil && *x.Value != *y.Value {
			return false
		}
		if !sameChildren(x, y) {
			return false
		}
	}
	return true
}

func (c *Coordinator) deleteFile(file string) Outcome {
	log := c.logger().With("path", file)
	// newfile mode never touches the original, so there is nothing to
	// write for a deletion.
	if c.Mode == ModeNoop || c.Mode == ModeNewFile {
		log.Debug("delete", "state", Pending)
		return Outcome{File: file, State: Pending}
	}
	if c.Mode == ModeBackup {
		if err := writeback.Copy(c.FS, file, file+BackupSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return c.fail(file, ingest.KindWriteFailed, err)
		}
	}
	if err := writeback.Remove(c.FS, file); err != nil {
		return c.fail(file, ingest.KindWriteFailed, err)
	}
	ingest.RemoveMeta(c.Tree, file)
	c.Catalog.Delete(file)
	log.Info("file deleted")
	return Outcome{File: file, State: Deleted}
}

// recordEvents lists the saved files as /augeas/events/saved nodes.
func (c *Coordinator) recordEvents(rep *Report) {
	t := c.Tree
	events := t.Ensure(t.Root(), "augeas", "events")
	for _, ch := range append([]int(nil), t.Children(events)...) {
		if t.Label(ch) == "saved" {
			t.Delete(ch)
		}
	}
	for _, file := range rep.Saved() {
		t.SetValue(t.Append(events, "saved"), "/files"+file)
	}
}

func (c *Coordinator) journal(ctx context.Context, rep *Report) {
	if c.Journal == nil {
		return
	}
	at := c.now()
	for _, o := range rep.Outcomes {
		if err := c.Journal.Record(ctx, at, o); err != nil {
			c.logger().Warn("journal write failed", "path", o.File, "err", err)
		}
	}
}
