package ingest

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/lenstree/internal/lens"
	"github.com/agentic-research/lenstree/internal/tree"
)

// Error kinds recorded as the value of a file's metadata error node.
const (
	KindParseFailed = "parse_failed"
	KindLoadMxfm    = "mxfm_load"
	KindNoLens      = "no_lens"
	KindSaveMxfm    = "mxfm_save"
	KindPutFailed   = "put_failed"
	KindReadFailed  = "read_failed"
	KindWriteFailed = "write_failed"
)

// Labels splits an absolute file path into tree labels.
func Labels(file string) []string {
	var out []string
	for _, s := range strings.Split(file, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FilePath is the inverse of Labels.
func FilePath(labels []string) string { return "/" + strings.Join(labels, "/") }

// ContentNode returns the /files node mirroring file, or -1.
func ContentNode(t *tree.Tree, file string) int {
	return t.Lookup(t.Root(), append([]string{"files"}, Labels(file)...)...)
}

// MetaNode returns the /augeas/files node for file, creating it.
func MetaNode(t *tree.Tree, file string) int {
	return t.Ensure(t.Root(), append([]string{"augeas", "files"}, Labels(file)...)...)
}

// LookupMeta returns the /augeas/files node for file, or -1.
func LookupMeta(t *tree.Tree, file string) int {
	return t.Lookup(t.Root(), append([]string{"augeas", "files"}, Labels(file)...)...)
}

// FormatTime renders a timestamp for the mtime node. The zero time is "0".
func FormatTime(ts time.Time) string {
	if ts.IsZero() {
		return "0"
	}
	return strconv.FormatInt(ts.UnixNano(), 10)
}

func setChild(t *tree.Tree, parent int, label, value string) {
	c := t.Child(parent, label)
	if c < 0 {
		c = t.Append(parent, label)
	}
	t.SetValue(c, value)
}

// SetMeta records where file lives, which lens manages it and when it was
// last read or written, and drops any stale error.
func SetMeta(t *tree.Tree, file, lensName string, mtime time.Time) {
	m := MetaNode(t, file)
	setChild(t, m, "path", "/files"+file)
	setChild(t, m, "mtime", FormatTime(mtime))
	if lensName != "" {
		setChild(t, m, "lens", lensName)
	}
	ClearError(t, file)
}

// RecordError replaces the error node of file with one of the given kind.
// Parse and put errors get their location as extra children.
func RecordError(t *tree.Tree, file, kind string, err error) {
	m := MetaNode(t, file)
	setChild(t, m, "path", "/files"+file)
	if e := t.Child(m, "error"); e >= 0 {
		t.Delete(e)
	}
	e := t.Append(m, "error")
	t.SetValue(e, kind)
	if err == nil {
		return
	}
	var pe *lens.ParseError
	var ue *lens.PutError
	switch {
	case errors.As(err, &pe):
		setChild(t, e, "pos", strconv.Itoa(pe.Pos))
		setChild(t, e, "line", strconv.Itoa(pe.Line))
		setChild(t, e, "char", strconv.Itoa(pe.Col))
		setChild(t, e, "lens", pe.Lens)
		setChild(t, e, "message", pe.Msg)
	case errors.As(err, &ue):
		setChild(t, e, "lens", ue.Lens)
		if ue.Path != "" {
			setChild(t, e, "path", ue.Path)
		}
		setChild(t, e, "message", ue.Msg)
	default:
		setChild(t, e, "message", err.Error())
	}
}

// ClearError drops the error node of file, if any.
func ClearError(t *tree.Tree, file string) {
	m := LookupMeta(t, file)
	if m < 0 {
		return
	}
	if e := t.Child(m, "error"); e >= 0 {
		t.Delete(e)
	}
}

// RemoveMeta deletes the metadata of file and prunes directory nodes left
// without children, stopping at /augeas/files.
func RemoveMeta(t *tree.Tree, file string) {
	m := LookupMeta(t, file)
	if m < 0 {
		return
	}
	top := t.Lookup(t.Root(), "augeas", "files")
	p := t.Parent(m)
	t.Delete(m)
	for p != top && p >= 0 && len(t.Children(p)) == 0 {
		next := t.Parent(p)
		t.Delete(p)
		p = next
	}
}
