package session

import (
	"bufio"
	"io"
	"strconv"
)

// Print writes every node selected by expr and its subtree, one
// `path = "value"` line per node in document order. Hidden nodes are left
// out. An empty expr prints the whole tree.
func (s *Session) Print(w io.Writer, expr string) error {
	if err := s.check("print"); err != nil {
		return err
	}
	if expr == "" {
		expr = "/*"
	}
	t := s.tree
	nodes, err := t.Match(s.base(), expr)
	if err != nil {
		return s.fail("print", err)
	}
	bw := bufio.NewWriter(w)
	for _, n := range nodes {
		t.Walk(n, func(c int) bool {
			if t.Hidden(c) {
				return false
			}
			_, _ = bw.WriteString(t.PathOf(c))
			if v, ok := t.Value(c); ok {
				_, _ = bw.WriteString(" = ")
				_, _ = bw.WriteString(strconv.Quote(v))
			}
			_ = bw.WriteByte('\n')
			return true
		})
	}
	return s.fail("print", bw.Flush())
}

// Snapshot returns the subtrees selected by expr as plain maps and slices,
// ready for JSON encoding. Each top-level entry carries its path.
func (s *Session) Snapshot(expr string) ([]any, error) {
	if err := s.check("dump"); err != nil {
		return nil, err
	}
	if expr == "" {
		expr = "/*"
	}
	t := s.tree
	nodes, err := t.Match(s.base(), expr)
	if err != nil {
		return nil, s.fail("dump", err)
	}
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		m := s.snapshot(n)
		m["path"] = t.PathOf(n)
		out = append(out, m)
	}
	return out, s.fail("dump", nil)
}

func (s *Session) snapshot(n int) map[string]any {
	t := s.tree
	m := map[string]any{"label": t.Label(n)}
	if v, ok := t.Value(n); ok {
		m["value"] = v
	}
	var kids []any
	for _, c := range t.Children(n) {
		if !t.Hidden(c) {
			kids = append(kids, s.snapshot(c))
		}
	}
	if len(kids) > 0 {
		m["children"] = kids
	}
	return m
}
