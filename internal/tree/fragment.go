package tree

import "github.com/agentic-research/lenstree/internal/lens"

// Graft copies the children of frag below parent, after any existing
// children. The label and value of frag itself are ignored.
func (t *Tree) Graft(parent int, frag *lens.Tree) {
	for _, c := range frag.Children {
		n := t.Append(parent, c.Label)
		if c.Value != nil {
			t.SetValue(n, *c.Value)
		}
		t.Graft(n, c)
	}
}

// Extract returns a detached copy of n and its subtree.
func (t *Tree) Extract(n int) *lens.Tree {
	out := &lens.Tree{Label: t.Label(n)}
	if v, ok := t.Value(n); ok {
		out.Value = &v
	}
	if ch := t.Children(n); len(ch) > 0 {
		out.Children = make([]*lens.Tree, 0, len(ch))
		for _, c := range ch {
			out.Children = append(out.Children, t.Extract(c))
		}
	}
	return out
}
