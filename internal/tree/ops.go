package tree

import (
	"fmt"

	"github.com/agentic-research/lenstree/internal/pathx"
)

// Match evaluates expr and returns the selected nodes in document order.
// Relative expressions are evaluated from ctx.
func (t *Tree) Match(ctx int, expr string) ([]int, error) {
	p, err := pathx.Compile(expr)
	if err != nil {
		return nil, err
	}
	return p.Eval(t, ctx), nil
}

// Get returns the value of the single node selected by expr. found is
// false when nothing matches; a matched node without a value yields a nil
// value with found true.
func (t *Tree) Get(ctx int, expr string) (value *string, found bool, err error) {
	n, err := t.single(ctx, expr)
	if err != nil || n < 0 {
		return nil, false, err
	}
	if v, ok := t.Value(n); ok {
		return &v, true, nil
	}
	return nil, true, nil
}

// Exists reports whether expr selects exactly one node.
func (t *Tree) Exists(ctx int, expr string) (bool, error) {
	n, err := t.single(ctx, expr)
	return n >= 0, err
}

// single returns the one node selected by expr, -1 when none is, and an
// AmbiguousPathError when several are.
func (t *Tree) single(ctx int, expr string) (int, error) {
	nodes, err := t.Match(ctx, expr)
	if err != nil {
		return -1, err
	}
	switch len(nodes) {
	case 0:
		return -1, nil
	case 1:
		return nodes[0], nil
	default:
		return -1, &AmbiguousPathError{Expr: expr, Count: len(nodes)}
	}
}

// Set assigns value to the node selected by expr, creating it and any
// missing ancestors when nothing matches.
func (t *Tree) Set(ctx int, expr string, value string) error {
	return t.assign(ctx, expr, &value)
}

// Clear removes the value of the node selected by expr, creating the node
// when nothing matches.
func (t *Tree) Clear(ctx int, expr string) error {
	return t.assign(ctx, expr, nil)
}

func (t *Tree) assign(ctx int, expr string, value *string) error {
	n, err := t.resolveOrCreate(ctx, expr)
	if err != nil {
		return err
	}
	old, had := t.Value(n)
	switch {
	case value == nil && !had:
		return nil
	case value != nil && had && old == *value:
		return nil
	case value == nil:
		t.ClearValue(n)
	default:
		t.SetValue(n, *value)
	}
	t.MarkDirty(n)
	return nil
}

// resolveOrCreate returns the single node selected by expr. When nothing
// matches, the longest prefix of the path that selects exactly one node is
// extended with new nodes for the remaining steps.
func (t *Tree) resolveOrCreate(ctx int, expr string) (int, error) {
	p, err := pathx.Compile(expr)
	if err != nil {
		return -1, err
	}
	nodes := p.Eval(t, ctx)
	switch len(nodes) {
	case 1:
		if t.isProtected(nodes[0]) {
			return -1, fmt.Errorf("%w: %s", ErrReadOnly, expr)
		}
		return nodes[0], nil
	case 0:
	default:
		return -1, &AmbiguousPathError{Expr: expr, Count: len(nodes)}
	}

	steps := p.Len()
	if steps <= 0 {
		return -1, fmt.Errorf("%w: cannot create nodes for %q", ErrNoMatch, expr)
	}
	base, k := -1, steps-1
	for ; k >= 0; k-- {
		prefix := p.EvalPrefix(t, ctx, k)
		if len(prefix) > 1 {
			return -1, &AmbiguousPathError{Expr: expr, Count: len(prefix)}
		}
		if len(prefix) == 1 {
			base = prefix[0]
			break
		}
	}
	if base < 0 {
		return -1, fmt.Errorf("%w: %s", ErrNoMatch, expr)
	}
	if t.isProtected(base) {
		return -1, fmt.Errorf("%w: %s", ErrReadOnly, expr)
	}

	// Validate every remaining step before touching the tree so a failed
	// creation leaves no partial chain behind.
	plan := make([]pathx.Creation, 0, steps-k)
	for i := k; i < steps; i++ {
		c, err := p.CreationStep(i)
		if err != nil {
			return -1, err
		}
		if c.Label == "" {
			return -1, fmt.Errorf("%w: empty label in %q", ErrBadLabel, expr)
		}
		plan = append(plan, c)
	}
	if first := plan[0]; first.Position > 0 {
		if have := t.countLabel(base, first.Label); first.Position != have+1 {
			return -1, fmt.Errorf("%w: %s has %d %q children, cannot create position %d",
				ErrNoMatch, pathx.PathOf(t, base), have, first.Label, first.Position)
		}
	}
	for i, c := range plan {
		if i > 0 && c.Position > 1 {
			return -1, fmt.Errorf("%w: cannot create position %d of new node %q", ErrNoMatch, c.Position, c.Label)
		}
	}

	cur := base
	for _, c := range plan {
		cur = t.placeChild(cur, c.Label)
	}
	return cur, nil
}

// placeChild creates a child right after the last sibling with the same
// label, or at the end when there is none.
func (t *Tree) placeChild(parent int, label string) int {
	ch := t.nodes[parent].children
	for i := len(ch) - 1; i >= 0; i-- {
		if t.nodes[ch[i]].label == label {
			return t.InsertAt(parent, i+1, label)
		}
	}
	return t.Append(parent, label)
}

func (t *Tree) countLabel(parent int, label string) int {
	n := 0
	for _, c := range t.nodes[parent].children {
		if t.nodes[c].label == label {
			n++
		}
	}
	return n
}

// Remove deletes every node selected by expr together with its subtree
// and returns the total number of nodes removed.
func (t *Tree) Remove(ctx int, expr string) (int, error) {
	nodes, err := t.Match(ctx, expr)
	if err != nil {
		return 0, err
	}
	for _, n := range nodes {
		if n == t.Root() || t.isProtected(n) {
			return 0, fmt.Errorf("%w: %s", ErrReadOnly, pathx.PathOf(t, n))
		}
	}
	count := 0
	for _, n := range nodes {
		// an earlier match may have been an ancestor of this one
		if !t.Valid(n) {
			continue
		}
		p := t.Parent(n)
		count += t.Delete(n)
		t.MarkDirty(p)
	}
	return count, nil
}

// Insert adds a sibling labeled label before or after the single node
// selected by expr.
func (t *Tree) Insert(ctx int, expr, label string, before bool) error {
	if label == "" {
		return fmt.Errorf("%w: empty label", ErrBadLabel)
	}
	n, err := t.single(ctx, expr)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: %s", ErrNoMatch, expr)
	}
	if n == t.Root() {
		return fmt.Errorf("%w: cannot insert next to the root", ErrReadOnly)
	}
	p := t.Parent(n)
	if t.isProtected(p) {
		return fmt.Errorf("%w: %s", ErrReadOnly, expr)
	}
	idx := 0
	for i, c := range t.nodes[p].children {
		if c == n {
			idx = i
			break
		}
	}
	if !before {
		idx++
	}
	t.MarkDirty(t.InsertAt(p, idx, label))
	return nil
}

// Move transplants the subtree selected by src onto the node selected by
// dst, creating dst when needed. The destination keeps its own label.
func (t *Tree) Move(ctx int, src, dst string) error {
	s, err := t.single(ctx, src)
	if err != nil {
		return err
	}
	if s < 0 {
		return fmt.Errorf("%w: %s", ErrNoMatch, src)
	}
	if s == t.Root() || t.isProtected(s) {
		return fmt.Errorf("%w: %s", ErrReadOnly, src)
	}
	d, err := t.resolveOrCreate(ctx, dst)
	if err != nil {
		return err
	}
	if t.IsAncestor(s, d) {
		return fmt.Errorf("cannot move %s into its own subtree %s", src, dst)
	}
	// Detach src before clearing dst: dst may be one of its ancestors.
	v, hasValue := t.Value(s)
	moved := t.nodes[s].children
	t.nodes[s].children = nil
	sp := t.Parent(s)
	t.Delete(s)
	spLive := sp == d || !t.IsAncestor(d, sp)

	t.DeleteChildren(d)
	if hasValue {
		t.SetValue(d, v)
	} else {
		t.ClearValue(d)
	}
	for _, c := range moved {
		t.nodes[c].parent = d
	}
	t.nodes[d].children = moved
	if spLive {
		t.MarkDirty(sp)
	}
	t.MarkDirty(d)
	return nil
}

// PathOf renders the canonical path expression for n.
func (t *Tree) PathOf(n int) string { return pathx.PathOf(t, n) }

var _ pathx.Navigator = (*Tree)(nil)
