package tree

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

var (
	ErrNoMatch  = errors.New("path matches no node")
	ErrReadOnly = errors.New("path is read-only")
	ErrBadLabel = errors.New("invalid label")
)

// AmbiguousPathError is returned when an operation that needs exactly one
// node is given a path matching several.
type AmbiguousPathError struct {
	Expr  string
	Count int
}

func (e *AmbiguousPathError) Error() string {
	return fmt.Sprintf("path %q matches %d nodes, expected one", e.Expr, e.Count)
}

// node is an arena slot. Parent is an index, never a pointer, so the tree
// owns every node exactly once.
type node struct {
	label    string
	value    string
	hasValue bool
	parent   int
	children []int
	live     bool
}

// Tree is an ordered, labeled tree stored in an arena. Handles returned by
// its methods stay valid until the node is deleted; freed slots are reused.
//
// A node with an empty label is hidden: it carries layout for a lens but is
// never selected by a path expression.
type Tree struct {
	nodes []node
	free  []int

	// Dirty node handles. A mutation marks the touched node and all of
	// its ancestors, so a clean node has a clean subtree.
	dirty *roaring.Bitmap

	// Roots of subtrees that path-level mutations must not touch.
	protected *roaring.Bitmap
}

// New returns a tree holding only the root.
func New() *Tree {
	t := &Tree{
		dirty:     roaring.New(),
		protected: roaring.New(),
	}
	t.nodes = append(t.nodes, node{parent: -1, live: true})
	return t
}

func (t *Tree) Root() int { return 0 }

// Valid reports whether n refers to a live node.
func (t *Tree) Valid(n int) bool {
	return n >= 0 && n < len(t.nodes) && t.nodes[n].live
}

func (t *Tree) Parent(n int) int { return t.nodes[n].parent }

// Children returns the child handles of n in document order. The slice is
// owned by the tree and must not be modified.
func (t *Tree) Children(n int) []int { return t.nodes[n].children }

func (t *Tree) Label(n int) string { return t.nodes[n].label }

func (t *Tree) Value(n int) (string, bool) {
	return t.nodes[n].value, t.nodes[n].hasValue
}

// Hidden reports whether n has an empty label.
func (t *Tree) Hidden(n int) bool { return n != 0 && t.nodes[n].label == "" }

func (t *Tree) alloc(label string, parent int) int {
	nd := node{label: label, parent: parent, live: true}
	if k := len(t.free); k > 0 {
		id := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[id] = nd
		return id
	}
	t.nodes = append(t.nodes, nd)
	return len(t.nodes) - 1
}

// Append adds a new last child of parent.
func (t *Tree) Append(parent int, label string) int {
	id := t.alloc(label, parent)
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id
}

// InsertAt adds a new child of parent at index i of its children.
func (t *Tree) InsertAt(parent, i int, label string) int {
	id := t.alloc(label, parent)
	ch := t.nodes[parent].children
	if i < 0 || i > len(ch) {
		i = len(ch)
	}
	ch = append(ch, 0)
	copy(ch[i+1:], ch[i:])
	ch[i] = id
	t.nodes[parent].children = ch
	return id
}

// SetValue stores v as the value of n.
func (t *Tree) SetValue(n int, v string) {
	t.nodes[n].value = v
	t.nodes[n].hasValue = true
}

// ClearValue removes the value of n.
func (t *Tree) ClearValue(n int) {
	t.nodes[n].value = ""
	t.nodes[n].hasValue = false
}

// SetLabel renames n.
func (t *Tree) SetLabel(n int, label string) { t.nodes[n].label = label }

// Child returns the first child of parent labeled label, or -1.
func (t *Tree) Child(parent int, label string) int {
	for _, c := range t.nodes[parent].children {
		if t.nodes[c].label == label {
			return c
		}
	}
	return -1
}

// Ensure walks labels below parent, creating missing nodes, and returns
// the last one.
func (t *Tree) Ensure(parent int, labels ...string) int {
	cur := parent
	for _, l := range labels {
		next := t.Child(cur, l)
		if next < 0 {
			next = t.Append(cur, l)
		}
		cur = next
	}
	return cur
}

// Lookup follows labels below parent without creating anything.
func (t *Tree) Lookup(parent int, labels ...string) int {
	cur := parent
	for _, l := range labels {
		if cur = t.Child(cur, l); cur < 0 {
			return -1
		}
	}
	return cur
}

// Delete removes n and its subtree and returns the number of nodes freed.
// The root cannot be deleted; deleting it clears its children instead.
func (t *Tree) Delete(n int) int {
	if n == t.Root() {
		count := 0
		for _, c := range append([]int(nil), t.nodes[n].children...) {
			count += t.Delete(c)
		}
		return count
	}
	p := t.nodes[n].parent
	ch := t.nodes[p].children
	for i, c := range ch {
		if c == n {
			t.nodes[p].children = append(ch[:i:i], ch[i+1:]...)
			break
		}
	}
	return t.release(n)
}

func (t *Tree) release(n int) int {
	count := 1
	for _, c := range t.nodes[n].children {
		count += t.release(c)
	}
	t.nodes[n] = node{parent: -1}
	t.dirty.Remove(uint32(n))
	t.protected.Remove(uint32(n))
	t.free = append(t.free, n)
	return count
}

// DeleteChildren removes every child of n.
func (t *Tree) DeleteChildren(n int) int {
	count := 0
	for _, c := range append([]int(nil), t.nodes[n].children...) {
		count += t.Delete(c)
	}
	return count
}

// Walk visits n and its subtree in document order. Returning false from
// fn skips the subtree of the visited node.
func (t *Tree) Walk(n int, fn func(n int) bool) {
	if !fn(n) {
		return
	}
	for _, c := range t.nodes[n].children {
		t.Walk(c, fn)
	}
}

// IsAncestor reports whether a is n or one of its ancestors.
func (t *Tree) IsAncestor(a, n int) bool {
	for cur := n; cur >= 0; cur = t.nodes[cur].parent {
		if cur == a {
			return true
		}
	}
	return false
}

// MarkDirty flags n and all its ancestors as modified.
func (t *Tree) MarkDirty(n int) {
	for cur := n; cur >= 0; cur = t.nodes[cur].parent {
		t.dirty.Add(uint32(cur))
	}
}

func (t *Tree) IsDirty(n int) bool { return t.dirty.Contains(uint32(n)) }

// ClearDirty resets the dirty flag on n and its whole subtree.
func (t *Tree) ClearDirty(n int) {
	t.Walk(n, func(c int) bool {
		t.dirty.Remove(uint32(c))
		return true
	})
}

// DirtyCount returns the number of dirty nodes in the tree.
func (t *Tree) DirtyCount() uint64 { return t.dirty.GetCardinality() }

// Protect makes n and its subtree read-only for path-level mutations.
// Node-level methods are not affected.
func (t *Tree) Protect(n int) { t.protected.Add(uint32(n)) }

func (t *Tree) isProtected(n int) bool {
	if t.protected.IsEmpty() {
		return false
	}
	for cur := n; cur >= 0; cur = t.nodes[cur].parent {
		if t.protected.Contains(uint32(cur)) {
			return true
		}
	}
	return false
}
