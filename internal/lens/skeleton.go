package lens

// skel mirrors the shape of the lens that produced it. Del records the
// matched text, Union the chosen branch, Concat, Star and Maybe the
// skeletons of their parts. Atoms that feed the tree leave an empty marker.
type skel struct {
	kind   Kind
	text   string
	branch int
	items  []*skel
}

// entry is the layout of one subtree: its own skeleton, the layout of its
// children keyed by label, and the value the subtree was read with.
type entry struct {
	skel  *skel
	dict  dict
	value *string
}

// dict maps a child label to the layouts of the children carrying it, in
// document order.
type dict map[string][]*entry

// Skeleton is the layout Get discarded from a file. It is read-only: Put
// may use the same Skeleton any number of times.
type Skeleton struct {
	root *entry
}

// cursor hands out the entries of a dict in order without modifying it.
type cursor struct {
	d    dict
	next map[string]int
}

func newCursor(d dict) *cursor { return &cursor{d: d} }

// pop returns the next unused layout for a node labelled label. When that
// layout was read with a different value and a later one with exactly
// value, the later one is used and the ones in between are skipped: their
// nodes were removed.
func (c *cursor) pop(label string, value *string) *entry {
	if c == nil || c.d == nil {
		return nil
	}
	list := c.d[label]
	if c.next == nil {
		c.next = make(map[string]int)
	}
	i := c.next[label]
	if i >= len(list) {
		return nil
	}
	if !sameValue(list[i].value, value) {
		for j := i + 1; j < len(list); j++ {
			if sameValue(list[j].value, value) {
				i = j
				break
			}
		}
	}
	c.next[label] = i + 1
	return list[i]
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
