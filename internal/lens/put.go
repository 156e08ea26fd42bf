package lens

import (
	"fmt"
	"strings"
)

type putter struct {
	top  *Lens
	b    strings.Builder
	path []string
	// wrote is set once the value of the current node has been written
	wrote bool
}

// Put serializes t with l, reusing the layout in s wherever the tree still
// corresponds to it. With a nil skeleton it behaves like Create.
func Put(l *Lens, t *Tree, s *Skeleton) (string, error) {
	p := &putter{top: l}
	if t == nil {
		t = &Tree{}
	}
	var sk *skel
	var d dict
	if s != nil && s.root != nil {
		sk, d = s.root.skel, s.root.dict
	}
	end, err := p.put(l, t, 0, sk, newCursor(d))
	if err != nil {
		return "", err
	}
	if end != len(t.Children) {
		return "", p.errorf("node %q is not accepted here", t.Children[end].Label)
	}
	return p.b.String(), nil
}

// Create serializes a fragment that has no prior text, using the default
// layout of every Del.
func Create(l *Lens, t *Tree) (string, error) { return Put(l, t, nil) }

func (p *putter) errorf(format string, args ...any) error {
	return &PutError{Lens: p.top.Name(), Path: strings.Join(p.path, "/"), Msg: fmt.Sprintf(format, args...)}
}

func isSeq(label string) bool {
	if label == "" {
		return false
	}
	for i := 0; i < len(label); i++ {
		if label[i] < '0' || label[i] > '9' {
			return false
		}
	}
	return true
}

// match reports whether l accepts node starting at child i, and the index
// of the first child it leaves unconsumed. It writes nothing.
func (p *putter) match(l *Lens, node *Tree, i int) (int, bool) {
	switch l.kind {
	case KindDel, KindCounter:
		return i, true
	case KindStore:
		return i, node.Value != nil && l.exact.MatchString(*node.Value)
	case KindKey:
		return i, l.exact.MatchString(node.Label)
	case KindLabel:
		return i, node.Label == l.text
	case KindValue:
		return i, node.Value != nil && *node.Value == l.text
	case KindSeq:
		return i, isSeq(node.Label)
	case KindConcat:
		for _, k := range l.kids {
			var ok bool
			if i, ok = p.match(k, node, i); !ok {
				return i, false
			}
		}
		return i, true
	case KindUnion:
		for _, k := range l.kids {
			if j, ok := p.match(k, node, i); ok {
				return j, true
			}
		}
		return i, false
	case KindStar:
		for {
			j, ok := p.match(l.kids[0], node, i)
			if !ok || j == i {
				return i, true
			}
			i = j
		}
	case KindMaybe:
		if j, ok := p.match(l.kids[0], node, i); ok {
			return j, true
		}
		return i, true
	case KindSubtree:
		if i < len(node.Children) && p.fits(l.kids[0], node.Children[i]) {
			return i + 1, true
		}
		return i, false
	}
	return i, false
}

// fits reports whether inner, the body of a Subtree, accounts for all of n.
func (p *putter) fits(inner *Lens, n *Tree) bool {
	if !inner.keyed && n.Label != "" {
		return false
	}
	if !inner.valued && n.Value != nil {
		return false
	}
	j, ok := p.match(inner, n, 0)
	return ok && j == len(n.Children)
}

// choose picks the union branch to serialize. The branch recorded in the
// skeleton wins when it still matches, unless it would consume no node
// while another branch consumes some.
func (p *putter) choose(l *Lens, node *Tree, i int, sk *skel) int {
	prefer := -1
	if sk != nil && sk.branch < len(l.kids) {
		prefer = sk.branch
	}
	if l.treeless {
		return max(prefer, 0)
	}
	firstOK, firstConsuming := -1, -1
	preferOK, preferConsumes := false, false
	for b, k := range l.kids {
		j, ok := p.match(k, node, i)
		if !ok {
			continue
		}
		if firstOK < 0 {
			firstOK = b
		}
		if j > i && firstConsuming < 0 {
			firstConsuming = b
		}
		if b == prefer {
			preferOK, preferConsumes = true, j > i
		}
	}
	switch {
	case preferOK && (preferConsumes || firstConsuming < 0):
		return prefer
	case firstConsuming >= 0:
		return firstConsuming
	default:
		return firstOK
	}
}

func (p *putter) put(l *Lens, node *Tree, i int, sk *skel, cur *cursor) (int, error) {
	if sk != nil && sk.kind != l.kind {
		sk = nil
	}
	switch l.kind {
	case KindDel:
		if sk != nil {
			p.b.WriteString(sk.text)
		} else {
			p.b.WriteString(l.text)
		}
		return i, nil

	case KindStore:
		if node.Value == nil {
			return i, p.errorf("node %q has no value", node.Label)
		}
		if !l.exact.MatchString(*node.Value) {
			return i, p.errorf("value %q does not match /%s/", *node.Value, l.pattern)
		}
		p.b.WriteString(*node.Value)
		p.wrote = true
		return i, nil

	case KindKey:
		if !l.exact.MatchString(node.Label) {
			return i, p.errorf("label %q does not match /%s/", node.Label, l.pattern)
		}
		p.b.WriteString(node.Label)
		return i, nil

	case KindLabel, KindValue, KindSeq, KindCounter:
		if _, ok := p.match(l, node, i); !ok {
			return i, p.errorf("node %q does not carry the expected %s", node.Label, l.kind)
		}
		if l.kind == KindValue {
			p.wrote = true
		}
		return i, nil

	case KindConcat:
		var items []*skel
		if sk != nil && len(sk.items) == len(l.kids) {
			items = sk.items
		}
		for k, kid := range l.kids {
			var ks *skel
			if items != nil {
				ks = items[k]
			}
			var err error
			if i, err = p.put(kid, node, i, ks, cur); err != nil {
				return i, err
			}
		}
		return i, nil

	case KindUnion:
		b := p.choose(l, node, i, sk)
		if b < 0 {
			if i < len(node.Children) {
				return i, p.errorf("no alternative accepts node %q", node.Children[i].Label)
			}
			return i, p.errorf("no alternative accepts node %q", node.Label)
		}
		var ks *skel
		if sk != nil && sk.branch == b && len(sk.items) == 1 {
			ks = sk.items[0]
		}
		return p.put(l.kids[b], node, i, ks, cur)

	case KindStar:
		kid := l.kids[0]
		var items []*skel
		if sk != nil {
			items = sk.items
		}
		if kid.treeless {
			for _, it := range items {
				var err error
				if i, err = p.put(kid, node, i, it, cur); err != nil {
					return i, err
				}
			}
			return i, nil
		}
		for k := 0; ; k++ {
			j, ok := p.match(kid, node, i)
			if !ok || j == i {
				return i, nil
			}
			var it *skel
			if k < len(items) {
				it = items[k]
			}
			var err error
			if i, err = p.put(kid, node, i, it, cur); err != nil {
				return i, err
			}
		}

	case KindMaybe:
		kid := l.kids[0]
		var item *skel
		if sk != nil && len(sk.items) == 1 {
			item = sk.items[0]
		}
		j, ok := p.match(kid, node, i)
		present := false
		switch {
		case !ok:
		case j > i, kid.keyed, kid.valued:
			present = true
		default:
			present = item != nil
		}
		if !present {
			return i, nil
		}
		return p.put(kid, node, i, item, cur)

	case KindSubtree:
		if i >= len(node.Children) {
			return i, p.errorf("expected a child node")
		}
		child := node.Children[i]
		inner := l.kids[0]
		if !p.fits(inner, child) {
			return i, p.errorf("node %q does not fit here", child.Label)
		}
		var csk *skel
		var cd dict
		if e := cur.pop(child.Label, child.Value); e != nil {
			csk, cd = e.skel, e.dict
		}
		p.path = append(p.path, child.Label)
		outer := p.wrote
		p.wrote = false
		end, err := p.put(inner, child, 0, csk, newCursor(cd))
		if err != nil {
			return i, err
		}
		if end != len(child.Children) {
			return i, p.errorf("node %q is not accepted here", child.Children[end].Label)
		}
		if child.Value != nil && !p.wrote {
			return i, p.errorf("value %q cannot be written", *child.Value)
		}
		p.wrote = outer
		p.path = p.path[:len(p.path)-1]
		return i + 1, nil
	}
	return i, p.errorf("unknown lens kind %s", l.kind)
}
