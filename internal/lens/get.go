package lens

import (
	"fmt"
	"maps"
	"strconv"
)

// frame collects what the lenses at one tree level produce.
type frame struct {
	label    *string
	value    *string
	children []*Tree
	entries  []labeled
}

type labeled struct {
	label string
	e     *entry
}

type mark struct {
	label, value *string
	nchildren    int
	nentries     int
	counters     map[string]int
}

type getter struct {
	text     string
	counters map[string]int

	// furthest failure, reported when the whole parse fails
	far    int
	farMsg string
}

// Get parses text with l. The returned fragment is the file level: its
// Children are the top-level nodes.
func Get(l *Lens, text string) (*Tree, *Skeleton, error) {
	g := &getter{text: text, counters: make(map[string]int), far: -1}
	root := &frame{}
	end, sk, ok := g.get(l, root, 0)
	if ok && end == len(text) {
		frag := &Tree{Value: root.value, Children: root.children}
		return frag, &Skeleton{root: &entry{skel: sk, dict: buildDict(root.entries)}}, nil
	}
	if ok && g.far < end {
		return nil, nil, newParseError(l, text, end, "unexpected text "+snippet(text, end))
	}
	return nil, nil, newParseError(l, text, g.far, g.farMsg)
}

func snippet(text string, pos int) string {
	end := pos + 20
	if end > len(text) {
		end = len(text)
	}
	return strconv.Quote(text[pos:end])
}

func (g *getter) fail(pos int, format string, args ...any) (int, *skel, bool) {
	if pos >= g.far {
		g.far = pos
		g.farMsg = fmt.Sprintf(format, args...)
	}
	return pos, nil, false
}

func (g *getter) save(f *frame) mark {
	return mark{
		label:     f.label,
		value:     f.value,
		nchildren: len(f.children),
		nentries:  len(f.entries),
		counters:  maps.Clone(g.counters),
	}
}

func (g *getter) restore(f *frame, m mark) {
	f.label, f.value = m.label, m.value
	f.children = f.children[:m.nchildren]
	f.entries = f.entries[:m.nentries]
	g.counters = m.counters
}

func (g *getter) match(l *Lens, pos int) (string, bool) {
	loc := l.re.FindStringIndex(g.text[pos:])
	if loc == nil {
		return "", false
	}
	return g.text[pos : pos+loc[1]], true
}

func (g *getter) get(l *Lens, f *frame, pos int) (int, *skel, bool) {
	switch l.kind {
	case KindDel:
		m, ok := g.match(l, pos)
		if !ok {
			return g.fail(pos, "expected /%s/ at %s", l.pattern, snippet(g.text, pos))
		}
		return pos + len(m), &skel{kind: KindDel, text: m}, true

	case KindStore, KindKey:
		m, ok := g.match(l, pos)
		if !ok {
			return g.fail(pos, "expected %s /%s/ at %s", l.kind, l.pattern, snippet(g.text, pos))
		}
		if l.kind == KindStore {
			f.value = &m
		} else {
			f.label = &m
		}
		return pos + len(m), &skel{kind: l.kind}, true

	case KindLabel:
		s := l.text
		f.label = &s
		return pos, &skel{kind: l.kind}, true

	case KindValue:
		s := l.text
		f.value = &s
		return pos, &skel{kind: l.kind}, true

	case KindSeq:
		g.counters[l.text]++
		s := strconv.Itoa(g.counters[l.text])
		f.label = &s
		return pos, &skel{kind: l.kind}, true

	case KindCounter:
		g.counters[l.text] = 0
		return pos, &skel{kind: l.kind}, true

	case KindConcat:
		sk := &skel{kind: KindConcat, items: make([]*skel, 0, len(l.kids))}
		for _, k := range l.kids {
			next, ks, ok := g.get(k, f, pos)
			if !ok {
				return next, nil, false
			}
			sk.items = append(sk.items, ks)
			pos = next
		}
		return pos, sk, true

	case KindUnion:
		for b, k := range l.kids {
			m := g.save(f)
			next, ks, ok := g.get(k, f, pos)
			if ok {
				return next, &skel{kind: KindUnion, branch: b, items: []*skel{ks}}, true
			}
			g.restore(f, m)
		}
		return pos, nil, false

	case KindStar:
		sk := &skel{kind: KindStar}
		for {
			m := g.save(f)
			next, ks, ok := g.get(l.kids[0], f, pos)
			if !ok || next == pos {
				g.restore(f, m)
				return pos, sk, true
			}
			sk.items = append(sk.items, ks)
			pos = next
		}

	case KindMaybe:
		m := g.save(f)
		next, ks, ok := g.get(l.kids[0], f, pos)
		if !ok {
			g.restore(f, m)
			return pos, &skel{kind: KindMaybe}, true
		}
		return next, &skel{kind: KindMaybe, items: []*skel{ks}}, true

	case KindSubtree:
		child := &frame{}
		next, ks, ok := g.get(l.kids[0], child, pos)
		if !ok {
			return next, nil, false
		}
		n := &Tree{Value: child.value, Children: child.children}
		if child.label != nil {
			n.Label = *child.label
		}
		f.children = append(f.children, n)
		f.entries = append(f.entries, labeled{label: n.Label, e: &entry{skel: ks, dict: buildDict(child.entries), value: n.Value}})
		return next, &skel{kind: KindSubtree}, true
	}
	return g.fail(pos, "unknown lens kind %s", l.kind)
}

func buildDict(items []labeled) dict {
	if len(items) == 0 {
		return nil
	}
	d := make(dict, len(items))
	for _, it := range items {
		d[it.label] = append(d[it.label], it.e)
	}
	return d
}
