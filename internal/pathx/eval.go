package pathx

import (
	"sort"
	"strconv"
)

// Navigator exposes an ordered labeled tree to the evaluator. Nodes are
// identified by integer handles; Parent returns -1 for the root.
type Navigator interface {
	Root() int
	Parent(n int) int
	Children(n int) []int
	Label(n int) string
	Value(n int) (string, bool)
}

type valueKind uint8

const (
	kindNodes valueKind = iota
	kindNum
	kindStr
	kindBool
)

type value struct {
	kind  valueKind
	nodes []int
	num   int
	str   string
	b     bool
}

func (v value) truth() bool {
	switch v.kind {
	case kindNodes:
		return len(v.nodes) > 0
	case kindNum:
		return v.num != 0
	case kindStr:
		return v.str != ""
	default:
		return v.b
	}
}

// evalCtx is the dynamic context of a predicate: the candidate node, its
// 1-based position within its group and the group size.
type evalCtx struct {
	node int
	pos  int
	size int
}

type pexpr interface {
	eval(ev *evaluator, c evalCtx) value
}

type numLit int

func (n numLit) eval(*evaluator, evalCtx) value { return value{kind: kindNum, num: int(n)} }

type strLit string

func (s strLit) eval(*evaluator, evalCtx) value { return value{kind: kindStr, str: string(s)} }

type lastFn struct{}

func (lastFn) eval(_ *evaluator, c evalCtx) value { return value{kind: kindNum, num: c.size} }

type positionFn struct{}

func (positionFn) eval(_ *evaluator, c evalCtx) value { return value{kind: kindNum, num: c.pos} }

type countFn struct{ path *locPath }

func (f *countFn) eval(ev *evaluator, c evalCtx) value {
	return value{kind: kindNum, num: len(ev.evalLocPath(f.path, c.node))}
}

type pathRef struct{ path *locPath }

func (r *pathRef) eval(ev *evaluator, c evalCtx) value {
	return value{kind: kindNodes, nodes: ev.evalLocPath(r.path, c.node)}
}

type binop uint8

const (
	opOr binop = iota
	opAnd
	opEq
	opNe
	opAdd
	opSub
)

type binary struct {
	op   binop
	l, r pexpr
}

func (b *binary) eval(ev *evaluator, c evalCtx) value {
	switch b.op {
	case opOr:
		return value{kind: kindBool, b: b.l.eval(ev, c).truth() || b.r.eval(ev, c).truth()}
	case opAnd:
		return value{kind: kindBool, b: b.l.eval(ev, c).truth() && b.r.eval(ev, c).truth()}
	case opAdd, opSub:
		l, r := ev.number(b.l.eval(ev, c)), ev.number(b.r.eval(ev, c))
		if b.op == opSub {
			r = -r
		}
		return value{kind: kindNum, num: l + r}
	default:
		eq := ev.equal(b.l.eval(ev, c), b.r.eval(ev, c), b.op == opNe)
		return value{kind: kindBool, b: eq}
	}
}

type evaluator struct {
	nav   Navigator
	order map[int]int
}

func (ev *evaluator) number(v value) int {
	switch v.kind {
	case kindNum:
		return v.num
	case kindStr:
		n, _ := strconv.Atoi(v.str)
		return n
	case kindBool:
		if v.b {
			return 1
		}
		return 0
	default:
		if len(v.nodes) == 0 {
			return 0
		}
		s, _ := ev.nav.Value(v.nodes[0])
		n, _ := strconv.Atoi(s)
		return n
	}
}

// strings returns the comparable string values of v. Nodes without a
// value do not take part in comparisons.
func (ev *evaluator) strings(v value) []string {
	switch v.kind {
	case kindNodes:
		out := make([]string, 0, len(v.nodes))
		for _, n := range v.nodes {
			if s, ok := ev.nav.Value(n); ok {
				out = append(out, s)
			}
		}
		return out
	case kindNum:
		return []string{strconv.Itoa(v.num)}
	case kindStr:
		return []string{v.str}
	default:
		return []string{strconv.FormatBool(v.b)}
	}
}

func (ev *evaluator) equal(l, r value, negate bool) bool {
	if l.kind == kindBool || r.kind == kindBool {
		return (l.truth() == r.truth()) != negate
	}
	for _, a := range ev.strings(l) {
		for _, b := range ev.strings(r) {
			if (a == b) != negate {
				return true
			}
		}
	}
	return false
}

func (ev *evaluator) evalLocPath(lp *locPath, ctx int) []int {
	return ev.evalSteps(lp, len(lp.steps), ctx)
}

// evalSteps evaluates the first n steps of lp starting at ctx (or at the
// root for absolute paths). The result is in document order.
func (ev *evaluator) evalSteps(lp *locPath, n, ctx int) []int {
	cur := []int{ctx}
	if lp.absolute {
		cur = []int{ev.nav.Root()}
	}
	for _, st := range lp.steps[:n] {
		cur = ev.applyStep(st, cur)
		if len(cur) == 0 {
			return nil
		}
	}
	return cur
}

func (ev *evaluator) applyStep(st *step, in []int) []int {
	var out []int
	seen := make(map[int]struct{})
	reorder := false
	for _, n := range in {
		var group []int
		switch st.axis {
		case axisSelf:
			group = []int{n}
		case axisParent:
			if p := ev.nav.Parent(n); p >= 0 {
				group = []int{p}
			}
			reorder = true
		case axisDescendantOrSelf:
			group = ev.descendantsOrSelf(n, nil)
			reorder = true
		default:
			for _, c := range ev.nav.Children(n) {
				l := ev.nav.Label(c)
				if l == "" {
					continue
				}
				if st.wildcard || l == st.name {
					group = append(group, c)
				}
			}
			if len(in) > 1 {
				reorder = true
			}
		}
		for _, pr := range st.preds {
			group = ev.filter(pr, group)
		}
		for _, g := range group {
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	if reorder && len(out) > 1 {
		ev.sortDocOrder(out)
	}
	return out
}

func (ev *evaluator) filter(pr pexpr, group []int) []int {
	kept := group[:0:0]
	for i, n := range group {
		v := pr.eval(ev, evalCtx{node: n, pos: i + 1, size: len(group)})
		if v.kind == kindNum {
			if v.num == i+1 {
				kept = append(kept, n)
			}
			continue
		}
		if v.truth() {
			kept = append(kept, n)
		}
	}
	return kept
}

// descendantsOrSelf lists n and every visible node below it in document
// order. Hidden nodes (empty label) and their subtrees are skipped.
func (ev *evaluator) descendantsOrSelf(n int, acc []int) []int {
	acc = append(acc, n)
	for _, c := range ev.nav.Children(n) {
		if ev.nav.Label(c) == "" {
			continue
		}
		acc = ev.descendantsOrSelf(c, acc)
	}
	return acc
}

func (ev *evaluator) sortDocOrder(nodes []int) {
	if ev.order == nil {
		ev.order = make(map[int]int)
		var walk func(int)
		walk = func(n int) {
			ev.order[n] = len(ev.order)
			for _, c := range ev.nav.Children(n) {
				walk(c)
			}
		}
		walk(ev.nav.Root())
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return ev.order[nodes[i]] < ev.order[nodes[j]]
	})
}
