package pathx

import (
	"fmt"
	"strconv"
	"strings"
)

// Path is a compiled path expression. It is immutable and may be
// evaluated any number of times against any Navigator.
type Path struct {
	src   string
	paths []*locPath
}

// Compile parses expr. An empty expression compiles to a path that
// matches nothing.
func Compile(expr string) (*Path, error) {
	src := strings.TrimSpace(expr)
	if src == "" {
		return &Path{src: src}, nil
	}
	p := &parser{src: src}
	paths, err := p.parseUnion()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.peek())
	}
	return &Path{src: src, paths: paths}, nil
}

// MustCompile is like Compile but panics on a malformed expression.
func MustCompile(expr string) *Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Path) String() string { return p.src }

// Absolute reports whether every branch of the expression starts at the root.
func (p *Path) Absolute() bool {
	for _, lp := range p.paths {
		if !lp.absolute {
			return false
		}
	}
	return len(p.paths) > 0
}

// Eval returns the nodes selected by the expression in document order.
// Relative expressions are evaluated from ctx.
func (p *Path) Eval(nav Navigator, ctx int) []int {
	if len(p.paths) == 0 {
		return nil
	}
	ev := &evaluator{nav: nav}
	if len(p.paths) == 1 {
		return ev.evalLocPath(p.paths[0], ctx)
	}
	var out []int
	seen := make(map[int]struct{})
	for _, lp := range p.paths {
		for _, n := range ev.evalLocPath(lp, ctx) {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	ev.sortDocOrder(out)
	return out
}

// Len returns the number of steps of a single-branch expression, or -1 for
// unions and empty expressions.
func (p *Path) Len() int {
	if len(p.paths) != 1 {
		return -1
	}
	return len(p.paths[0].steps)
}

// EvalPrefix evaluates only the first n steps of a single-branch expression.
func (p *Path) EvalPrefix(nav Navigator, ctx, n int) []int {
	if len(p.paths) != 1 {
		return nil
	}
	lp := p.paths[0]
	if n == 0 {
		if lp.absolute {
			return []int{nav.Root()}
		}
		return []int{ctx}
	}
	ev := &evaluator{nav: nav}
	return ev.evalSteps(lp, n, ctx)
}

// Creation describes how to materialize one step of a path that matched
// nothing. Position is 0 when the new node is simply appended after its
// same-labeled siblings, or the explicit 1-based position requested.
type Creation struct {
	Label    string
	Position int
}

// CreationStep reports whether step i can be created by a mutation.
// Only exact names are creatable, optionally with a plain position or
// last()+1 predicate.
func (p *Path) CreationStep(i int) (Creation, error) {
	if len(p.paths) != 1 || i < 0 || i >= len(p.paths[0].steps) {
		return Creation{}, fmt.Errorf("%q: no step %d", p.src, i)
	}
	st := p.paths[0].steps[i]
	if st.axis != axisChild || st.wildcard {
		return Creation{}, fmt.Errorf("%q: step %d is not a plain name and cannot be created", p.src, i+1)
	}
	c := Creation{Label: st.name}
	switch len(st.preds) {
	case 0:
		return c, nil
	case 1:
	default:
		return Creation{}, fmt.Errorf("%q: step %q has too many predicates to be created", p.src, st.name)
	}
	switch e := st.preds[0].(type) {
	case numLit:
		c.Position = int(e)
		return c, nil
	case *binary:
		if _, ok := e.l.(lastFn); ok && e.op == opAdd {
			if n, ok := e.r.(numLit); ok && n == 1 {
				return c, nil
			}
		}
	}
	return Creation{}, fmt.Errorf("%q: predicate on %q cannot be used to create a node", p.src, st.name)
}

// PathOf renders the canonical escaped expression that selects exactly n.
// Positions are only added where visible siblings share a label.
func PathOf(nav Navigator, n int) string {
	var parts []string
	for cur := n; cur >= 0 && cur != nav.Root(); cur = nav.Parent(cur) {
		label := nav.Label(cur)
		seg := Escape(label)
		parent := nav.Parent(cur)
		if parent >= 0 {
			pos, total := 0, 0
			for _, sib := range nav.Children(parent) {
				if nav.Label(sib) != label {
					continue
				}
				total++
				if sib == cur {
					pos = total
				}
			}
			if total > 1 {
				seg += "[" + strconv.Itoa(pos) + "]"
			}
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		return "/"
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}
