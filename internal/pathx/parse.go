package pathx

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError reports a malformed path expression.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("path expression %q: %s at position %d", e.Expr, e.Msg, e.Pos)
}

type axis uint8

const (
	axisChild axis = iota
	axisSelf
	axisParent
	axisDescendantOrSelf
)

// step is one '/'-separated component of a location path.
type step struct {
	axis     axis
	name     string // unescaped label for axisChild; empty when wildcard
	wildcard bool
	preds    []pexpr
}

type locPath struct {
	absolute bool
	steps    []*step
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Expr: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *parser) hasPrefix(s string) bool {
	return strings.HasPrefix(p.src[p.pos:], s)
}

// parseUnion parses path ('|' path)*.
func (p *parser) parseUnion() ([]*locPath, error) {
	var paths []*locPath
	for {
		p.skipSpace()
		lp, err := p.parseLocPath()
		if err != nil {
			return nil, err
		}
		paths = append(paths, lp)
		p.skipSpace()
		if p.peek() != '|' {
			return paths, nil
		}
		p.pos++
	}
}

func (p *parser) parseLocPath() (*locPath, error) {
	lp := &locPath{}
	if p.peek() == '/' {
		lp.absolute = true
		p.pos++
		if p.peek() == '/' {
			p.pos++
			lp.steps = append(lp.steps, &step{axis: axisDescendantOrSelf})
		} else if p.eof() || strings.IndexByte("|]) \t=!", p.peek()) >= 0 {
			// a bare "/" selects the root
			return lp, nil
		}
	}
	for {
		st, err := p.parseStep()
		if err != nil {
			return nil, err
		}
		lp.steps = append(lp.steps, st)
		if p.peek() != '/' {
			return lp, nil
		}
		p.pos++
		if p.peek() == '/' {
			p.pos++
			lp.steps = append(lp.steps, &step{axis: axisDescendantOrSelf})
		}
	}
}

func (p *parser) parseStep() (*step, error) {
	start := p.pos
	var st *step
	switch {
	case p.hasPrefix("**"):
		p.pos += 2
		st = &step{axis: axisDescendantOrSelf}
	case p.peek() == '*':
		p.pos++
		st = &step{axis: axisChild, wildcard: true}
	default:
		raw, name, err := p.scanName()
		if err != nil {
			return nil, err
		}
		switch raw {
		case "":
			p.pos = start
			return nil, p.errorf("expected a name")
		case ".":
			st = &step{axis: axisSelf}
		case "..":
			st = &step{axis: axisParent}
		default:
			st = &step{axis: axisChild, name: name}
		}
	}
	for p.peek() == '[' {
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ']' {
			return nil, p.errorf("expected ']'")
		}
		p.pos++
		st.preds = append(st.preds, e)
	}
	return st, nil
}

// scanName reads a name up to the first unescaped stop character and
// returns both the raw text and the unescaped label.
func (p *parser) scanName() (raw, name string, err error) {
	start := p.pos
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		if c == '\\' {
			if p.pos+1 >= len(p.src) {
				return "", "", p.errorf("dangling escape")
			}
			b.WriteByte(p.src[p.pos+1])
			p.pos += 2
			continue
		}
		if strings.IndexByte(special, c) >= 0 {
			break
		}
		b.WriteByte(c)
		p.pos++
	}
	return p.src[start:p.pos], b.String(), nil
}

func (p *parser) keyword(kw string) bool {
	p.skipSpace()
	if !p.hasPrefix(kw) {
		return false
	}
	end := p.pos + len(kw)
	if end < len(p.src) && strings.IndexByte(" \t\n(", p.src[end]) < 0 {
		return false
	}
	p.pos = end
	return true
}

func (p *parser) parseOr() (pexpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binary{op: opOr, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (pexpr, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = &binary{op: opAnd, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseCmp() (pexpr, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	var op binop
	switch {
	case p.hasPrefix("!="):
		op = opNe
		p.pos += 2
	case p.peek() == '=':
		op = opEq
		p.pos++
	default:
		return left, nil
	}
	right, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	return &binary{op: op, l: left, r: right}, nil
}

func (p *parser) parseAdd() (pexpr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		var op binop
		switch p.peek() {
		case '+':
			op = opAdd
		case '-':
			op = opSub
		default:
			return left, nil
		}
		p.pos++
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, l: left, r: right}
	}
}

func (p *parser) parsePrimary() (pexpr, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case p.eof():
		return nil, p.errorf("unexpected end of expression")
	case c == '(':
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, p.errorf("expected ')'")
		}
		p.pos++
		return e, nil
	case c == '\'' || c == '"':
		end := strings.IndexByte(p.src[p.pos+1:], c)
		if end < 0 {
			return nil, p.errorf("unterminated string")
		}
		s := p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return strLit(s), nil
	case c >= '0' && c <= '9':
		if n, ok := p.scanNumber(); ok {
			return numLit(n), nil
		}
	}

	start := p.pos
	if !p.hasPrefix("/") && !p.hasPrefix("*") {
		raw, _, err := p.scanName()
		if err != nil {
			return nil, err
		}
		if p.peek() == '(' {
			return p.parseCall(raw)
		}
		p.pos = start
	}
	lp, err := p.parseLocPath()
	if err != nil {
		return nil, err
	}
	return &pathRef{path: lp}, nil
}

// scanNumber consumes a run of digits when it forms a complete number
// token; it leaves the position untouched otherwise.
func (p *parser) scanNumber() (int, bool) {
	end := p.pos
	for end < len(p.src) && p.src[end] >= '0' && p.src[end] <= '9' {
		end++
	}
	if end < len(p.src) && strings.IndexByte(" \t\n])+-=!", p.src[end]) < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(p.src[p.pos:end])
	if err != nil {
		return 0, false
	}
	p.pos = end
	return n, true
}

func (p *parser) parseCall(name string) (pexpr, error) {
	p.pos++ // '('
	p.skipSpace()
	switch name {
	case "last", "position":
		if p.peek() != ')' {
			return nil, p.errorf("%s() takes no arguments", name)
		}
		p.pos++
		if name == "last" {
			return lastFn{}, nil
		}
		return positionFn{}, nil
	case "count":
		lp, err := p.parseLocPath()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, p.errorf("expected ')'")
		}
		p.pos++
		return &countFn{path: lp}, nil
	default:
		return nil, p.errorf("unknown function %s()", name)
	}
}
