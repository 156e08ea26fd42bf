package lens

import (
	"fmt"
	"strings"
)

// ParseError reports text that the lens does not accept. Pos is the byte
// offset of the furthest point the lens reached; Line and Col are 1-based.
type ParseError struct {
	Lens string
	Pos  int
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse failed at line %d, column %d: %s", e.Lens, e.Line, e.Col, e.Msg)
}

func newParseError(l *Lens, text string, pos int, msg string) *ParseError {
	if pos > len(text) {
		pos = len(text)
	}
	line := 1 + strings.Count(text[:pos], "\n")
	col := pos + 1
	if i := strings.LastIndexByte(text[:pos], '\n'); i >= 0 {
		col = pos - i
	}
	return &ParseError{Lens: l.Name(), Pos: pos, Line: line, Col: col, Msg: msg}
}

// PutError reports a tree fragment whose shape the lens cannot serialize.
// Path is the slash-separated label chain of the offending node.
type PutError struct {
	Lens string
	Path string
	Msg  string
}

func (e *PutError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: put failed: %s", e.Lens, e.Msg)
	}
	return fmt.Sprintf("%s: put failed at %s: %s", e.Lens, e.Path, e.Msg)
}
