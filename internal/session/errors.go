package session

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/agentic-research/lenstree/internal/lens"
	"github.com/agentic-research/lenstree/internal/pathx"
	"github.com/agentic-research/lenstree/internal/transform"
	"github.com/agentic-research/lenstree/internal/tree"
)

// ErrorCode classifies the last error of a session.
type ErrorCode int

const (
	NoError ErrorCode = iota
	NoMem
	Internal
	PathExpr
	NoMatch
	MultipleMatches
	Syntax
	NoLens
	MultipleTransforms
	PutFailed
	ReadOnly
	IO
)

var codeNames = [...]string{
	NoError:            "no error",
	NoMem:              "out of memory",
	Internal:           "internal error",
	PathExpr:           "invalid path expression",
	NoMatch:            "no match",
	MultipleMatches:    "too many matches",
	Syntax:             "syntax error",
	NoLens:             "lens not found",
	MultipleTransforms: "multiple transforms",
	PutFailed:          "put failed",
	ReadOnly:           "read-only path",
	IO:                 "i/o error",
}

func (c ErrorCode) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("error(%d)", int(c))
}

// Error is what a failed session operation returns and what Err reports
// afterwards.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code maps an error from any layer to its ErrorCode.
func Code(err error) ErrorCode {
	var (
		se *Error
		sx *pathx.SyntaxError
		am *tree.AmbiguousPathError
		nl *transform.NoLensError
		mx *transform.MultipleTransformError
		pu *lens.PutError
		pa *lens.ParseError
		pe *fs.PathError
	)
	switch {
	case err == nil:
		return NoError
	case errors.As(err, &se):
		return se.Code
	case errors.As(err, &sx), errors.Is(err, tree.ErrBadLabel):
		return PathExpr
	case errors.As(err, &am):
		return MultipleMatches
	case errors.Is(err, tree.ErrNoMatch):
		return NoMatch
	case errors.Is(err, tree.ErrReadOnly):
		return ReadOnly
	case errors.As(err, &nl), errors.Is(err, transform.ErrUnknownLens):
		return NoLens
	case errors.As(err, &mx):
		return MultipleTransforms
	case errors.As(err, &pu):
		return PutFailed
	case errors.As(err, &pa):
		return Syntax
	case errors.As(err, &pe), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return IO
	default:
		return Internal
	}
}
