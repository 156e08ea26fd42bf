// Package transform pairs lenses with the files they manage and resolves,
// for any file, which transform owns it.
package transform

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/agentic-research/lenstree/api"
	"github.com/agentic-research/lenstree/internal/lens"
)

// ErrUnknownLens is recorded on a transform whose lens name is not
// registered.
var ErrUnknownLens = errors.New("lens not found")

// NoLensError means no usable transform claims File.
type NoLensError struct {
	File string
	// Transform is set when the only claiming transform has no lens.
	Transform string
}

func (e *NoLensError) Error() string {
	if e.Transform != "" {
		return fmt.Sprintf("no lens for %s: transform %s has no usable lens", e.File, e.Transform)
	}
	return fmt.Sprintf("no lens for %s", e.File)
}

// MultipleTransformError means more than one transform claims File.
type MultipleTransformError struct {
	File       string
	Transforms []string
}

func (e *MultipleTransformError) Error() string {
	return fmt.Sprintf("%s is claimed by %d transforms: %s", e.File, len(e.Transforms), strings.Join(e.Transforms, ", "))
}

// LensFunc resolves a lens name.
type LensFunc func(name string) (*lens.Lens, bool)

// Transform is a lens together with include and exclude globs.
type Transform struct {
	Name     string
	LensName string
	Lens     *lens.Lens
	Incl     []string
	Excl     []string
	// Err is set when the transform cannot be used, e.g. an unknown lens.
	Err error
}

// Matches reports whether file is included by at least one include glob
// and by no exclude glob.
func (t *Transform) Matches(file string) bool {
	included := false
	for _, p := range t.Incl {
		if globMatch(p, file) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range t.Excl {
		if globMatch(p, file) {
			return false
		}
	}
	return true
}

// globMatch matches file against pattern. A pattern without a slash only
// looks at the base name.
func globMatch(pattern, file string) bool {
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, path.Base(file))
		return ok
	}
	ok, _ := path.Match(pattern, file)
	return ok
}

// Registry is an ordered set of transforms.
type Registry struct {
	transforms []*Transform
}

// New builds a registry from declarations, resolving lens names with
// lookup. Declarations naming an unknown lens are kept with Err set so the
// files they claim still count as claimed.
func New(decls []api.TransformDecl, lookup LensFunc) *Registry {
	r := &Registry{}
	for _, d := range decls {
		t := &Transform{
			Name:     d.Name,
			LensName: d.Lens,
			Incl:     append([]string(nil), d.Incl...),
			Excl:     append([]string(nil), d.Excl...),
		}
		switch l, ok := lookup(d.Lens); {
		case d.Lens == "":
			t.Err = fmt.Errorf("transform %s: no lens given", d.Name)
		case !ok:
			t.Err = fmt.Errorf("transform %s: %w: %s", d.Name, ErrUnknownLens, d.Lens)
		default:
			t.Lens = l
		}
		r.transforms = append(r.transforms, t)
	}
	return r
}

// Transforms returns the transforms in declaration order.
func (r *Registry) Transforms() []*Transform { return r.transforms }

// Resolve returns every transform that matches file.
func (r *Registry) Resolve(file string) []*Transform {
	var out []*Transform
	for _, t := range r.transforms {
		if t.Matches(file) {
			out = append(out, t)
		}
	}
	return out
}

// Lookup returns the single transform owning file. It fails with
// *NoLensError when none (or only a lens-less one) claims it and with
// *MultipleTransformError when several do.
func (r *Registry) Lookup(file string) (*Transform, error) {
	ts := r.Resolve(file)
	switch len(ts) {
	case 0:
		return nil, &NoLensError{File: file}
	case 1:
		if ts[0].Lens == nil {
			return nil, &NoLensError{File: file, Transform: ts[0].Name}
		}
		return ts[0], nil
	default:
		names := make([]string, len(ts))
		for i, t := range ts {
			names[i] = t.Name
		}
		return nil, &MultipleTransformError{File: file, Transforms: names}
	}
}
