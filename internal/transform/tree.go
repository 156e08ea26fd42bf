package transform

import (
	"github.com/agentic-research/lenstree/api"
	"github.com/agentic-research/lenstree/internal/tree"
)

// Store writes decls below load as <Name>/{lens,incl,excl} nodes,
// replacing whatever was there.
func Store(t *tree.Tree, load int, decls []api.TransformDecl) {
	t.DeleteChildren(load)
	for _, d := range decls {
		n := t.Append(load, d.Name)
		t.SetValue(t.Append(n, "lens"), d.Lens)
		for _, g := range d.Incl {
			t.SetValue(t.Append(n, "incl"), g)
		}
		for _, g := range d.Excl {
			t.SetValue(t.Append(n, "excl"), g)
		}
	}
}

// Decls reads the transform declarations below load. Children without a
// value are ignored.
func Decls(t *tree.Tree, load int) []api.TransformDecl {
	var decls []api.TransformDecl
	for _, n := range t.Children(load) {
		if t.Hidden(n) {
			continue
		}
		d := api.TransformDecl{Name: t.Label(n)}
		for _, c := range t.Children(n) {
			v, ok := t.Value(c)
			if !ok {
				continue
			}
			switch t.Label(c) {
			case "lens":
				d.Lens = v
			case "incl":
				d.Incl = append(d.Incl, v)
			case "excl":
				d.Excl = append(d.Excl, v)
			}
		}
		decls = append(decls, d)
	}
	return decls
}

// MarkErrors records the error of every unusable transform as
// <Name>/error below load and removes stale ones.
func MarkErrors(t *tree.Tree, load int, r *Registry) {
	byName := make(map[string]*Transform, len(r.transforms))
	for _, tr := range r.transforms {
		byName[tr.Name] = tr
	}
	for _, n := range t.Children(load) {
		if e := t.Child(n, "error"); e >= 0 {
			t.Delete(e)
		}
		if tr, ok := byName[t.Label(n)]; ok && tr.Err != nil {
			t.SetValue(t.Append(n, "error"), tr.Err.Error())
		}
	}
}
