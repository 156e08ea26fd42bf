package transform

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/lenstree/api"
	"github.com/agentic-research/lenstree/internal/lens"
	"github.com/agentic-research/lenstree/internal/tree"
)

var fake = lens.Star(lens.Subtree(lens.Concat(lens.Key(`[a-z]+`), lens.Del(`\n`, "\n"))))

func lookup(name string) (*lens.Lens, bool) {
	if name == "Fake.lns" {
		return fake, true
	}
	return nil, false
}

func decls() []api.TransformDecl {
	return []api.TransformDecl{
		{Name: "Hosts", Lens: "Fake.lns", Incl: []string{"/etc/hosts"}, Excl: []string{"*.bak"}},
		{Name: "Yum", Lens: "Fake.lns", Incl: []string{"/etc/yum.conf", "/etc/yum.repos.d/*.repo"}, Excl: []string{"*~"}},
	}
}

func TestMatches_InclExcl(t *testing.T) {
	r := New(decls(), lookup)
	yum := r.Transforms()[1]
	assert.True(t, yum.Matches("/etc/yum.repos.d/fedora.repo"))
	assert.False(t, yum.Matches("/etc/yum.repos.d/fedora.repo~"))
	assert.False(t, yum.Matches("/etc/yum.repos.d/sub/fedora.repo"))
	assert.True(t, yum.Matches("/etc/yum.conf"))

	hosts := r.Transforms()[0]
	assert.True(t, hosts.Matches("/etc/hosts"))
	assert.False(t, hosts.Matches("/etc/hosts.allow"))
}

func TestLookup_Outcomes(t *testing.T) {
	ds := append(decls(),
		api.TransformDecl{Name: "Yum2", Lens: "Fake.lns", Incl: []string{"/etc/yum.repos.d/*"}},
		api.TransformDecl{Name: "Broken", Lens: "Missing.lns", Incl: []string{"/fake"}},
	)
	r := New(ds, lookup)

	tr, err := r.Lookup("/etc/hosts")
	require.NoError(t, err)
	assert.Equal(t, "Hosts", tr.Name)

	_, err = r.Lookup("/etc/passwd")
	var nl *NoLensError
	require.ErrorAs(t, err, &nl)
	assert.Empty(t, nl.Transform)

	_, err = r.Lookup("/fake")
	require.ErrorAs(t, err, &nl)
	assert.Equal(t, "Broken", nl.Transform)
	assert.ErrorIs(t, r.Transforms()[3].Err, ErrUnknownLens)

	_, err = r.Lookup("/etc/yum.repos.d/fedora.repo")
	var mx *MultipleTransformError
	require.ErrorAs(t, err, &mx)
	assert.Equal(t, []string{"Yum", "Yum2"}, mx.Transforms)
}

func TestParse_HCLAndJSON(t *testing.T) {
	cfg, err := Parse("x.hcl", []byte(`
transform "Hosts" {
  lens = "Hosts.lns"
  incl = ["/etc/hosts"]
}
transform "Yum" {
  lens = "Yum.lns"
  incl = ["/etc/yum.conf", "/etc/yum.repos.d/*.repo"]
  excl = ["*.rpmnew"]
}
`))
	require.NoError(t, err)
	require.Len(t, cfg.Transforms, 2)
	assert.Equal(t, "Hosts", cfg.Transforms[0].Name)
	assert.Empty(t, cfg.Transforms[0].Excl)
	assert.Equal(t, []string{"*.rpmnew"}, cfg.Transforms[1].Excl)

	cfg, err = Parse("x.json", []byte(`{"transform": {"Shells": {"lens": "Simplelines.lns", "incl": ["/etc/shells"]}}}`))
	require.NoError(t, err)
	require.Len(t, cfg.Transforms, 1)
	assert.Equal(t, "Simplelines.lns", cfg.Transforms[0].Lens)

	_, err = Parse("x.hcl", []byte(`transform "A" {}`))
	assert.Error(t, err)
}

func TestFormat_RoundTrips(t *testing.T) {
	src := Format(decls())
	cfg, err := Parse("out.hcl", src)
	require.NoError(t, err)
	assert.Equal(t, decls(), cfg.Transforms)
}

func TestLoadDir(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/lenses/b.hcl", Format(decls()[1:]), 0o644))
	require.NoError(t, util.WriteFile(fs, "/lenses/a.hcl", Format(decls()[:1]), 0o644))
	require.NoError(t, util.WriteFile(fs, "/lenses/README", []byte("ignored"), 0o644))

	got, err := LoadDir(fs, "/lenses")
	require.NoError(t, err)
	assert.Equal(t, decls(), got)

	got, err = LoadDir(fs, "/missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTreeStoreAndDecls(t *testing.T) {
	tr := tree.New()
	load := tr.Ensure(tr.Root(), "augeas", "load")
	Store(tr, load, decls())
	assert.Equal(t, decls(), Decls(tr, load))

	ds := append(decls(), api.TransformDecl{Name: "Fake", Lens: "Nope.lns", Incl: []string{"/fake"}})
	Store(tr, load, ds)
	MarkErrors(tr, load, New(Decls(tr, load), lookup))
	v, found, err := tr.Get(tr.Root(), "/augeas/load/Fake/error")
	require.NoError(t, err)
	assert.True(t, found)
	require.NotNil(t, v)
	assert.Contains(t, *v, "Nope.lns")

	ok, err := tr.Exists(tr.Root(), "/augeas/load/Hosts/error")
	require.NoError(t, err)
	assert.False(t, ok)
}
