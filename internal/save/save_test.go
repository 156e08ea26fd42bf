package save

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/lenstree/api"
	"github.com/agentic-research/lenstree/internal/ingest"
	"github.com/agentic-research/lenstree/internal/lenses"
	"github.com/agentic-research/lenstree/internal/transform"
	"github.com/agentic-research/lenstree/internal/tree"
)

const (
	hostsText  = "127.0.0.1\tlocalhost\n# lan\n192.168.0.1 gw router\n10.0.0.1 vpn\n"
	fedoraText = "[fedora]\nname=Fedora\nenabled=1\n"
	shellsText = "/bin/sh\n/bin/bash\n"
)

type fixture struct {
	fs    billy.Filesystem
	tree  *tree.Tree
	cat   *ingest.Catalog
	reg   *transform.Registry
	clock time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	fs := memfs.New()
	for name, body := range map[string]string{
		"/etc/hosts":                   hostsText,
		"/etc/yum.repos.d/fedora.repo": fedoraText,
		"/etc/shells":                  shellsText,
	} {
		require.NoError(t, util.WriteFile(fs, name, []byte(body), 0o644))
	}
	f := &fixture{
		fs:    fs,
		tree:  tree.New(),
		reg:   transform.New(lenses.Defaults(), lenses.Lookup),
		clock: time.Unix(2000000000, 0),
	}
	var err error
	f.cat, _, err = ingest.NewEngine(fs, f.tree, f.reg, nil).Load(context.Background())
	require.NoError(t, err)
	return f
}

func (f *fixture) save(t *testing.T, mode Mode) *Report {
	t.Helper()
	c := &Coordinator{
		FS:       f.fs,
		Tree:     f.tree,
		Registry: f.reg,
		Catalog:  f.cat,
		Mode:     mode,
		Now:      func() time.Time { return f.clock },
	}
	rep, err := c.Save(context.Background())
	require.NoError(t, err)
	return rep
}

func (f *fixture) set(t *testing.T, expr, value string) {
	t.Helper()
	require.NoError(t, f.tree.Set(f.tree.Root(), expr, value))
}

func (f *fixture) get(t *testing.T, expr string) string {
	t.Helper()
	v, found, err := f.tree.Get(f.tree.Root(), expr)
	require.NoError(t, err, expr)
	require.True(t, found, expr)
	require.NotNil(t, v, expr)
	return *v
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := util.ReadFile(f.fs, name)
	require.NoError(t, err)
	return string(data)
}

func states(rep *Report) map[string]State {
	out := make(map[string]State)
	for _, o := range rep.Outcomes {
		out[o.File] = o.State
	}
	return out
}

func TestSave_UnmodifiedIsUntouched(t *testing.T) {
	f := setup(t)
	mtime := f.get(t, "/augeas/files/etc/hosts/mtime")

	rep := f.save(t, ModeOverwrite)
	assert.Empty(t, rep.Outcomes)
	assert.False(t, rep.Failed())
	assert.Equal(t, hostsText, f.read(t, "/etc/hosts"))
	assert.Equal(t, mtime, f.get(t, "/augeas/files/etc/hosts/mtime"))
}

func TestSave_EditRewritesOnlyThatFile(t *testing.T) {
	f := setup(t)
	before := f.get(t, "/augeas/files/etc/hosts/mtime")
	f.set(t, "/files/etc/hosts/1/canonical", "lh")

	rep := f.save(t, ModeOverwrite)
	assert.Equal(t, map[string]State{"/etc/hosts": Committed}, states(rep))
	assert.Equal(t, "127.0.0.1\tlh\n# lan\n192.168.0.1 gw router\n10.0.0.1 vpn\n", f.read(t, "/etc/hosts"))
	assert.Equal(t, fedoraText, f.read(t, "/etc/yum.repos.d/fedora.repo"))

	after := f.get(t, "/augeas/files/etc/hosts/mtime")
	assert.NotEqual(t, before, after)
	assert.NotEqual(t, "0", after)
	assert.Equal(t, ingest.FormatTime(f.clock), after)
	assert.Equal(t, "/files/etc/hosts", f.get(t, "/augeas/events/saved"))

	rep = f.save(t, ModeOverwrite)
	assert.Empty(t, rep.Outcomes)
	assert.Equal(t, after, f.get(t, "/augeas/files/etc/hosts/mtime"))
}

func TestSave_RevertedEditIsNoOp(t *testing.T) {
	f := setup(t)
	mtime := f.get(t, "/augeas/files/etc/hosts/mtime")
	f.set(t, "/files/etc/hosts/1/canonical", "lh")
	f.set(t, "/files/etc/hosts/1/canonical", "localhost")

	rep := f.save(t, ModeOverwrite)
	assert.Equal(t, map[string]State{"/etc/hosts": NoOp}, states(rep))
	assert.Equal(t, mtime, f.get(t, "/augeas/files/etc/hosts/mtime"))
	assert.False(t, f.tree.IsDirty(f.tree.Lookup(f.tree.Root(), "files")))
}

func TestSave_NoLensIsIsolated(t *testing.T) {
	f := setup(t)
	f.set(t, "/files/nowhere/entry", "1")
	f.set(t, "/files/etc/shells/3", "/bin/zsh")

	rep := f.save(t, ModeOverwrite)
	assert.True(t, rep.Failed())
	assert.Equal(t, map[string]State{"/nowhere/entry": Failed, "/etc/shells": Committed}, states(rep))
	var nl *transform.NoLensError
	assert.ErrorAs(t, rep.Err(), &nl)

	assert.Equal(t, "/bin/sh\n/bin/bash\n/bin/zsh\n", f.read(t, "/etc/shells"))
	assert.Equal(t, ingest.KindNoLens, f.get(t, "/augeas/files/nowhere/entry/error"))

	// the failed file stays dirty and fails again
	rep = f.save(t, ModeOverwrite)
	assert.Equal(t, map[string]State{"/nowhere/entry": Failed}, states(rep))
}

func TestSave_UnknownLensClaimsFile(t *testing.T) {
	f := setup(t)
	f.reg = transform.New([]api.TransformDecl{{Name: "Fake", Lens: "Fake.lns", Incl: []string{"/fake"}}}, lenses.Lookup)
	f.set(t, "/files/fake/entry", "value")

	rep := f.save(t, ModeOverwrite)
	require.True(t, rep.Failed())
	var nl *transform.NoLensError
	require.ErrorAs(t, rep.Err(), &nl)
	assert.Equal(t, "Fake", nl.Transform)
	assert.Equal(t, ingest.KindNoLens, f.get(t, "/augeas/files/fake/error"))
	_, err := f.fs.Stat("/fake")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSave_MultipleTransforms(t *testing.T) {
	f := setup(t)
	mtime := f.get(t, "/augeas/files/etc/yum.repos.d/fedora.repo/mtime")
	f.reg = transform.New(append(lenses.Defaults(), api.TransformDecl{
		Name: "Yum2", Lens: "Yum.lns", Incl: []string{"/etc/yum.repos.d/*"},
	}), lenses.Lookup)
	f.set(t, "/files/etc/yum.repos.d/fedora.repo/fedora/enabled", "0")

	rep := f.save(t, ModeOverwrite)
	require.True(t, rep.Failed())
	var mx *transform.MultipleTransformError
	assert.ErrorAs(t, rep.Err(), &mx)
	assert.Equal(t, fedoraText, f.read(t, "/etc/yum.repos.d/fedora.repo"))
	assert.Equal(t, mtime, f.get(t, "/augeas/files/etc/yum.repos.d/fedora.repo/mtime"))
	assert.Equal(t, ingest.KindSaveMxfm, f.get(t, "/augeas/files/etc/yum.repos.d/fedora.repo/error"))
}

func TestSave_PutFailureLeavesFile(t *testing.T) {
	f := setup(t)
	f.set(t, "/files/etc/hosts/1/canonical", "not a hostname")

	rep := f.save(t, ModeOverwrite)
	require.True(t, rep.Failed())
	assert.Equal(t, ingest.KindPutFailed, rep.Outcomes[0].Kind)
	assert.Equal(t, hostsText, f.read(t, "/etc/hosts"))
	assert.Equal(t, ingest.KindPutFailed, f.get(t, "/augeas/files/etc/hosts/error"))
	assert.Equal(t, "Hosts.lns", f.get(t, "/augeas/files/etc/hosts/error/lens"))

	f.set(t, "/files/etc/hosts/1/canonical", "fixed")
	rep = f.save(t, ModeOverwrite)
	assert.False(t, rep.Failed())
	ok, err := f.tree.Exists(f.tree.Root(), "/augeas/files/etc/hosts/error")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSave_CreatesNewFile(t *testing.T) {
	f := setup(t)
	f.set(t, "/files/etc/yum.repos.d/new.repo/newrepo/baseurl", "http://foo.com/")

	rep := f.save(t, ModeOverwrite)
	assert.Equal(t, map[string]State{"/etc/yum.repos.d/new.repo": Committed}, states(rep))
	assert.Equal(t, "[newrepo]\nbaseurl=http://foo.com/\n", f.read(t, "/etc/yum.repos.d/new.repo"))
	assert.Equal(t, "/files/etc/yum.repos.d/new.repo", f.get(t, "/augeas/files/etc/yum.repos.d/new.repo/path"))
	assert.Equal(t, "Yum.lns", f.get(t, "/augeas/files/etc/yum.repos.d/new.repo/lens"))

	_, ok := f.cat.Get("/etc/yum.repos.d/new.repo")
	assert.True(t, ok)
}

func TestSave_DeletesRemovedFile(t *testing.T) {
	f := setup(t)
	n, err := f.tree.Remove(f.tree.Root(), "/files/etc/shells")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	rep := f.save(t, ModeOverwrite)
	assert.Equal(t, map[string]State{"/etc/shells": Deleted}, states(rep))
	_, err = f.fs.Stat("/etc/shells")
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, -1, ingest.LookupMeta(f.tree, "/etc/shells"))
	assert.Equal(t, "/files/etc/shells", f.get(t, "/augeas/events/saved"))
}

func TestSave_RenumbersAfterWrite(t *testing.T) {
	f := setup(t)
	_, err := f.tree.Remove(f.tree.Root(), "/files/etc/hosts/2")
	require.NoError(t, err)

	rep := f.save(t, ModeOverwrite)
	assert.False(t, rep.Failed())
	assert.Equal(t, "127.0.0.1\tlocalhost\n# lan\n10.0.0.1 vpn\n", f.read(t, "/etc/hosts"))
	assert.Equal(t, "vpn", f.get(t, "/files/etc/hosts/2/canonical"))

	f.set(t, "/files/etc/hosts/2/canonical", "tunnel")
	f.save(t, ModeOverwrite)
	assert.Equal(t, "127.0.0.1\tlocalhost\n# lan\n10.0.0.1 tunnel\n", f.read(t, "/etc/hosts"))
}

func TestSave_BackupMode(t *testing.T) {
	f := setup(t)
	f.set(t, "/files/etc/shells/1", "/bin/dash")

	rep := f.save(t, ModeBackup)
	assert.False(t, rep.Failed())
	assert.Equal(t, shellsText, f.read(t, "/etc/shells"+BackupSuffix))
	assert.Equal(t, "/bin/dash\n/bin/bash\n", f.read(t, "/etc/shells"))
}

func TestSave_NewFileMode(t *testing.T) {
	f := setup(t)
	f.set(t, "/files/etc/shells/1", "/bin/dash")

	rep := f.save(t, ModeNewFile)
	assert.False(t, rep.Failed())
	assert.Equal(t, shellsText, f.read(t, "/etc/shells"))
	assert.Equal(t, "/bin/dash\n/bin/bash\n", f.read(t, "/etc/shells"+NewFileSuffix))
}

func TestSave_NoopMode(t *testing.T) {
	f := setup(t)
	mtime := f.get(t, "/augeas/files/etc/shells/mtime")
	f.set(t, "/files/etc/shells/1", "/bin/dash")

	rep := f.save(t, ModeNoop)
	assert.Equal(t, map[string]State{"/etc/shells": Pending}, states(rep))
	assert.False(t, rep.Changed())
	assert.Equal(t, shellsText, f.read(t, "/etc/shells"))
	assert.Equal(t, mtime, f.get(t, "/augeas/files/etc/shells/mtime"))
	assert.Equal(t, "/files/etc/shells", f.get(t, "/augeas/events/saved"))

	rep = f.save(t, ModeOverwrite)
	assert.Equal(t, map[string]State{"/etc/shells": Committed}, states(rep))
	assert.True(t, rep.Changed())
}

type recorder struct{ got []Outcome }

func (r *recorder) Record(_ context.Context, _ time.Time, o Outcome) error {
	r.got = append(r.got, o)
	return nil
}

func TestSave_JournalSeesEveryOutcome(t *testing.T) {
	f := setup(t)
	f.set(t, "/files/etc/shells/1", "/bin/dash")
	f.set(t, "/files/nowhere/x", "1")

	rec := &recorder{}
	c := &Coordinator{FS: f.fs, Tree: f.tree, Registry: f.reg, Catalog: f.cat, Journal: rec}
	rep, err := c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rep.Outcomes, rec.got)
	assert.Len(t, rec.got, 2)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeOverwrite, m)
	m, err = ParseMode("backup")
	require.NoError(t, err)
	assert.Equal(t, ModeBackup, m)
	_, err = ParseMode("sideways")
	assert.Error(t, err)
}
