package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hosts(t *testing.T) *Tree {
	t.Helper()
	tr := New()
	h := tr.Ensure(tr.Root(), "files", "etc", "hosts")
	c := tr.Append(h, "#comment")
	tr.SetValue(c, "static names")
	for i, rec := range [][]string{
		{"127.0.0.1", "localhost", "localhost.localdomain"},
		{"192.168.0.1", "gw", "router", "gateway"},
	} {
		r := tr.Append(h, string(rune('1'+i)))
		tr.SetValue(tr.Append(r, "ipaddr"), rec[0])
		tr.SetValue(tr.Append(r, "canonical"), rec[1])
		for _, a := range rec[2:] {
			tr.SetValue(tr.Append(r, "alias"), a)
		}
	}
	return tr
}

func get(t *testing.T, tr *Tree, expr string) string {
	t.Helper()
	v, found, err := tr.Get(tr.Root(), expr)
	require.NoError(t, err, expr)
	require.True(t, found, expr)
	require.NotNil(t, v, expr)
	return *v
}

func TestGet_SingleMatch(t *testing.T) {
	tr := hosts(t)
	assert.Equal(t, "gw", get(t, tr, "/files/etc/hosts/2/canonical"))

	v, found, err := tr.Get(tr.Root(), "/files/etc/hosts/3/canonical")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)

	v, found, err = tr.Get(tr.Root(), "/files/etc/hosts/2")
	require.NoError(t, err)
	assert.True(t, found, "a node without a value is still present")
	assert.Nil(t, v)

	require.NoError(t, tr.Set(tr.Root(), "/files/etc/hosts/2/canonical", ""))
	v, found, err = tr.Get(tr.Root(), "/files/etc/hosts/2/canonical")
	require.NoError(t, err)
	assert.True(t, found)
	require.NotNil(t, v)
	assert.Empty(t, *v)

	_, _, err = tr.Get(tr.Root(), "/files/etc/hosts/2/alias")
	var amb *AmbiguousPathError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, 2, amb.Count)
}

func TestSet_OverwritesExisting(t *testing.T) {
	tr := hosts(t)
	tr.ClearDirty(tr.Root())

	require.NoError(t, tr.Set(tr.Root(), "/files/etc/hosts/1/canonical", "lh"))
	assert.Equal(t, "lh", get(t, tr, "/files/etc/hosts/1/canonical"))
	assert.True(t, tr.IsDirty(tr.Lookup(tr.Root(), "files", "etc", "hosts")))
	assert.False(t, tr.IsDirty(tr.Lookup(tr.Root(), "files", "etc", "hosts", "2")))
}

func TestSet_SameValueStaysClean(t *testing.T) {
	tr := hosts(t)
	tr.ClearDirty(tr.Root())

	require.NoError(t, tr.Set(tr.Root(), "/files/etc/hosts/1/canonical", "localhost"))
	assert.Zero(t, tr.DirtyCount())
}

func TestSet_CreatesMissingChain(t *testing.T) {
	tr := hosts(t)
	require.NoError(t, tr.Set(tr.Root(), "/files/etc/hosts/3/ipaddr", "10.0.0.1"))
	require.NoError(t, tr.Set(tr.Root(), "/files/etc/hosts/3/canonical", "new"))
	assert.Equal(t, "10.0.0.1", get(t, tr, "/files/etc/hosts/3/ipaddr"))

	h := tr.Lookup(tr.Root(), "files", "etc", "hosts")
	kids := tr.Children(h)
	assert.Equal(t, "3", tr.Label(kids[len(kids)-1]))
}

func TestSet_AppendsAfterLastSameLabel(t *testing.T) {
	tr := hosts(t)
	require.NoError(t, tr.Set(tr.Root(), "/files/etc/hosts/1/alias[last()+1]", "lh2"))

	r := tr.Lookup(tr.Root(), "files", "etc", "hosts", "1")
	var labels []string
	for _, c := range tr.Children(r) {
		labels = append(labels, tr.Label(c))
	}
	assert.Equal(t, []string{"ipaddr", "canonical", "alias", "alias"}, labels)
	assert.Equal(t, "lh2", get(t, tr, "/files/etc/hosts/1/alias[2]"))
}

func TestSet_ExplicitPosition(t *testing.T) {
	tr := hosts(t)
	require.NoError(t, tr.Set(tr.Root(), "/files/etc/hosts/2/alias[3]", "gw3"))
	assert.Equal(t, "gw3", get(t, tr, "/files/etc/hosts/2/alias[3]"))

	err := tr.Set(tr.Root(), "/files/etc/hosts/2/alias[7]", "nope")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestSet_AmbiguousPrefix(t *testing.T) {
	tr := hosts(t)
	err := tr.Set(tr.Root(), "/files/etc/hosts/*/comment", "x")
	var amb *AmbiguousPathError
	require.ErrorAs(t, err, &amb)

	err = tr.Set(tr.Root(), "/files/etc/hosts/2/alias", "x")
	require.ErrorAs(t, err, &amb)
}

func TestSet_ReadOnlySubtree(t *testing.T) {
	tr := hosts(t)
	meta := tr.Ensure(tr.Root(), "augeas", "files")
	tr.SetValue(tr.Ensure(meta, "etc", "hosts", "path"), "/files/etc/hosts")
	tr.Protect(meta)

	err := tr.Set(tr.Root(), "/augeas/files/etc/hosts/path", "x")
	assert.ErrorIs(t, err, ErrReadOnly)
	err = tr.Set(tr.Root(), "/augeas/files/etc/new", "x")
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = tr.Remove(tr.Root(), "/augeas/files/etc")
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Equal(t, "/files/etc/hosts", get(t, tr, "/augeas/files/etc/hosts/path"))
}

func TestClear_DropsValue(t *testing.T) {
	tr := hosts(t)
	require.NoError(t, tr.Clear(tr.Root(), "/files/etc/hosts/1/canonical"))
	v, found, err := tr.Get(tr.Root(), "/files/etc/hosts/1/canonical")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, v)
	ok, err := tr.Exists(tr.Root(), "/files/etc/hosts/1/canonical")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemove_CountsSubtree(t *testing.T) {
	tr := hosts(t)
	n, err := tr.Remove(tr.Root(), "/files/etc/hosts/2")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = tr.Remove(tr.Root(), "/files/etc/hosts/*/alias")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tr.Remove(tr.Root(), "/files/nothing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemove_NestedMatches(t *testing.T) {
	tr := hosts(t)
	n, err := tr.Remove(tr.Root(), "/files/etc/hosts | /files/etc/hosts/1")
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Negative(t, tr.Lookup(tr.Root(), "files", "etc", "hosts"))
}

func TestInsert_BeforeAndAfter(t *testing.T) {
	tr := hosts(t)
	require.NoError(t, tr.Insert(tr.Root(), "/files/etc/hosts/1/canonical", "alias", false))
	require.NoError(t, tr.Insert(tr.Root(), "/files/etc/hosts/1/ipaddr", "#comment", true))

	r := tr.Lookup(tr.Root(), "files", "etc", "hosts", "1")
	var labels []string
	for _, c := range tr.Children(r) {
		labels = append(labels, tr.Label(c))
	}
	assert.Equal(t, []string{"#comment", "ipaddr", "canonical", "alias", "alias"}, labels)

	err := tr.Insert(tr.Root(), "/files/etc/hosts/2/alias", "x", true)
	var amb *AmbiguousPathError
	assert.ErrorAs(t, err, &amb)
}

func TestMove_Transplants(t *testing.T) {
	tr := hosts(t)
	require.NoError(t, tr.Move(tr.Root(), "/files/etc/hosts/2", "/files/etc/hosts/9"))
	assert.Equal(t, "gw", get(t, tr, "/files/etc/hosts/9/canonical"))
	ok, err := tr.Exists(tr.Root(), "/files/etc/hosts/2")
	require.NoError(t, err)
	assert.False(t, ok)

	err = tr.Move(tr.Root(), "/files/etc/hosts", "/files/etc/hosts/1/x")
	assert.Error(t, err)
}

func TestMove_OntoAncestor(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Set(tr.Root(), "/a/b/c", "v"))
	require.NoError(t, tr.Set(tr.Root(), "/a/b", "bv"))
	require.NoError(t, tr.Set(tr.Root(), "/a/other", "gone"))

	require.NoError(t, tr.Move(tr.Root(), "/a/b", "/a"))
	assert.Equal(t, "bv", get(t, tr, "/a"))
	assert.Equal(t, "v", get(t, tr, "/a/c"))
	for _, expr := range []string{"/a/b", "/a/other"} {
		ok, err := tr.Exists(tr.Root(), expr)
		require.NoError(t, err)
		assert.False(t, ok, expr)
	}
	a, err := tr.Match(tr.Root(), "/a")
	require.NoError(t, err)
	assert.True(t, tr.IsDirty(a[0]))

	require.NoError(t, tr.Set(tr.Root(), "/x/y/z", "deep"))
	require.NoError(t, tr.Move(tr.Root(), "/x/y/z", "/x"))
	assert.Equal(t, "deep", get(t, tr, "/x"))
	kids, err := tr.Match(tr.Root(), "/x/*")
	require.NoError(t, err)
	assert.Empty(t, kids)

	err = tr.Move(tr.Root(), "/a", "/a")
	assert.Error(t, err)
}

func TestPathOf_Positions(t *testing.T) {
	tr := hosts(t)
	nodes, err := tr.Match(tr.Root(), "/files/etc/hosts/*/alias")
	require.NoError(t, err)
	var paths []string
	for _, n := range nodes {
		paths = append(paths, tr.PathOf(n))
	}
	assert.Equal(t, []string{
		"/files/etc/hosts/1/alias",
		"/files/etc/hosts/2/alias[1]",
		"/files/etc/hosts/2/alias[2]",
	}, paths)
}

func TestDelete_ReusesSlots(t *testing.T) {
	tr := New()
	a := tr.Append(tr.Root(), "a")
	tr.MarkDirty(a)
	assert.Equal(t, 1, tr.Delete(a))
	assert.False(t, tr.Valid(a))
	assert.False(t, tr.IsDirty(a))
	b := tr.Append(tr.Root(), "b")
	assert.Equal(t, a, b)
}
