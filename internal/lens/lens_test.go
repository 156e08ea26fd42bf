package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	eol     = Del(`[ \t]*\n`, "\n")
	blank   = Subtree(Del(`[ \t]*(#[ \t]*)?\n`, "\n"))
	comment = Subtree(Concat(Label("#comment"), Del(`[ \t]*#[ \t]*`, "# "), Store(`[^ \t\n]([^\n]*[^ \t\n])?`), eol))
	quoted  = Concat(Del(`"`, `"`), Store(`[^"\n]*`), Del(`"`, `"`))
	bare    = Store(`[^ \t\n"#]+`)
	kvEntry = Subtree(Concat(Key(`[A-Za-z][A-Za-z0-9_]*`), Del(`[ \t]*=[ \t]*`, "="), Maybe(Union(bare, quoted)), eol))
	kv      = Star(Union(blank, comment, kvEntry)).Named("Test.lns")
)

const kvText = "# settings\n" +
	"name = alpha\n" +
	"\n" +
	"path=\"/usr/local bin\"\n" +
	"empty=\n" +
	"size=3   \n"

func str(s string) *string { return &s }

func child(t *testing.T, tr *Tree, label string) *Tree {
	t.Helper()
	for _, c := range tr.Children {
		if c.Label == label {
			return c
		}
	}
	require.Failf(t, "missing child", "no child %q", label)
	return nil
}

func TestGet_BuildsFragment(t *testing.T) {
	tr, sk, err := Get(kv, kvText)
	require.NoError(t, err)
	require.NotNil(t, sk)

	var labels []string
	for _, c := range tr.Children {
		labels = append(labels, c.Label)
	}
	assert.Equal(t, []string{"#comment", "name", "", "path", "empty", "size"}, labels)
	assert.Equal(t, "settings", *child(t, tr, "#comment").Value)
	assert.Equal(t, "alpha", *child(t, tr, "name").Value)
	assert.Equal(t, "/usr/local bin", *child(t, tr, "path").Value)
	assert.Nil(t, child(t, tr, "empty").Value)
	assert.Equal(t, "3", *child(t, tr, "size").Value)
	assert.Nil(t, tr.Children[2].Value)
}

func TestPut_RoundTrip(t *testing.T) {
	tr, sk, err := Get(kv, kvText)
	require.NoError(t, err)
	out, err := Put(kv, tr, sk)
	require.NoError(t, err)
	assert.Equal(t, kvText, out)

	// the skeleton is not consumed by a put
	out, err = Put(kv, tr, sk)
	require.NoError(t, err)
	assert.Equal(t, kvText, out)
}

func TestPut_EditKeepsLayout(t *testing.T) {
	tr, sk, err := Get(kv, kvText)
	require.NoError(t, err)
	child(t, tr, "size").Value = str("4")
	child(t, tr, "path").Value = str("plain")

	out, err := Put(kv, tr, sk)
	require.NoError(t, err)
	assert.Equal(t, "# settings\nname = alpha\n\npath=\"plain\"\nempty=\nsize=4   \n", out)
}

func TestPut_SwitchesBranchWhenValueNoLongerFits(t *testing.T) {
	tr, sk, err := Get(kv, kvText)
	require.NoError(t, err)
	child(t, tr, "name").Value = str("two words")

	out, err := Put(kv, tr, sk)
	require.NoError(t, err)
	assert.Contains(t, out, "name = \"two words\"\n")
}

func TestPut_AddRemoveReorder(t *testing.T) {
	tr, sk, err := Get(kv, kvText)
	require.NoError(t, err)

	// drop name, swap path and size, append color
	kids := tr.Children
	tr.Children = []*Tree{kids[0], kids[2], kids[5], kids[4], kids[3], {Label: "color", Value: str("red")}}

	out, err := Put(kv, tr, sk)
	require.NoError(t, err)
	assert.Equal(t, "# settings\n\nsize=3   \nempty=\npath=\"/usr/local bin\"\ncolor=red\n", out)
}

func TestPut_RemovalKeepsLayoutOfSameLabelSiblings(t *testing.T) {
	anyComment := Subtree(Concat(Label("#comment"), Del(`[ \t]*[#;][ \t]*`, "# "), Store(`[^ \t\n]([^\n]*[^ \t\n])?`), eol))
	l := Star(Union(anyComment, kvEntry)).Named("Semi.lns")
	const text = "# hash\n;semi\nkey=1\n;  last\n"

	tr, sk, err := Get(l, text)
	require.NoError(t, err)
	tr.Children = tr.Children[1:]
	out, err := Put(l, tr, sk)
	require.NoError(t, err)
	assert.Equal(t, ";semi\nkey=1\n;  last\n", out)

	// an edited value still takes the layout at its position
	tr, sk, err = Get(l, text)
	require.NoError(t, err)
	tr.Children[1].Value = str("changed")
	out, err = Put(l, tr, sk)
	require.NoError(t, err)
	assert.Equal(t, "# hash\n;changed\nkey=1\n;  last\n", out)
}

func TestPut_RejectsUnwritableValue(t *testing.T) {
	tr, sk, err := Get(kv, kvText)
	require.NoError(t, err)
	child(t, tr, "size").Value = str("a\nb")

	_, err = Put(kv, tr, sk)
	var pe *PutError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Test.lns", pe.Lens)
	assert.Equal(t, "size", pe.Path)
}

func TestPut_RejectsUnknownNode(t *testing.T) {
	tr, sk, err := Get(kv, kvText)
	require.NoError(t, err)
	tr.Children = append(tr.Children, &Tree{Label: "bad label"})

	_, err = Put(kv, tr, sk)
	var pe *PutError
	assert.ErrorAs(t, err, &pe)
}

func TestCreate_UsesDefaults(t *testing.T) {
	out, err := Create(kv, &Tree{Children: []*Tree{
		{Label: "#comment", Value: str("generated")},
		{Label: "a", Value: str("1")},
		{Label: "b"},
		{Label: "c", Value: str("x y")},
	}})
	require.NoError(t, err)
	assert.Equal(t, "# generated\na=1\nb=\nc=\"x y\"\n", out)
}

func TestGet_ParseErrorPosition(t *testing.T) {
	_, _, err := Get(kv, "name = alpha\n!bad\n")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 13, pe.Pos)
	assert.Equal(t, 2, pe.Line)
	assert.Equal(t, 1, pe.Col)
	assert.Equal(t, "Test.lns", pe.Lens)

	_, _, err = Get(kv, "name = alpha")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Line)
}

func TestSeq_NumbersNodes(t *testing.T) {
	lines := Star(Subtree(Concat(Seq("line"), Store(`[^\n]+`), Del(`\n`, "\n"))))
	tr, sk, err := Get(lines, "a\nb\nc\n")
	require.NoError(t, err)
	require.Len(t, tr.Children, 3)
	for i, want := range []string{"1", "2", "3"} {
		assert.Equal(t, want, tr.Children[i].Label)
	}

	tr.Children = append(tr.Children, &Tree{Label: "4", Value: str("d")})
	out, err := Put(lines, tr, sk)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\nd\n", out)

	tr.Children[3].Label = "x"
	_, err = Put(lines, tr, sk)
	assert.Error(t, err)
}

func TestUnion_BacktracksCounters(t *testing.T) {
	rec := Subtree(Concat(Seq("r"), Store(`[0-9]+`), Del(`;`, ";")))
	other := Subtree(Concat(Label("word"), Store(`[a-z0-9]+`), Del(`\.`, ".")))
	l := Star(Union(rec, other))

	tr, _, err := Get(l, "12.34;")
	require.NoError(t, err)
	require.Len(t, tr.Children, 2)
	assert.Equal(t, "word", tr.Children[0].Label)
	assert.Equal(t, "1", tr.Children[1].Label)
}

func TestPlus_RequiresOne(t *testing.T) {
	digits := Plus(Subtree(Concat(Label("d"), Store(`[0-9]`))))
	_, _, err := Get(digits, "")
	assert.Error(t, err)

	tr, sk, err := Get(digits, "123")
	require.NoError(t, err)
	assert.Len(t, tr.Children, 3)
	out, err := Put(digits, tr, sk)
	require.NoError(t, err)
	assert.Equal(t, "123", out)
}

func TestDel_DefaultMustMatch(t *testing.T) {
	assert.Panics(t, func() { Del(`[ \t]+`, "") })
}
