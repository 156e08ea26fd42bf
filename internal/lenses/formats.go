package lenses

import "github.com/agentic-research/lenstree/internal/lens"

// hosts parses /etc/hosts. Records are numbered nodes holding ipaddr,
// canonical, any number of alias nodes and an optional trailing comment.
func hosts() *lens.Lens {
	word := `[^# \t\n]+`
	field := func(name string) *lens.Lens {
		return lens.Subtree(lens.Concat(lens.Label(name), lens.Store(word)))
	}
	inline := lens.Subtree(lens.Concat(
		lens.Label("#comment"),
		lens.Del(`[ \t]*#[ \t]*`, " # "),
		lens.Store(trimmed),
		eol(),
	))
	record := lens.Subtree(lens.Concat(
		lens.Seq("host"),
		field("ipaddr"),
		lens.Del(`[ \t]+`, "\t"),
		field("canonical"),
		lens.Star(lens.Concat(lens.Del(`[ \t]+`, " "), field("alias"))),
		lens.Union(inline, eol()),
	))
	return lens.Star(lens.Union(empty("#"), comment("#", "# "), record))
}

// iniFile parses files made of [section] headers followed by key=value
// entries, as used by yum. Comments start with # or ;.
func iniFile() *lens.Lens {
	entry := lens.Subtree(lens.Concat(
		lens.Key(`[A-Za-z0-9][A-Za-z0-9_.-]*`),
		lens.Del(`[ \t]*=[ \t]*`, "="),
		lens.Maybe(lens.Store(trimmed)),
		eol(),
	))
	blank, note := empty("[#;]"), comment("[#;]", "# ")
	section := lens.Subtree(lens.Concat(
		lens.Del(`\[`, "["),
		lens.Key(`[^\]\n/]+`),
		lens.Del(`\][ \t]*\n`, "]\n"),
		lens.Star(lens.Union(blank, note, entry)),
	))
	return lens.Concat(lens.Star(lens.Union(blank, note)), lens.Star(section))
}

// shellvars parses NAME=value assignments as found in sysconfig files.
// Quoting is kept in the skeleton so values are stored unquoted.
func shellvars() *lens.Lens {
	value := lens.Union(
		lens.Store(`[^ \t\n"'#;]+`),
		lens.Concat(lens.Del(`"`, `"`), lens.Store(`[^"\n]*`), lens.Del(`"`, `"`)),
		lens.Concat(lens.Del(`'`, `'`), lens.Store(`[^'\n]*`), lens.Del(`'`, `'`)),
	)
	entry := lens.Subtree(lens.Concat(
		lens.Maybe(lens.Del(`export[ \t]+`, "export ")),
		lens.Key(`[A-Za-z_][A-Za-z0-9_]*`),
		lens.Del(`=`, "="),
		lens.Maybe(value),
		lens.Maybe(lens.Del(`[ \t]+#[^\n]*`, " #")),
		eol(),
	))
	return lens.Star(lens.Union(empty("#"), comment("#", "# "), entry))
}

// simplelines stores every non-comment line as a numbered node.
func simplelines() *lens.Lens {
	line := lens.Subtree(lens.Concat(
		lens.Seq("line"),
		lens.Store(`[^# \t\n]([^\n]*[^ \t\n])?`),
		eol(),
	))
	return lens.Star(lens.Union(empty("#"), comment("#", "# "), line))
}
