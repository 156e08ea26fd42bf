// Package lenses is the built-in lens library and the transforms that are
// loaded unless the caller opts out of them.
package lenses

import (
	"sort"
	"sync"

	"github.com/agentic-research/lenstree/api"
	"github.com/agentic-research/lenstree/internal/lens"
)

// Building blocks shared by the line-oriented lenses.
const (
	// text with no leading or trailing blanks
	trimmed = `[^ \t\n]([^\n]*[^ \t\n])?`
)

func eol() *lens.Lens { return lens.Del(`[ \t]*\n`, "\n") }

// empty matches a blank line, or a comment marker with nothing after it,
// as a hidden node.
func empty(marker string) *lens.Lens {
	return lens.Subtree(lens.Del(`[ \t]*(`+marker+`[ \t]*)?\n`, "\n"))
}

func comment(marker, dflt string) *lens.Lens {
	return lens.Subtree(lens.Concat(
		lens.Label("#comment"),
		lens.Del(`[ \t]*`+marker+`[ \t]*`, dflt),
		lens.Store(trimmed),
		eol(),
	))
}

var builtins = sync.OnceValue(func() map[string]*lens.Lens {
	return map[string]*lens.Lens{
		"Hosts.lns":       hosts().Named("Hosts.lns"),
		"Yum.lns":         iniFile().Named("Yum.lns"),
		"IniFile.lns":     iniFile().Named("IniFile.lns"),
		"Shellvars.lns":   shellvars().Named("Shellvars.lns"),
		"Simplelines.lns": simplelines().Named("Simplelines.lns"),
	}
})

// Lookup returns the built-in lens called name.
func Lookup(name string) (*lens.Lens, bool) {
	l, ok := builtins()[name]
	return l, ok
}

// Names lists the built-in lenses in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins()))
	for n := range builtins() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Excludes are backup and package-manager leftovers no transform manages.
var Excludes = []string{"*~", "*.bak", "*.orig", "*.augnew", "*.augsave", "*.rpmsave", "*.rpmnew", "*.dpkg-old", "*.dpkg-new"}

// Defaults returns the standard transforms.
func Defaults() []api.TransformDecl {
	decl := func(name, lensName string, incl ...string) api.TransformDecl {
		return api.TransformDecl{
			Name: name,
			Lens: lensName,
			Incl: incl,
			Excl: append([]string(nil), Excludes...),
		}
	}
	return []api.TransformDecl{
		decl("Hosts", "Hosts.lns", "/etc/hosts"),
		decl("Yum", "Yum.lns", "/etc/yum.conf", "/etc/yum.repos.d/*.repo"),
		decl("Shellvars", "Shellvars.lns", "/etc/sysconfig/network-scripts/ifcfg-*", "/etc/environment"),
		decl("Simplelines", "Simplelines.lns", "/etc/shells"),
	}
}
