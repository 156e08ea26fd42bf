// Package lens implements bidirectional transformations between text and
// labeled trees. A Lens is built from a small closed set of combinators;
// Get parses text into a tree fragment plus a Skeleton holding the layout
// the tree does not represent, and Put regenerates text from an edited
// fragment and that skeleton.
package lens

import (
	"fmt"
	"regexp"
)

// Kind identifies a combinator.
type Kind uint8

const (
	KindDel Kind = iota
	KindStore
	KindKey
	KindLabel
	KindValue
	KindSeq
	KindCounter
	KindConcat
	KindUnion
	KindStar
	KindMaybe
	KindSubtree
)

var kindNames = [...]string{
	KindDel:     "del",
	KindStore:   "store",
	KindKey:     "key",
	KindLabel:   "label",
	KindValue:   "value",
	KindSeq:     "seq",
	KindCounter: "counter",
	KindConcat:  "concat",
	KindUnion:   "union",
	KindStar:    "star",
	KindMaybe:   "maybe",
	KindSubtree: "subtree",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Lens is an immutable combinator tree.
type Lens struct {
	kind Kind
	name string

	pattern string
	re      *regexp.Regexp // anchored at the start of the input
	exact   *regexp.Regexp // anchored at both ends, for put-time checks
	text    string         // del default, label, value or counter name

	kids []*Lens

	// keyed is true when this lens sets the label of the enclosing node,
	// valued when it sets its value. Neither looks through a Subtree.
	keyed  bool
	valued bool
	// treeless lenses produce nothing in the tree at any depth.
	treeless bool
}

// Tree is the fragment exchanged with Get and Put. A nil Value means the
// node has no value; an empty Label marks a hidden node.
type Tree struct {
	Label    string
	Value    *string
	Children []*Tree
}

// Kind returns the combinator kind of l.
func (l *Lens) Kind() Kind { return l.kind }

// Name returns the name given with Named, or the combinator kind.
func (l *Lens) Name() string {
	if l.name != "" {
		return l.name
	}
	return l.kind.String()
}

// Named returns a copy of l carrying name in error messages.
func (l *Lens) Named(name string) *Lens {
	c := *l
	c.name = name
	return &c
}

func compile(pattern string) (re, exact *regexp.Regexp) {
	re = regexp.MustCompile(`\A(?:` + pattern + `)`)
	re.Longest()
	exact = regexp.MustCompile(`\A(?:` + pattern + `)\z`)
	return re, exact
}

func atom(kind Kind, pattern string) *Lens {
	l := &Lens{kind: kind, pattern: pattern}
	l.re, l.exact = compile(pattern)
	return l
}

// Del matches pattern and keeps the text only in the skeleton. dflt is
// written when a node is created without prior layout.
func Del(pattern, dflt string) *Lens {
	l := atom(KindDel, pattern)
	l.text = dflt
	l.treeless = true
	if !l.exact.MatchString(dflt) {
		panic(fmt.Sprintf("lens: del default %q does not match /%s/", dflt, pattern))
	}
	return l
}

// Store matches pattern and makes the text the value of the enclosing node.
func Store(pattern string) *Lens {
	l := atom(KindStore, pattern)
	l.valued = true
	return l
}

// Key matches pattern and makes the text the label of the enclosing node.
func Key(pattern string) *Lens {
	l := atom(KindKey, pattern)
	l.keyed = true
	return l
}

// Label sets a constant label on the enclosing node without consuming text.
func Label(name string) *Lens {
	return &Lens{kind: KindLabel, text: name, keyed: true}
}

// Value sets a constant value on the enclosing node without consuming text.
func Value(v string) *Lens {
	return &Lens{kind: KindValue, text: v, valued: true}
}

// Seq labels the enclosing node with the next number of counter name,
// starting at 1 for every Get.
func Seq(name string) *Lens {
	return &Lens{kind: KindSeq, text: name, keyed: true}
}

// Counter resets counter name so the next Seq yields 1.
func Counter(name string) *Lens {
	return &Lens{kind: KindCounter, text: name, treeless: true}
}

func composite(kind Kind, kids []*Lens) *Lens {
	l := &Lens{kind: kind, kids: kids, treeless: true}
	for _, k := range kids {
		l.keyed = l.keyed || k.keyed
		l.valued = l.valued || k.valued
		l.treeless = l.treeless && k.treeless
	}
	return l
}

// Concat matches each lens in turn.
func Concat(lenses ...*Lens) *Lens {
	if len(lenses) == 1 {
		return lenses[0]
	}
	return composite(KindConcat, lenses)
}

// Union is ordered choice: the first alternative that matches wins.
func Union(lenses ...*Lens) *Lens {
	if len(lenses) == 1 {
		return lenses[0]
	}
	return composite(KindUnion, lenses)
}

// Star matches l zero or more times.
func Star(l *Lens) *Lens { return composite(KindStar, []*Lens{l}) }

// Plus matches l one or more times.
func Plus(l *Lens) *Lens { return Concat(l, Star(l)) }

// Maybe matches l zero or one time.
func Maybe(l *Lens) *Lens { return composite(KindMaybe, []*Lens{l}) }

// Subtree wraps whatever l produces into one new child node.
func Subtree(l *Lens) *Lens {
	return &Lens{kind: KindSubtree, kids: []*Lens{l}}
}
