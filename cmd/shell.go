package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/agentic-research/lenstree/internal/control"
	"github.com/agentic-research/lenstree/internal/save"
	"github.com/agentic-research/lenstree/internal/session"
)

var errUsage = errors.New("usage")

const insUsage = "ins LABEL before|after PATH"

// shell runs tree commands against one session and remembers whether any
// of them changed the tree.
type shell struct {
	sess    *session.Session
	ctl     *control.Controller
	out     io.Writer
	mutated bool
}

type shellCmd struct {
	usage  string
	minArg int
	maxArg int
	mutate bool
	run    func(sh *shell, ctx context.Context, args []string) error
}

var shellCmds = map[string]shellCmd{
	"match": {usage: "match EXPR", minArg: 1, maxArg: 1, run: (*shell).match},
	"get":   {usage: "get PATH", minArg: 1, maxArg: 1, run: (*shell).get},
	"set":   {usage: "set PATH [VALUE]", minArg: 1, maxArg: 2, mutate: true, run: (*shell).set},
	"clear": {usage: "clear PATH", minArg: 1, maxArg: 1, mutate: true, run: (*shell).clear},
	"rm":    {usage: "rm PATH", minArg: 1, maxArg: 1, mutate: true, run: (*shell).rm},
	"ins":   {usage: insUsage, minArg: 3, maxArg: 3, mutate: true, run: (*shell).ins},
	"mv":    {usage: "mv SRC DST", minArg: 2, maxArg: 2, mutate: true, run: (*shell).mv},
	"print": {usage: "print [EXPR]", minArg: 0, maxArg: 1, run: (*shell).print},
	"save":  {usage: "save", run: (*shell).save},
	"load":  {usage: "load", run: (*shell).load},
}

// exec runs one command given as its name followed by its arguments.
func (sh *shell) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	c, ok := shellCmds[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	rest := args[1:]
	if len(rest) < c.minArg || len(rest) > c.maxArg {
		return fmt.Errorf("%w: %s", errUsage, c.usage)
	}
	if err := c.run(sh, ctx, rest); err != nil {
		return err
	}
	if c.mutate {
		sh.mutated = true
	}
	return nil
}

func (sh *shell) match(_ context.Context, args []string) error {
	paths, err := sh.sess.Match(args[0])
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		_, _ = fmt.Fprintln(sh.out, "  (no matches)")
		return nil
	}
	for _, p := range paths {
		v, _, err := sh.sess.Get(p)
		if err != nil || v == nil {
			_, _ = fmt.Fprintf(sh.out, "%s = (none)\n", p)
			continue
		}
		_, _ = fmt.Fprintf(sh.out, "%s = %s\n", p, *v)
	}
	return nil
}

func (sh *shell) get(_ context.Context, args []string) error {
	v, found, err := sh.sess.Get(args[0])
	if err != nil {
		return err
	}
	switch {
	case !found:
		_, _ = fmt.Fprintf(sh.out, "%s (no match)\n", args[0])
	case v == nil:
		_, _ = fmt.Fprintf(sh.out, "%s (none)\n", args[0])
	default:
		_, _ = fmt.Fprintf(sh.out, "%s = %s\n", args[0], *v)
	}
	return nil
}

func (sh *shell) set(_ context.Context, args []string) error {
	if len(args) == 1 {
		return sh.sess.Clear(args[0])
	}
	return sh.sess.Set(args[0], args[1])
}

func (sh *shell) clear(_ context.Context, args []string) error {
	return sh.sess.Clear(args[0])
}

func (sh *shell) rm(_ context.Context, args []string) error {
	n, err := sh.sess.Remove(args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(sh.out, "rm : %s %d\n", args[0], n)
	return nil
}

func (sh *shell) ins(_ context.Context, args []string) error {
	var before bool
	switch args[1] {
	case "before":
		before = true
	case "after":
	default:
		return fmt.Errorf("%w: %s", errUsage, insUsage)
	}
	return sh.sess.Insert(args[2], args[0], before)
}

func (sh *shell) mv(_ context.Context, args []string) error {
	return sh.sess.Move(args[0], args[1])
}

func (sh *shell) print(_ context.Context, args []string) error {
	expr := ""
	if len(args) == 1 {
		expr = args[0]
	}
	return sh.sess.Print(sh.out, expr)
}

func (sh *shell) save(ctx context.Context, _ []string) error {
	rep, err := saveLocked(ctx, sh.sess, sh.ctl)
	if rep != nil {
		for _, o := range rep.Outcomes {
			if o.Err != nil {
				_, _ = fmt.Fprintf(sh.out, "error: %s: %s: %v\n", o.File, o.Kind, o.Err)
			}
		}
	}
	if err != nil {
		return err
	}
	sh.mutated = false
	_, _ = fmt.Fprintf(sh.out, "Saved %d file(s)\n", len(rep.Saved()))
	return nil
}

// saveLocked saves under the control lock, when there is one, and bumps
// the generation if any file on disk changed.
func saveLocked(ctx context.Context, sess *session.Session, ctl *control.Controller) (*save.Report, error) {
	if ctl == nil {
		return sess.Save(ctx)
	}
	if err := ctl.Lock(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = ctl.Unlock() }()
	rep, err := sess.Save(ctx)
	if rep != nil && rep.Changed() {
		ctl.Bump(time.Now())
	}
	return rep, err
}

func (sh *shell) load(ctx context.Context, _ []string) error {
	sh.mutated = false
	return sh.sess.Load(ctx)
}

// runScript executes one command per line of r. Blank lines and lines
// starting with # are skipped. A final save runs when the tree changed
// after the last explicit save.
func (sh *shell) runScript(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		args, err := splitLine(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sh.exec(ctx, args); err != nil {
			return fmt.Errorf("line %d: %s: %w", line, args[0], err)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if sh.mutated {
		return sh.save(ctx, nil)
	}
	return nil
}

// splitLine breaks a command line into words. Single and double quotes
// group words and are removed. A backslash outside quotes is kept together
// with the character after it, so escaped path labels survive intact.
func splitLine(s string) ([]string, error) {
	var (
		words []string
		cur   strings.Builder
		inW   bool
		quote rune
	)
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			if r == '\\' && quote == '"' && i+1 < len(rs) && (rs[i+1] == '"' || rs[i+1] == '\\') {
				i++
				r = rs[i]
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inW = true
		case r == '\\':
			inW = true
			cur.WriteRune(r)
			if i+1 < len(rs) {
				i++
				cur.WriteRune(rs[i])
			}
		case r == ' ' || r == '\t':
			if inW {
				words = append(words, cur.String())
				cur.Reset()
				inW = false
			}
		default:
			inW = true
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inW {
		words = append(words, cur.String())
	}
	return words, nil
}
