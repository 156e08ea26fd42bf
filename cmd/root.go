package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentic-research/lenstree/internal/control"
	"github.com/agentic-research/lenstree/internal/journal"
	"github.com/agentic-research/lenstree/internal/save"
	"github.com/agentic-research/lenstree/internal/session"
)

const (
	envRoot    = "LENSTREE_ROOT"
	envLensLib = "LENSTREE_LENS_LIB"
	envControl = "LENSTREE_CONTROL"
)

// globals holds the flags every subcommand shares.
type globals struct {
	root     string
	include  []string
	noStdinc bool
	saveMode string
	journal  string
	control  string
	verbose  bool
}

// env holds what an opened session needs to be torn down again.
type env struct {
	sess    *session.Session
	journal *journal.Journal
	ctl     *control.Controller
}

func (e *env) close() {
	if e.sess != nil {
		_ = e.sess.Close()
	}
	if e.journal != nil {
		_ = e.journal.Close()
	}
	if e.ctl != nil {
		_ = e.ctl.Close()
	}
}

func (e *env) shell(out io.Writer) *shell {
	return &shell{sess: e.sess, ctl: e.ctl, out: out}
}

func (g *globals) loadPath() []string {
	dirs := append([]string(nil), g.include...)
	if lib := os.Getenv(envLensLib); lib != "" {
		for _, d := range filepath.SplitList(lib) {
			if d != "" {
				dirs = append(dirs, d)
			}
		}
	}
	for i, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			dirs[i] = abs
		}
	}
	return dirs
}

// open starts a session with the global flags applied.
func (g *globals) open(cmd *cobra.Command) (*env, error) {
	return g.openWith(cmd, 0)
}

func (g *globals) openWith(cmd *cobra.Command, flags session.Flags) (*env, error) {
	root := g.root
	if root == "" {
		root = os.Getenv(envRoot)
	}
	if root == "" {
		root = "/"
	}
	mode, err := save.ParseMode(g.saveMode)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	e := &env{}
	opts := session.Options{
		Root:     root,
		LoadPath: g.loadPath(),
		SaveMode: mode,
		Flags:    flags,
		Logger:   logger,
	}
	if g.noStdinc {
		opts.Flags |= session.NoStdinc
	}
	if g.journal != "" {
		j, err := journal.Open(g.journal)
		if err != nil {
			return nil, err
		}
		e.journal = j
		opts.Journal = j
	}
	ctlPath := g.control
	if ctlPath == "" {
		ctlPath = os.Getenv(envControl)
	}
	if ctlPath != "" {
		ctl, err := control.OpenOrCreate(ctlPath)
		if err != nil {
			e.close()
			return nil, err
		}
		e.ctl = ctl
	}
	sess, err := session.Init(cmd.Context(), opts)
	if err != nil {
		e.close()
		return nil, err
	}
	e.sess = sess
	return e, nil
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "lenstree",
		Short:         "Edit configuration files as a tree, keeping their formatting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.root, "root", "r", "", "Filesystem root for managed files (default $"+envRoot+" or /)")
	pf.StringArrayVarP(&g.include, "include", "I", nil, "Directory with extra transform files (repeatable)")
	pf.BoolVar(&g.noStdinc, "nostdinc", false, "Do not use the built-in transforms")
	pf.StringVar(&g.saveMode, "save-mode", string(save.ModeOverwrite), "Save mode: overwrite, backup, newfile or noop")
	pf.StringVar(&g.journal, "journal", "", "SQLite file recording every save outcome")
	pf.StringVar(&g.control, "control", "", "Control file shared by processes saving the same files (default $"+envControl+")")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Log load and save progress to stderr")

	rootCmd.AddCommand(opCommands(g)...)
	rootCmd.AddCommand(
		newRunCmd(g),
		newDumpCmd(g),
		newTransformsCmd(g),
		newHistoryCmd(g),
		newServeCmd(g),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "lenstree:", err)
		os.Exit(1)
	}
}
