package cmd

import (
	"github.com/spf13/cobra"
)

// opCommands exposes each tree command as a subcommand. A command that
// changes the tree saves before exiting.
func opCommands(g *globals) []*cobra.Command {
	specs := []struct {
		name  string
		use   string
		short string
		args  cobra.PositionalArgs
	}{
		{"match", "match EXPR", "List the paths an expression selects, with their values", cobra.ExactArgs(1)},
		{"get", "get PATH", "Print the value of a single node", cobra.ExactArgs(1)},
		{"set", "set PATH [VALUE]", "Set the value of a node, creating it when missing", cobra.RangeArgs(1, 2)},
		{"clear", "clear PATH", "Remove the value of a node, creating it when missing", cobra.ExactArgs(1)},
		{"rm", "rm PATH", "Delete every node a path selects", cobra.ExactArgs(1)},
		{"ins", "ins LABEL before|after PATH", "Insert a sibling next to a node", cobra.ExactArgs(3)},
		{"mv", "mv SRC DST", "Move a subtree", cobra.ExactArgs(2)},
		{"print", "print [EXPR]", "Print subtrees as path = value lines", cobra.MaximumNArgs(1)},
	}
	out := make([]*cobra.Command, 0, len(specs))
	for _, sp := range specs {
		name := sp.name
		out = append(out, &cobra.Command{
			Use:   sp.use,
			Short: sp.short,
			Args:  sp.args,
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := g.open(cmd)
				if err != nil {
					return err
				}
				defer e.close()
				sh := e.shell(cmd.OutOrStdout())
				if err := sh.exec(cmd.Context(), append([]string{name}, args...)); err != nil {
					return err
				}
				if sh.mutated {
					return sh.save(cmd.Context(), nil)
				}
				return nil
			},
		})
	}
	return out
}
