package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run [FILE]",
		Short: "Run tree commands from a file or stdin, then save",
		Long: `Run reads one command per line: match, get, set, clear, rm, ins, mv,
print, save and load, with the same arguments as the subcommands of the
same name. Quote arguments that contain spaces. Changes are saved at the
end unless the last command was a save.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			e, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			sh := e.shell(cmd.OutOrStdout())
			return sh.runScript(cmd.Context(), in)
		},
	}
}
