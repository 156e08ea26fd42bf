package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/lenstree/internal/session"
	"github.com/agentic-research/lenstree/internal/transform"
)

func newTransformsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "transforms",
		Short: "Print the active transforms as HCL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.openNoLoad(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			_, err = cmd.OutOrStdout().Write(transform.Format(e.sess.Transforms()))
			return err
		},
	}
}

// openNoLoad opens a session without reading any managed file.
func (g *globals) openNoLoad(cmd *cobra.Command) (*env, error) {
	return g.openWith(cmd, session.NoLoad)
}
