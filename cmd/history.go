package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/lenstree/internal/journal"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var (
		limit int
		file  string
	)
	c := &cobra.Command{
		Use:   "history",
		Short: "Show recent save outcomes from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.journal == "" {
				return errors.New("history needs --journal")
			}
			j, err := journal.Open(g.journal)
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			entries, err := j.Recent(cmd.Context(), file, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				line := fmt.Sprintf("%s\t%s\t%s", e.At.UTC().Format(time.RFC3339), e.State, e.File)
				if e.Kind != "" {
					line += fmt.Sprintf("\t%s: %s", e.Kind, e.Error)
				}
				_, _ = fmt.Fprintln(tw, line)
			}
			return tw.Flush()
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	c.Flags().StringVar(&file, "file", "", "Only show entries for this file")
	return c
}
