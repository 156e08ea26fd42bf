package cmd

import (
	"fmt"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
)

var jsonOptions = &ojg.Options{Indent: 2, Sort: true}

func newDumpCmd(g *globals) *cobra.Command {
	var query string
	c := &cobra.Command{
		Use:   "dump [EXPR]",
		Short: "Print subtrees as JSON",
		Long: `Dump prints the nodes EXPR selects (default: every top-level node) as a
JSON array of {path, label, value, children} objects. --jsonpath narrows
the output with a JSONPath query run against that array.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var x jp.Expr
			if query != "" {
				var err error
				if x, err = jp.ParseString(query); err != nil {
					return fmt.Errorf("invalid jsonpath %q: %w", query, err)
				}
			}
			e, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			expr := ""
			if len(args) == 1 {
				expr = args[0]
			}
			data, err := e.sess.Snapshot(expr)
			if err != nil {
				return err
			}
			var v any = data
			if x != nil {
				v = x.Get(data)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), oj.JSON(v, jsonOptions))
			return err
		},
	}
	c.Flags().StringVar(&query, "jsonpath", "", "JSONPath query applied to the dump")
	return c
}
