package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *cliOptions) *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "stats <collection>",
		Short: "Rank users by documents spoken, then by mentions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				set, err := a.collection(args[0])
				if err != nil {
					return err
				}
				table, err := set.UserStats(cmd.Context(), kinds...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(table.Rows) == 0 {
					fmt.Fprintln(out, "No statistics yet.")
					return nil
				}
				for _, line := range table.Lines() {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Attribute kinds to aggregate (default from config)")
	return cmd
}
