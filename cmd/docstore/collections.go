package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newCreateCmd(opts *cliOptions) *cobra.Command {
	var notFound string

	cmd := &cobra.Command{
		Use:   "create <collection>",
		Short: "Create a collection (or open an existing one)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				set, err := a.registry.Open(cmd.Context(), args[0], notFound)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Collection %s ready (%s, %s)\n",
					set.Name(), set.DocumentTableName(), set.AttributeTableName())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notFound, "not-found-message", "", "Body returned when nothing matches")
	return cmd
}

func newDestroyCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <collection>",
		Short: "Drop a collection and all of its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.registry.Destroy(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Collection %s destroyed\n", args[0])
				return nil
			})
		},
	}
}

func newListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				infos, err := a.registry.Catalog(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tCREATED\tNOT FOUND MESSAGE")
				for _, info := range infos {
					fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, info.CreatedAt.Format(time.RFC3339), info.NotFoundMessage)
				}
				return w.Flush()
			})
		},
	}
}
