package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/docstore-mcp/internal/importer"
	"github.com/dshills/docstore-mcp/internal/logger"
)

func newImportCmd(opts *cliOptions) *cobra.Command {
	var workers int
	var keepDuplicates bool
	var only []string

	cmd := &cobra.Command{
		Use:   "import <collection> <file|->",
		Short: "Bulk-load documents from JSON Lines",
		Long: `Bulk-load documents from a JSON Lines file or stdin.

Each line is {"submitter": "...", "body": "...", "attributes": {"kind": ["value"]}}.

Examples:
  docstore import quote quotes.jsonl
  cat quotes.jsonl | docstore import quote - --workers 1

  # Only records spoken by alice
  docstore import quote quotes.jsonl --only speaker=alice`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseAttributes(only)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(filepath.Clean(args[1]))
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[1], err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				set, err := a.collection(args[0])
				if err != nil {
					return err
				}
				ctx := logger.WithLogger(cmd.Context(), a.logger)
				stats, err := importer.New(set).Import(ctx, in, &importer.Config{
					Workers:        workers,
					SkipDuplicates: !keepDuplicates,
					Filter:         filter,
				})
				if err != nil {
					return err
				}

				a.logger.Info("import finished",
					zap.String("collection", set.Name()),
					zap.Int("imported", stats.Imported),
					zap.Int("failed", stats.Failed),
					zap.Duration("duration", stats.Duration))

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d, skipped %d, failed %d of %d record(s)\n",
					stats.Imported, stats.Skipped, stats.Failed, stats.Read)
				// Include first few errors
				for i, msg := range stats.ErrorMessages {
					if i == 5 {
						fmt.Fprintf(out, "  ... and %d more\n", len(stats.ErrorMessages)-5)
						break
					}
					fmt.Fprintf(out, "  %s\n", msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent inserts (default: number of CPUs; 1 keeps input order)")
	cmd.Flags().StringArrayVar(&only, "only", nil, "Import only records with this attribute (kind=value, repeatable)")
	cmd.Flags().BoolVar(&keepDuplicates, "keep-duplicates", false, "Import records whose body repeats an earlier line")
	return cmd
}
