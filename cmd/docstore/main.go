// Package main implements the docstore CLI and MCP server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cliOptions holds the persistent flags shared by every command
type cliOptions struct {
	configPath string
	dbPath     string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:   "docstore",
		Short: "Tagged document store with an MCP interface",
		Long: `docstore keeps named collections of short text documents tagged with
attributes (subject, speaker, mention) in SQLite.

Documents can be fetched at random, newest first or page by page, filtered by
attributes and free-text terms. The serve command exposes the same operations
as MCP tools over stdio.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config and DOCSTORE_DB_PATH)")
	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "Env files to load (default .env)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newCreateCmd(opts),
		newDestroyCmd(opts),
		newListCmd(opts),
		newAddCmd(opts),
		newRandomCmd(opts),
		newLatestCmd(opts),
		newSearchCmd(opts),
		newCountCmd(opts),
		newStatsCmd(opts),
		newDeleteCmd(opts),
		newImportCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}
