package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docstore-mcp/internal/docset"
	"github.com/dshills/docstore-mcp/pkg/types"
)

// parseAttributes turns repeated kind=value flags into a filter
func parseAttributes(raw []string) (types.AttributeFilter, error) {
	filter := types.AttributeFilter{}
	for _, r := range raw {
		kind, value, ok := strings.Cut(r, "=")
		if !ok || kind == "" || value == "" {
			return nil, fmt.Errorf("invalid attribute %q: expected kind=value", r)
		}
		filter = filter.With(kind, value)
	}
	return filter, nil
}

// queryHelp explains how query arguments become terms
const queryHelp = `Query arguments are joined with spaces and split into terms again, each
term matched case-insensitively against the body. Shell quotes are removed
before the query is read, so a phrase must be quoted inside one argument:

  docstore search quote '"to be"'     # one term: to be
  docstore search quote to be         # two terms: to, be`

// queryArgs joins the arguments after the collection name into one query string
func queryArgs(args []string) string {
	if len(args) < 2 {
		return ""
	}
	return strings.Join(args[1:], " ")
}

// printDocument writes a document, or the not-found message, in a readable form
func printDocument(w io.Writer, doc *docset.Document) {
	if !doc.Found() {
		fmt.Fprintln(w, doc.Body())
		return
	}

	fmt.Fprintf(w, "#%d  %s", doc.ID, doc.Created.Format(time.RFC3339))
	if doc.Submitter != "" {
		fmt.Fprintf(w, "  by %s", doc.Submitter)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, doc.Body())

	byKind := map[string][]string{}
	for _, a := range doc.Attributes() {
		byKind[a.Kind] = append(byKind[a.Kind], a.Value)
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %s: %s\n", k, strings.Join(byKind[k], ", "))
	}
}

func newAddCmd(opts *cliOptions) *cobra.Command {
	var submitter string
	var attrs []string

	cmd := &cobra.Command{
		Use:   "add <collection> <body>",
		Short: "Add a document",
		Long: `Add a document to a collection.

Examples:
  docstore add quote "I'll be back." --attr speaker=arnold --attr subject=movies`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			var attributes []types.Attribute
			for _, kind := range filter.Kinds() {
				for _, v := range filter[kind] {
					attributes = append(attributes, types.Attribute{Kind: kind, Value: v})
				}
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				set, err := a.collection(args[0])
				if err != nil {
					return err
				}
				doc, err := set.Add(cmd.Context(), submitter, args[1], attributes)
				if err != nil {
					return err
				}
				printDocument(cmd.OutOrStdout(), doc)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&submitter, "submitter", "", "Who submitted the document")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Attribute as kind=value (repeatable)")
	return cmd
}

type oneFunc func(*docset.DocumentSet, context.Context, types.AttributeFilter, string) (*docset.Document, error)

func newOneCmd(opts *cliOptions, use, short string, fetch oneFunc) *cobra.Command {
	var attrs []string

	cmd := &cobra.Command{
		Use:   use + " <collection> [query...]",
		Short: short,
		Long:  short + ".\n\n" + queryHelp,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				set, err := a.collection(args[0])
				if err != nil {
					return err
				}
				doc, err := fetch(set, cmd.Context(), filter, queryArgs(args))
				if err != nil {
					return err
				}
				printDocument(cmd.OutOrStdout(), doc)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Required attribute as kind=value (repeatable)")
	return cmd
}

func newRandomCmd(opts *cliOptions) *cobra.Command {
	return newOneCmd(opts, "random", "Show a random matching document", (*docset.DocumentSet).RandomMatching)
}

func newLatestCmd(opts *cliOptions) *cobra.Command {
	return newOneCmd(opts, "latest", "Show the newest matching document", (*docset.DocumentSet).LatestMatching)
}

func newSearchCmd(opts *cliOptions) *cobra.Command {
	var attrs []string
	var pageSize int
	var after int64

	cmd := &cobra.Command{
		Use:   "search <collection> [query...]",
		Short: "List matching documents page by page",
		Long: `List matching documents in insertion order.

` + queryHelp + `

Examples:
  # First page of quotes by alice mentioning coffee
  docstore search quote coffee --attr speaker=alice

  # Next page
  docstore search quote coffee --attr speaker=alice --after 42`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				set, err := a.collection(args[0])
				if err != nil {
					return err
				}
				size := pageSize
				if size <= 0 {
					size = a.cfg.Documents.DefaultPageSize
				}
				page, err := set.AllMatching(cmd.Context(), filter, queryArgs(args),
					docset.PageRequest{Size: size, After: after})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, doc := range page.Documents {
					printDocument(out, doc)
				}
				if page.HasNextPage {
					fmt.Fprintf(out, "-- more: --after %d\n", page.EndCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Required attribute as kind=value (repeatable)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Documents per page (default from config)")
	cmd.Flags().Int64Var(&after, "after", 0, "Cursor from the previous page")
	return cmd
}

func newCountCmd(opts *cliOptions) *cobra.Command {
	var attrs []string

	cmd := &cobra.Command{
		Use:   "count <collection> [query...]",
		Short: "Count matching documents",
		Long:  "Count matching documents.\n\n" + queryHelp,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				set, err := a.collection(args[0])
				if err != nil {
					return err
				}
				n, err := set.CountMatching(cmd.Context(), filter, queryArgs(args))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Required attribute as kind=value (repeatable)")
	return cmd
}

func newDeleteCmd(opts *cliOptions) *cobra.Command {
	var attrs []string

	cmd := &cobra.Command{
		Use:   "delete <collection> --attr kind=value",
		Short: "Delete documents matching every given attribute",
		Long: `Delete documents matching every given attribute. At least one --attr is
required; use destroy to drop a whole collection.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				set, err := a.collection(args[0])
				if err != nil {
					return err
				}
				n, err := set.DeleteMatching(cmd.Context(), filter)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d document(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Attribute as kind=value (repeatable)")
	_ = cmd.MarkFlagRequired("attr")
	return cmd
}
