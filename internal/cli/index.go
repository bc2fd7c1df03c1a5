package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanglvm/osm-tag-search/internal/indexing"
)

// indexFlags are shared by the index build commands.
type indexFlags struct {
	name    string
	clear   bool
	workers int
	json    bool
}

func (f *indexFlags) register(cmd *cobra.Command, defaultHelp string) {
	cmd.Flags().StringVar(&f.name, "index", "", "index name (default "+defaultHelp+")")
	cmd.Flags().BoolVar(&f.clear, "clear", false, "delete and recreate the index first")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "parallel embedding workers (default indexing.workers)")
	cmd.Flags().BoolVarP(&f.json, "json", "j", false, "Output as JSON")
}

// NewIndexCmd creates the 'index' command group.
func NewIndexCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and inspect retrieval indexes",
		Long: `Build the retrieval indexes used by search.

  tags      every active tag in the knowledge graph with its resolved label
  mappings  a manual mapping file of {"applies_to": "a|b", "imr": ...} rows
  colors    a colour bundle CSV with "Colour Descriptors" and "Colour Values"

Each build holds an exclusive lock on the index name, validates every document
against the schema before the first write, and writes in batches.`,
	}
	cmd.AddCommand(
		newIndexTagsCmd(opts),
		newIndexMappingsCmd(opts),
		newIndexColorsCmd(opts),
		newIndexCountCmd(opts),
	)
	return cmd
}

func newIndexTagsCmd(opts *rootOptions) *cobra.Command {
	var f indexFlags

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Index every resolved tag from the knowledge graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				name := orDefault(f.name, a.cfg.Search.TagIndex)

				enum, err := a.catalog()
				if err != nil {
					return err
				}
				entries, report, err := enum.Enumerate(cmd.Context())
				if err != nil {
					return err
				}
				if len(report.Unresolved) > 0 {
					a.log.Warn("tags skipped without a resolvable label", zap.Int("count", len(report.Unresolved)))
				}

				job, err := a.job(cmd.Context(), f.workers)
				if err != nil {
					return err
				}
				res, err := job.IndexTags(cmd.Context(), name, entries, f.clear)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res, f.json)
			})
		},
	}

	f.register(cmd, "search.tag_index")
	return cmd
}

func newIndexMappingsCmd(opts *rootOptions) *cobra.Command {
	var (
		f                indexFlags
		reportDuplicates bool
	)

	cmd := &cobra.Command{
		Use:   "mappings <file.json>",
		Short: "Index a manual keyword to tag mapping file",
		Example: `  osm-tag-search index mappings data/manual_mapping.json --clear
  osm-tag-search index mappings data/manual_mapping.json --report-duplicates`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			rows, err := indexing.ReadMappings(in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if reportDuplicates {
				dups := indexing.DuplicateKeywords(rows)
				if len(dups) == 0 {
					fmt.Fprintln(out, "✓ No duplicate keywords")
					return nil
				}
				fmt.Fprintf(out, "✗ %d duplicate keyword(s):\n", len(dups))
				for _, d := range dups {
					fmt.Fprintf(out, "  • %s\n", d)
				}
				return nil
			}

			return withApp(opts, func(a *app) error {
				job, err := a.job(cmd.Context(), f.workers)
				if err != nil {
					return err
				}
				res, err := job.IndexMappings(cmd.Context(), orDefault(f.name, a.cfg.Search.TagIndex), rows, f.clear)
				if err != nil {
					return err
				}
				return printResult(out, res, f.json)
			})
		},
	}

	f.register(cmd, "search.tag_index")
	cmd.Flags().BoolVar(&reportDuplicates, "report-duplicates", false, "list keywords used by more than one row and exit")
	return cmd
}

func newIndexColorsCmd(opts *rootOptions) *cobra.Command {
	var f indexFlags

	cmd := &cobra.Command{
		Use:     "colors <file.csv>",
		Aliases: []string{"colours"},
		Short:   "Index a colour bundle CSV",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			bundles, err := indexing.ReadColorBundles(in)
			if err != nil {
				return err
			}

			return withApp(opts, func(a *app) error {
				job, err := a.job(cmd.Context(), f.workers)
				if err != nil {
					return err
				}
				res, err := job.IndexColors(cmd.Context(), orDefault(f.name, a.cfg.Search.ColorIndex), bundles, f.clear)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res, f.json)
			})
		},
	}

	f.register(cmd, "search.color_index")
	return cmd
}

func newIndexCountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count [index...]",
		Short: "Show the number of documents per index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				names := args
				if len(names) == 0 {
					names = []string{a.cfg.Search.TagIndex, a.cfg.Search.ColorIndex}
				}
				idx, err := a.index()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, name := range names {
					n, err := idx.Count(cmd.Context(), name)
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
					fmt.Fprintf(out, "%s\t%d\n", name, n)
				}
				return nil
			})
		},
	}
	return cmd
}

func printResult(w io.Writer, res *indexing.Result, jsonOutput bool) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "✓ %s: %d written", res.Index, res.Written)
	if res.Skipped > 0 {
		fmt.Fprintf(&sb, ", %d skipped", res.Skipped)
	}
	fmt.Fprintf(&sb, ", %d total (%s)\n", res.Count, res.Duration.Round(time.Millisecond))
	_, err := io.WriteString(w, sb.String())
	return err
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
