package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanglvm/osm-tag-search/internal/storage"
)

// NewSearchCmd creates the 'search' command.
func NewSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit      int
		confidence float64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <word>",
		Short: "Find the tags matching a free-text query",
		Long: `Run the hybrid lexical and semantic search over the tag index. The top
limit hits are kept, then hits scoring below the confidence floor are dropped.`,
		Example: `  osm-tag-search search "fast food"
  osm-tag-search search cafe --limit 5 --confidence 0 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(opts, func(a *app) error {
				engine, err := a.engine(cmd.Context())
				if err != nil {
					return err
				}
				if limit <= 0 {
					limit = a.cfg.Search.DefaultLimit
				}
				if !cmd.Flags().Changed("confidence") {
					confidence = a.cfg.Search.Confidence
				}

				matches, err := engine.Search(cmd.Context(), query, limit, confidence)
				if err != nil {
					return err
				}
				a.recordSearch("tag", query, len(matches))

				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, matches)
				}
				if len(matches) == 0 {
					fmt.Fprintf(out, "No tag matches %q above confidence %.2f\n", query, confidence)
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SCORE\tNAME\tMAPPING")
				for _, m := range matches {
					fmt.Fprintf(w, "%.4f\t%s\t%s\n", m.Score, m.Name, m.MappingToken)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of hits to keep (default search.default_limit)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "score floor (default search.confidence)")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

// NewColorCmd creates the 'color' command.
func NewColorCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "color <word>",
		Aliases: []string{"colour"},
		Short:   "Look up the colour bundle for a descriptor",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(opts, func(a *app) error {
				engine, err := a.engine(cmd.Context())
				if err != nil {
					return err
				}
				match, err := engine.CategorySearch(cmd.Context(), query)
				if err != nil {
					return err
				}
				n := 0
				if match != nil {
					n = 1
				}
				a.recordSearch("category", query, n)
				return printJSON(cmd.OutOrStdout(), match)
			})
		},
	}
	return cmd
}

// NewTagCmd creates the 'tag' command.
func NewTagCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag <osm_tag|uri>",
		Short: "Show the knowledge graph projection of a tag",
		Example: `  osm-tag-search tag amenity=restaurant
  osm-tag-search tag https://wiki.openstreetmap.org/entity/Q4980`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				acc, err := a.graph()
				if err != nil {
					return err
				}
				entity, ok, err := acc.TagProperties(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no tag %q in the graph", args[0])
				}
				return printJSON(cmd.OutOrStdout(), entity)
			})
		},
	}
	return cmd
}

// recordSearch stores a history entry when history is enabled.
func (a *app) recordSearch(kind, query string, results int) {
	if !a.cfg.Server.RecordHistory {
		return
	}
	s := a.storage()
	if s == nil {
		return
	}
	err := s.RecordSearch(storage.SearchRecord{
		SearchID:     uuid.NewString(),
		Kind:         kind,
		QueryHash:    storage.HashQuery(query),
		Timestamp:    time.Now().UTC(),
		ResultsCount: results,
	})
	if err != nil {
		a.log.Warn("failed to record search", zap.Error(err))
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
