package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/khanglvm/osm-tag-search/internal/embedding"
	"github.com/khanglvm/osm-tag-search/internal/graph"
)

// NewVerifyCmd creates the 'verify' command for checking a deployment.
func NewVerifyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify configuration, graph and indexes",
		Long: `Verify that the configuration is valid, the knowledge graph is loaded
with a one-to-one raw key mapping, the embedding gateway returns vectors of the
configured dimension, and both indexes are reachable.`,
		Example: `  osm-tag-search verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				failed := runVerify(cmd.Context(), a, cmd.OutOrStdout())
				if failed > 0 {
					return fmt.Errorf("%d check(s) failed", failed)
				}
				return nil
			})
		},
	}

	return cmd
}

// runVerify prints one line per check and returns the number of failures.
func runVerify(ctx context.Context, a *app, out io.Writer) int {
	failed := 0
	check := func(label string, err error, ok string) {
		if err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s: %v\n", label, err)
			return
		}
		fmt.Fprintf(out, "✓ %s: %s\n", label, ok)
	}

	check("config", nil, fmt.Sprintf("backend %s, embedding %s", a.cfg.Search.Backend, a.cfg.Embedding.Provider))

	if acc, err := a.graph(); err != nil {
		check("graph", err, "")
	} else {
		active, err := acc.AllActiveTags(ctx)
		if err == nil {
			err = graph.CheckOneToOne(active)
		}
		check("graph", err, fmt.Sprintf("%d active tags", len(active)))
	}

	gw, err := a.embedder(ctx)
	if err == nil {
		err = embedding.CheckDimension(gw, a.cfg.Embedding.Dimension)
	}
	if err == nil {
		_, err = gw.Encode(ctx, "verify")
	}
	if gw != nil {
		check("embedding", err, gw.Model())
	} else {
		check("embedding", err, "")
	}

	idx, err := a.index()
	if err != nil {
		check("index", err, "")
		return failed
	}
	for _, name := range []string{a.cfg.Search.TagIndex, a.cfg.Search.ColorIndex} {
		n, err := idx.Count(ctx, name)
		check("index "+name, err, fmt.Sprintf("%d documents", n))
	}
	return failed
}
