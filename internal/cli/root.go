package cli

import (
	"github.com/spf13/cobra"

	"github.com/khanglvm/osm-tag-search/internal/version"
)

// NewRootCmd creates the osm-tag-search command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "osm-tag-search",
		Short: "Resolve OpenStreetMap tags and search them by meaning",
		Long: `osm-tag-search loads the OSM tag knowledge graph, resolves a canonical
label for every active tag, indexes the tags for lexical and semantic
retrieval, and answers free-text queries with the best matching tags.`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.osm-tag-search.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		NewServeCmd(opts),
		NewSearchCmd(opts),
		NewColorCmd(opts),
		NewTagCmd(opts),
		NewGraphCmd(opts),
		NewIndexCmd(opts),
		NewBenchmarkCmd(opts),
		NewVerifyCmd(opts),
		NewConfigCmd(opts),
		NewVersionCmd(),
	)
	return cmd
}
