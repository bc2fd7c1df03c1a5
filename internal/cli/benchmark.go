package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/osm-tag-search/internal/benchmark"
)

// NewBenchmarkCmd creates the 'benchmark' command for mapping evaluation.
func NewBenchmarkCmd(opts *rootOptions) *cobra.Command {
	var (
		mode       string
		confidence float64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "benchmark <cases.jsonl>",
		Short: "Evaluate search accuracy against labelled mappings",
		Long: `Run every labelled case through the tag search and count how many
resolve to their expected mapping token.

Each line of the input is {"key": "...", "imr": ...}. In singular mode the
lower-cased key is queried as is; in plural mode it is pluralised first, which
checks that inflected queries still reach the singular mapping.`,
		Example: `  # Singular keys
  osm-tag-search benchmark validation.jsonl

  # Plural forms, as JSON
  osm-tag-search benchmark validation.jsonl --mode plural --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			cases, err := benchmark.ReadCases(in)
			if err != nil {
				return err
			}

			return withApp(opts, func(a *app) error {
				engine, err := a.engine(cmd.Context())
				if err != nil {
					return err
				}
				report, err := benchmark.Run(cmd.Context(), engine, cases, benchmark.Options{
					Mode:       benchmark.Mode(mode),
					Confidence: confidence,
				})
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), report)
				}
				fmt.Fprint(cmd.OutOrStdout(), benchmark.FormatReport(report))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(benchmark.ModeSingular), "query form: singular or plural")
	cmd.Flags().Float64Var(&confidence, "confidence", benchmark.DefaultConfidence, "score floor")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}
