package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanglvm/osm-tag-search/internal/httpapi"
)

// shutdownTimeout bounds the wait for in-flight requests.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the 'serve' command for running the HTTP API.
func NewServeCmd(opts *rootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP search API",
		Long: `Start the HTTP server exposing tag search, colour lookup and the
knowledge graph read endpoints:

  GET /search_osm_tag_v2?word=...&limit=...
  GET /color_mapping?color=...
  GET /fetch_tag_properties?osm_tag=...
  GET /fetch_all_categories
  GET /fetch_tags_per_category?category=...
  GET /fetch_all_osm_tags
  GET /health
  GET /metrics`,
		Example: `  # Listen on the configured address (default :8000)
  osm-tag-search serve

  # Use Elasticsearch as the backend
  OSMTAG_SEARCH_BACKEND=elasticsearch osm-tag-search serve --address :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if address != "" {
					a.cfg.Server.Address = address
				}
				return runServe(cmd.Context(), a)
			})
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "override server.address")
	return cmd
}

// runServe starts the server with signal handling.
// Implements graceful shutdown on SIGINT/SIGTERM/SIGQUIT.
func runServe(ctx context.Context, a *app) error {
	if ctx == nil {
		ctx = context.Background()
	}

	engine, err := a.engine(ctx)
	if err != nil {
		return err
	}
	acc, err := a.graph()
	if err != nil {
		return err
	}
	idx, _ := a.index()

	deps := httpapi.Deps{
		Tags:   engine,
		Colors: engine,
		Graph:  acc,
		Checks: map[string]httpapi.HealthCheck{
			"index": func(ctx context.Context) error {
				_, err := idx.Count(ctx, a.cfg.Search.TagIndex)
				return err
			},
			"graph": func(ctx context.Context) error {
				_, err := a.graphStore.Stats(ctx)
				return err
			},
		},
	}
	if a.cfg.Server.RecordHistory {
		if s := a.storage(); s != nil {
			deps.History = s
		}
	}

	server := httpapi.New(deps, httpapi.Config{
		Confidence:   a.cfg.Search.Confidence,
		DefaultLimit: a.cfg.Search.DefaultLimit,
	}, a.metrics, a.log.Named("http"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(a.cfg.Server.Address)
	}()

	select {
	case sig := <-sigChan:
		a.log.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		a.log.Info("shutting down", zap.Error(ctx.Err()))
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.log.Info("shutdown complete")
	return nil
}
