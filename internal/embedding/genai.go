package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
)

const (
	// DefaultGenAIModel is the default remote embedding model.
	DefaultGenAIModel = "text-embedding-004"

	// DefaultMaxRetries is the default number of retries.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the base delay for exponential backoff.
	DefaultBaseDelay = 100 * time.Millisecond

	// DefaultMaxDelay is the maximum delay for exponential backoff.
	DefaultMaxDelay = 10 * time.Second

	// similarityTask is used for both documents and queries so one text always
	// maps to one vector.
	similarityTask = "SEMANTIC_SIMILARITY"
)

// GenAIConfig holds the configuration for the Google Generative AI gateway.
type GenAIConfig struct {
	APIKey    string
	Model     string
	Dimension int
}

// embedder is the slice of the genai Models service the gateway calls.
type embedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GenAI encodes text with a Google Generative AI embedding model.
type GenAI struct {
	models embedder
	model  string
	dim    int
	log    *zap.Logger

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var _ Gateway = (*GenAI)(nil)

// GenAIOption configures the GenAI gateway.
type GenAIOption func(*GenAI)

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) GenAIOption {
	return func(g *GenAI) { g.maxRetries = n }
}

// WithBackoff sets the base and maximum delay for exponential backoff.
func WithBackoff(base, maxDelay time.Duration) GenAIOption {
	return func(g *GenAI) {
		g.baseDelay = base
		g.maxDelay = maxDelay
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) GenAIOption {
	return func(g *GenAI) { g.log = log }
}

// NewGenAI creates a Google Generative AI gateway.
func NewGenAI(ctx context.Context, cfg GenAIConfig, opts ...GenAIOption) (*GenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newGenAI(client.Models, cfg, opts...), nil
}

func newGenAI(models embedder, cfg GenAIConfig, opts ...GenAIOption) *GenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultGenAIModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}

	g := &GenAI{
		models:     models,
		model:      cfg.Model,
		dim:        cfg.Dimension,
		log:        zap.NewNop(),
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dimension implements Gateway.
func (g *GenAI) Dimension() int { return g.dim }

// Model implements Gateway.
func (g *GenAI) Model() string { return fmt.Sprintf("genai-%s-d%d", g.model, g.dim) }

// Encode implements Gateway. Transport failures surface as ErrBackendUnavailable;
// a vector of the wrong size is ErrSchemaMismatch.
func (g *GenAI) Encode(ctx context.Context, text string) ([]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt)
			g.log.Debug("retrying embedding request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return nil, apperror.Unavailable("embed", ctx.Err())
			case <-time.After(delay):
			}
		}

		vec, err := g.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		if errors.Is(err, apperror.ErrSchemaMismatch) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, apperror.Unavailable("embed", ctx.Err())
		}

		lastErr = err
		g.log.Warn("embedding request failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return nil, apperror.Unavailable("embed", fmt.Errorf("all retries exhausted: %w", lastErr))
}

func (g *GenAI) embedOnce(ctx context.Context, text string) ([]float32, error) {
	dim := int32(g.dim)
	result, err := g.models.EmbedContent(
		ctx,
		g.model,
		genai.Text(text),
		&genai.EmbedContentConfig{
			TaskType:             similarityTask,
			OutputDimensionality: &dim,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embeddings returned for text")
	}

	values := result.Embeddings[0].Values
	if len(values) != g.dim {
		return nil, fmt.Errorf("model %s returned %d values, want %d: %w",
			g.model, len(values), g.dim, apperror.ErrSchemaMismatch)
	}
	return values, nil
}

// backoff calculates the delay for a given attempt.
func (g *GenAI) backoff(attempt int) time.Duration {
	delay := float64(g.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(g.maxDelay) {
		delay = float64(g.maxDelay)
	}
	return time.Duration(delay)
}
