package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// VectorStore persists vectors keyed on (text, model version).
type VectorStore interface {
	SaveEmbedding(text, model string, vector []float32) error
	GetEmbedding(text, model string) ([]float32, bool, error)
}

// Cached wraps a Gateway with an in-memory LRU in front of a persistent store.
// Cached vectors are returned only when they have the gateway's dimension.
type Cached struct {
	next   Gateway
	store  VectorStore
	memory *lru.Cache[string, []float32]
	log    *zap.Logger
}

var _ Gateway = (*Cached)(nil)

// NewCached creates a caching gateway. store may be nil for memory-only caching.
func NewCached(next Gateway, store VectorStore, size int, log *zap.Logger) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	memory, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, store: store, memory: memory, log: log}, nil
}

// Dimension implements Gateway.
func (c *Cached) Dimension() int { return c.next.Dimension() }

// Model implements Gateway.
func (c *Cached) Model() string { return c.next.Model() }

// Encode implements Gateway.
func (c *Cached) Encode(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.memory.Get(text); ok {
		return vec, nil
	}

	model := c.next.Model()
	if c.store != nil {
		vec, ok, err := c.store.GetEmbedding(text, model)
		if err != nil {
			c.log.Warn("embedding cache read failed", zap.Error(err))
		} else if ok && len(vec) == c.next.Dimension() {
			c.memory.Add(text, vec)
			return vec, nil
		}
	}

	vec, err := c.next.Encode(ctx, text)
	if err != nil {
		return nil, err
	}

	c.memory.Add(text, vec)
	if c.store != nil {
		if err := c.store.SaveEmbedding(text, model, vec); err != nil {
			c.log.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}
