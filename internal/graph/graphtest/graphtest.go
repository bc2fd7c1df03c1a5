// Package graphtest provides a small OSM tag graph for tests.
package graphtest

import (
	"context"
	_ "embed"
	"path/filepath"
	"strings"
	"testing"

	"github.com/knakk/rdf"

	"github.com/khanglvm/osm-tag-search/internal/graph"
)

//go:embed sample.ttl
var sampleTurtle string

// Sample URIs.
const (
	FastFood      = graph.NSEntity + "Q6961"
	Restaurant    = graph.NSEntity + "Q4819"
	Church        = graph.NSEntity + "Q6034"
	BuildingYes   = graph.NSEntity + "Q5003"
	OldFastFood   = graph.NSEntity + "Q5000"
	Retired       = graph.NSEntity + "Q5001"
	DeprecatedDup = graph.NSEntity + "Q5002"
	FoodGroup     = graph.NSEntity + "Q100"
)

// Open returns a store in a temp dir loaded with the sample graph.
func Open(t testing.TB) *graph.Store {
	t.Helper()

	store, err := graph.Open(filepath.Join(t.TempDir(), "graph.db"), nil)
	if err != nil {
		t.Fatalf("open graph store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	im := graph.NewImporter(store, nil)
	if _, err := im.Import(context.Background(), strings.NewReader(sampleTurtle), rdf.Turtle); err != nil {
		t.Fatalf("import sample graph: %v", err)
	}
	return store
}

// Accessor returns an Accessor over the sample graph.
func Accessor(t testing.TB, opts ...graph.Option) *graph.Accessor {
	t.Helper()
	return graph.NewAccessor(Open(t), opts...)
}
