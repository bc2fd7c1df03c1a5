package graph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/knakk/rdf"
)

// TestOpen verifies database initialization and schema creation.
func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "graph.db")

	store, err := Open(dbPath, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file not created")
	}

	// Reopening must not re-run migrations.
	store.Close()
	again, err := Open(dbPath, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	again.Close()
}

// TestInsertIgnoresDuplicates verifies that identical triples are stored once.
func TestInsertIgnoresDuplicates(t *testing.T) {
	store, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	triples := []Triple{
		{Subject: "s", Predicate: "p", Object: Literal("a", "en")},
		{Subject: "s", Predicate: "p", Object: Literal("a", "en")},
		{Subject: "s", Predicate: "p", Object: Literal("a", "fr")},
	}

	added, err := store.Insert(ctx, triples)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	objs, err := store.Objects(ctx, "s", "p")
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	if len(objs) != 2 || objs[0].Lang != "en" || objs[1].Lang != "fr" {
		t.Errorf("Objects = %+v, want en then fr", objs)
	}
}

// TestObjectsPreserveInsertionOrder verifies that seq ordering survives.
func TestObjectsPreserveInsertionOrder(t *testing.T) {
	store, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	want := []string{"zeta", "alpha", "mid"}
	var triples []Triple
	for _, v := range want {
		triples = append(triples, Triple{Subject: "s", Predicate: "p", Object: IRI(v)})
	}
	if _, err := store.Insert(ctx, triples); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	objs, err := store.Objects(ctx, "s", "p")
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	for i, o := range objs {
		if o.Value != want[i] {
			t.Errorf("objs[%d] = %s, want %s", i, o.Value, want[i])
		}
	}
}

func TestImportNTriples(t *testing.T) {
	store, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	doc := strings.Join([]string{
		`<https://wiki.openstreetmap.org/entity/Q1> <https://wiki.openstreetmap.org/prop/direct/P19> "shop=bakery" .`,
		`<https://wiki.openstreetmap.org/entity/Q1> <http://www.w3.org/2000/01/rdf-schema#label> "shop=bakery"@en .`,
		`<https://wiki.openstreetmap.org/entity/Q1> <https://wiki.openstreetmap.org/prop/direct/P2> <https://wiki.openstreetmap.org/entity/Q2> .`,
	}, "\n") + "\n"

	res, err := NewImporter(store, nil).Import(context.Background(), strings.NewReader(doc), rdf.NTriples)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if res.Read != 3 || res.Added != 3 {
		t.Errorf("result = %+v, want 3 read and 3 added", res)
	}

	labels, err := store.Objects(context.Background(), NSEntity+"Q1", PredLabel)
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	if len(labels) != 1 || !labels[0].IsEnglish() || labels[0].Kind != KindLiteral {
		t.Errorf("labels = %+v", labels)
	}

	types, err := store.Objects(context.Background(), NSEntity+"Q1", PredInstanceOf)
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	if len(types) != 1 || types[0].Kind != KindIRI || types[0].Value != ItemTag {
		t.Errorf("types = %+v", types)
	}
}

func TestImportPathDirectory(t *testing.T) {
	dir := t.TempDir()
	nt := `<https://wiki.openstreetmap.org/entity/Q1> <https://wiki.openstreetmap.org/prop/direct/P19> "shop=bakery" .` + "\n"
	if err := os.WriteFile(filepath.Join(dir, "a.nt"), []byte(nt), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	res, err := NewImporter(store, nil).ImportPath(context.Background(), dir)
	if err != nil {
		t.Fatalf("ImportPath failed: %v", err)
	}
	if res.Files != 1 || res.Added != 1 {
		t.Errorf("result = %+v, want 1 file and 1 triple", res)
	}
}

func TestFormatFor(t *testing.T) {
	if f, ok := FormatFor("kg.TTL"); !ok || f != rdf.Turtle {
		t.Errorf("FormatFor(kg.TTL) = %v, %v", f, ok)
	}
	if f, ok := FormatFor("kg.nt"); !ok || f != rdf.NTriples {
		t.Errorf("FormatFor(kg.nt) = %v, %v", f, ok)
	}
	if _, ok := FormatFor("kg.csv"); ok {
		t.Error("csv should not be a graph format")
	}
}

func TestPickStrategies(t *testing.T) {
	values := []Term{Literal("short", "en"), Literal("the longest one", "en"), Literal("also longest!!", "en")}

	if v, ok := PickFirst(values); !ok || v.Value != "short" {
		t.Errorf("PickFirst = %q", v.Value)
	}
	if v, ok := PickLongest(values); !ok || v.Value != "the longest one" {
		t.Errorf("PickLongest = %q", v.Value)
	}

	tie := []Term{Literal("abc", ""), Literal("xyz", "")}
	if v, _ := PickLongest(tie); v.Value != "abc" {
		t.Errorf("PickLongest tie = %q, want first seen", v.Value)
	}

	if _, ok := PickFirst(nil); ok {
		t.Error("PickFirst(nil) should report no value")
	}
	if _, ok := PickLongest(nil); ok {
		t.Error("PickLongest(nil) should report no value")
	}

	s := DefaultStrategies()
	if v, _ := s.pick(PredDescription, values); v.Value != "the longest one" {
		t.Errorf("description pick = %q, want longest", v.Value)
	}
	if v, _ := s.pick(PredLabel, values); v.Value != "short" {
		t.Errorf("label pick = %q, want first", v.Value)
	}
}

func TestCheckOneToOne(t *testing.T) {
	ok := []TagRef{{URI: "u1", RawKey: "a=b"}, {URI: "u2", RawKey: "a=c"}}
	if err := CheckOneToOne(ok); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := []TagRef{{URI: "u1", RawKey: "a=b"}, {URI: "u2", RawKey: "a=b"}}
	err := CheckOneToOne(bad)
	var oto *OneToOneError
	if !errors.As(err, &oto) {
		t.Fatalf("expected OneToOneError, got %v", err)
	}
	if len(oto.DuplicateRawKeys) != 1 || oto.DuplicateRawKeys[0] != "a=b" {
		t.Errorf("DuplicateRawKeys = %v", oto.DuplicateRawKeys)
	}
	if len(oto.DuplicateURIs) != 0 {
		t.Errorf("DuplicateURIs = %v", oto.DuplicateURIs)
	}
}
