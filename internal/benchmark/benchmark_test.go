package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/khanglvm/osm-tag-search/internal/search"
)

// tableSearcher answers from a fixed query table.
type tableSearcher struct {
	answers map[string]search.Match
	queries []string
	err     error
}

func (s *tableSearcher) Search(_ context.Context, q string, limit int, _ float64) ([]search.Match, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	if limit != 1 {
		return nil, errors.New("evaluation must use limit 1")
	}
	m, ok := s.answers[q]
	if !ok {
		return []search.Match{}, nil
	}
	return []search.Match{m}, nil
}

func TestReadCases(t *testing.T) {
	input := `{"key": "Cafe", "imr": {"amenity": "cafe"}}

{"key": "bench", "imr": {"amenity": "bench"}}
`
	cases, err := ReadCases(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCases failed: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("got %d cases, want 2", len(cases))
	}
	if cases[0].Key != "Cafe" || !sameJSON(cases[0].IMR, json.RawMessage(`{"amenity":"cafe"}`)) {
		t.Errorf("unexpected first case %+v", cases[0])
	}

	if _, err := ReadCases(strings.NewReader("{broken\n")); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("expected line error, got %v", err)
	}
}

func TestQueryFor(t *testing.T) {
	tests := []struct {
		key  string
		mode Mode
		want string
	}{
		{"Cafe", ModeSingular, "cafe"},
		{"bench", ModePlural, "benches"},
		{"city", ModePlural, "cities"},
		{"  ", ModePlural, ""},
	}
	for _, tt := range tests {
		if got := QueryFor(tt.key, tt.mode); got != tt.want {
			t.Errorf("QueryFor(%q, %s) = %q, want %q", tt.key, tt.mode, got, tt.want)
		}
	}
}

func TestRunCountsOutcomes(t *testing.T) {
	s := &tableSearcher{answers: map[string]search.Match{
		"cafe":  {MappingToken: json.RawMessage(`{ "amenity" : "cafe" }`), Name: "cafe"},
		"bench": {MappingToken: json.RawMessage(`{"leisure":"picnic_table"}`), Name: "bench"},
	}}
	cases := []Case{
		{Key: "Cafe", IMR: json.RawMessage(`{"amenity":"cafe"}`)},
		{Key: "bench", IMR: json.RawMessage(`{"amenity":"bench"}`)},
		{Key: "volcano", IMR: json.RawMessage(`{"natural":"volcano"}`)},
		{Key: "", IMR: json.RawMessage(`{}`)},
	}

	r, err := Run(context.Background(), s, cases, Options{Confidence: DefaultConfidence})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if r.Mode != ModeSingular {
		t.Errorf("mode = %s", r.Mode)
	}
	if r.Cases != 4 || r.Skipped != 1 || r.Matched != 1 || r.Mismatches != 1 || r.Misses != 1 {
		t.Errorf("unexpected counts %+v", r)
	}
	if len(r.Failures) != 2 {
		t.Fatalf("got %d failures", len(r.Failures))
	}
	if r.Failures[0].Reason != "mismatch" || r.Failures[0].Name != "bench" {
		t.Errorf("first failure = %+v", r.Failures[0])
	}
	if r.Failures[1].Reason != "miss" || r.Failures[1].Query != "volcano" {
		t.Errorf("second failure = %+v", r.Failures[1])
	}
	if got := r.Accuracy(); got < 0.33 || got > 0.34 {
		t.Errorf("accuracy = %v", got)
	}

	out := FormatReport(r)
	if !strings.Contains(out, "MAPPING EVALUATION") || !strings.Contains(out, `no match for "volcano"`) {
		t.Errorf("unexpected report:\n%s", out)
	}
}

func TestRunPluralQueries(t *testing.T) {
	s := &tableSearcher{answers: map[string]search.Match{
		"benches": {MappingToken: json.RawMessage(`{"amenity":"bench"}`)},
	}}
	r, err := Run(context.Background(), s, []Case{{Key: "Bench", IMR: json.RawMessage(`{"amenity":"bench"}`)}}, Options{Mode: ModePlural})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if r.Matched != 1 {
		t.Errorf("matched = %d, queries = %v", r.Matched, s.queries)
	}
}

func TestRunAbortsOnSearchError(t *testing.T) {
	s := &tableSearcher{err: errors.New("backend down")}
	_, err := Run(context.Background(), s, []Case{{Key: "cafe"}}, Options{})
	if err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("expected search error, got %v", err)
	}

	if _, err := Run(context.Background(), s, nil, Options{Mode: "fuzzy"}); err == nil {
		t.Fatal("expected unknown mode error")
	}
}

func TestSummarize(t *testing.T) {
	var d []time.Duration
	for i := 1; i <= 20; i++ {
		d = append(d, time.Duration(i)*time.Millisecond)
	}
	l := summarize(d)
	if l.Min != time.Millisecond || l.Max != 20*time.Millisecond {
		t.Errorf("min/max = %s/%s", l.Min, l.Max)
	}
	if l.P50 != 10*time.Millisecond {
		t.Errorf("p50 = %s", l.P50)
	}
	if l.P95 != 19*time.Millisecond {
		t.Errorf("p95 = %s", l.P95)
	}
	if l.Mean != 10500*time.Microsecond {
		t.Errorf("mean = %s", l.Mean)
	}
	if (summarize(nil) != Latency{}) {
		t.Error("empty input must give zero latency")
	}
}
