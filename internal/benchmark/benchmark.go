/*
Package benchmark evaluates the mapping index against a labelled set.

Each case is one JSON line {"key": "...", "imr": ...}. The key, lower-cased
and optionally pluralised, is sent as a tag search with limit 1; the case
passes when the top match carries a mapping token equal to imr. Plural mode
checks that inflected queries still land on the singular mapping.
*/
package benchmark

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/inflection"

	"github.com/khanglvm/osm-tag-search/internal/search"
)

// Mode selects how a key is turned into a query.
type Mode string

const (
	ModeSingular Mode = "singular"
	ModePlural   Mode = "plural"
)

// DefaultConfidence is the score floor used by the evaluation runs.
const DefaultConfidence = 0.79

// Case is one labelled query.
type Case struct {
	Key string          `json:"key"`
	IMR json.RawMessage `json:"imr"`
}

// Searcher runs a tag search.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, confidence float64) ([]search.Match, error)
}

// Options tunes a run.
type Options struct {
	Mode       Mode
	Confidence float64
}

// Failure is a case that did not resolve to its expected token.
type Failure struct {
	Key      string          `json:"key"`
	Query    string          `json:"query"`
	Reason   string          `json:"reason"` // "miss" or "mismatch"
	Expected json.RawMessage `json:"expected"`
	Got      json.RawMessage `json:"got,omitempty"`
	Name     string          `json:"name,omitempty"`
}

// Latency summarises per-query search time.
type Latency struct {
	Min  time.Duration `json:"min"`
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	Max  time.Duration `json:"max"`
}

// Report is the outcome of a run.
type Report struct {
	Mode       Mode      `json:"mode"`
	Cases      int       `json:"cases"`
	Skipped    int       `json:"skipped"`
	Matched    int       `json:"matched"`
	Mismatches int       `json:"mismatches"`
	Misses     int       `json:"misses"`
	Failures   []Failure `json:"failures"`
	Latency    Latency   `json:"latency"`
}

// Accuracy is the share of evaluated cases that matched.
func (r *Report) Accuracy() float64 {
	evaluated := r.Cases - r.Skipped
	if evaluated == 0 {
		return 0
	}
	return float64(r.Matched) / float64(evaluated)
}

// ReadCases parses JSON lines. Blank lines are ignored.
func ReadCases(r io.Reader) ([]Case, error) {
	var cases []Case
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var c Case
		if err := json.Unmarshal(text, &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cases: %w", err)
	}
	return cases, nil
}

// QueryFor returns the query text for key, or "" when the key is empty.
func QueryFor(key string, mode Mode) string {
	q := strings.ToLower(strings.TrimSpace(key))
	if q == "" {
		return ""
	}
	if mode == ModePlural {
		return inflection.Plural(q)
	}
	return q
}

// Run evaluates every case. A search error aborts the run.
func Run(ctx context.Context, s Searcher, cases []Case, opts Options) (*Report, error) {
	if opts.Mode == "" {
		opts.Mode = ModeSingular
	}
	if opts.Mode != ModeSingular && opts.Mode != ModePlural {
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}

	report := &Report{Mode: opts.Mode, Cases: len(cases), Failures: []Failure{}}
	var durations []time.Duration

	for _, c := range cases {
		query := QueryFor(c.Key, opts.Mode)
		if query == "" {
			report.Skipped++
			continue
		}

		start := time.Now()
		matches, err := s.Search(ctx, query, 1, opts.Confidence)
		durations = append(durations, time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}

		switch {
		case len(matches) == 0:
			report.Misses++
			report.Failures = append(report.Failures, Failure{
				Key: c.Key, Query: query, Reason: "miss", Expected: c.IMR,
			})
		case !sameJSON(matches[0].MappingToken, c.IMR):
			report.Mismatches++
			report.Failures = append(report.Failures, Failure{
				Key: c.Key, Query: query, Reason: "mismatch", Expected: c.IMR,
				Got: matches[0].MappingToken, Name: matches[0].Name,
			})
		default:
			report.Matched++
		}
	}

	report.Latency = summarize(durations)
	return report, nil
}

// sameJSON compares documents structurally so key order and spacing are
// irrelevant.
func sameJSON(a, b json.RawMessage) bool {
	var va, vb interface{}
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

func summarize(d []time.Duration) Latency {
	if len(d) == 0 {
		return Latency{}
	}
	sorted := append([]time.Duration(nil), d...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, v := range sorted {
		total += v
	}
	return Latency{
		Min:  sorted[0],
		Mean: total / time.Duration(len(sorted)),
		P50:  percentile(sorted, 0.50),
		P95:  percentile(sorted, 0.95),
		Max:  sorted[len(sorted)-1],
	}
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(p*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// FormatReport formats the report for display.
func FormatReport(r *Report) string {
	var sb strings.Builder

	sb.WriteString("╔══════════════════════════════════════════════════════════════╗\n")
	sb.WriteString("║              MAPPING EVALUATION RESULTS                      ║\n")
	sb.WriteString("╠══════════════════════════════════════════════════════════════╣\n")
	sb.WriteString(fmt.Sprintf("║  Mode:        %-47s║\n", r.Mode))
	sb.WriteString(fmt.Sprintf("║  Cases:       %-47d║\n", r.Cases))
	sb.WriteString(fmt.Sprintf("║  Skipped:     %-47d║\n", r.Skipped))
	sb.WriteString(fmt.Sprintf("║  Matched:     %-47d║\n", r.Matched))
	sb.WriteString(fmt.Sprintf("║  Mismatches:  %-47d║\n", r.Mismatches))
	sb.WriteString(fmt.Sprintf("║  Misses:      %-47d║\n", r.Misses))
	sb.WriteString(fmt.Sprintf("║  Accuracy:    %-47s║\n", fmt.Sprintf("%.1f%%", r.Accuracy()*100)))
	sb.WriteString("╠══════════════════════════════════════════════════════════════╣\n")
	sb.WriteString(fmt.Sprintf("║  Latency p50: %-47s║\n", r.Latency.P50))
	sb.WriteString(fmt.Sprintf("║  Latency p95: %-47s║\n", r.Latency.P95))
	sb.WriteString(fmt.Sprintf("║  Latency max: %-47s║\n", r.Latency.Max))
	sb.WriteString("╚══════════════════════════════════════════════════════════════╝\n")

	for _, f := range r.Failures {
		switch f.Reason {
		case "miss":
			sb.WriteString(fmt.Sprintf("no match for %q\n", f.Query))
		default:
			sb.WriteString(fmt.Sprintf("mismatch for %q: expected %s, got %s (%s)\n", f.Query, f.Expected, f.Got, f.Name))
		}
	}
	return sb.String()
}
