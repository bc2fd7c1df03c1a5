package indexing

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// MappingRow is one manually curated mapping: a "|"-separated keyword list
// and the opaque rule it maps to.
type MappingRow struct {
	AppliesTo string          `json:"applies_to"`
	IMR       json.RawMessage `json:"imr"`
}

// Keywords returns the trimmed, non-empty keywords of the row in order.
func (r MappingRow) Keywords() []string {
	var out []string
	for _, k := range strings.Split(r.AppliesTo, "|") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// ReadMappings decodes a JSON array of mapping rows.
func ReadMappings(r io.Reader) ([]MappingRow, error) {
	var rows []MappingRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode mappings: %w", err)
	}
	return rows, nil
}

// DuplicateKeywords lists, sorted, every keyword that appears more than once
// across rows. Keywords compare case-insensitively.
func DuplicateKeywords(rows []MappingRow) []string {
	seen := make(map[string]int)
	for _, row := range rows {
		for _, k := range row.Keywords() {
			seen[strings.ToLower(k)]++
		}
	}

	var dups []string
	for k, n := range seen {
		if n > 1 {
			dups = append(dups, k)
		}
	}
	sort.Strings(dups)
	return dups
}

// ColorBundle groups colour descriptors sharing one set of colour values.
type ColorBundle struct {
	Descriptors []string
	Values      []string
}

const (
	colDescriptors = "Colour Descriptors"
	colValues      = "Colour Values"
)

// ReadColorBundles decodes a CSV file with "Colour Descriptors" and
// "Colour Values" columns holding comma-separated lists.
func ReadColorBundles(r io.Reader) ([]ColorBundle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read colour header: %w", err)
	}
	descIdx, valIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case colDescriptors:
			descIdx = i
		case colValues:
			valIdx = i
		}
	}
	if descIdx < 0 || valIdx < 0 {
		return nil, fmt.Errorf("colour file needs %q and %q columns", colDescriptors, colValues)
	}

	var bundles []ColorBundle
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read colour row %d: %w", line, err)
		}
		b := ColorBundle{
			Descriptors: splitList(record[descIdx]),
			Values:      splitList(record[valIdx]),
		}
		if len(b.Descriptors) == 0 {
			continue
		}
		bundles = append(bundles, b)
	}
	return bundles, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
