package graph

import (
	"fmt"
	"sort"
	"strings"
)

// OneToOneError reports raw keys or URIs that occur more than once among
// active tags.
type OneToOneError struct {
	DuplicateURIs    []string
	DuplicateRawKeys []string
}

func (e *OneToOneError) Error() string {
	var parts []string
	if len(e.DuplicateURIs) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate uris: %s", strings.Join(e.DuplicateURIs, ", ")))
	}
	if len(e.DuplicateRawKeys) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate raw keys: %s", strings.Join(e.DuplicateRawKeys, ", ")))
	}
	return "raw key to uri mapping is not one-to-one: " + strings.Join(parts, "; ")
}

// CheckOneToOne verifies that every URI and every RawKey appears exactly once.
func CheckOneToOne(refs []TagRef) error {
	uris := make(map[string]int, len(refs))
	keys := make(map[string]int, len(refs))
	for _, r := range refs {
		uris[r.URI]++
		keys[r.RawKey]++
	}

	e := &OneToOneError{
		DuplicateURIs:    duplicates(uris),
		DuplicateRawKeys: duplicates(keys),
	}
	if len(e.DuplicateURIs) == 0 && len(e.DuplicateRawKeys) == 0 {
		return nil
	}
	return e
}

func duplicates(counts map[string]int) []string {
	var out []string
	for k, n := range counts {
		if n > 1 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
