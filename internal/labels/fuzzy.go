package labels

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
)

// ratioParams weights a substitution as a delete plus an insert, so
// Similarity equals (len(a)+len(b)-distance) / (len(a)+len(b)).
var ratioParams = levenshtein.NewParams().SubCost(2)

// Process lower-cases s and turns every rune that is not a letter or digit
// into a space, then collapses runs of spaces.
func Process(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Ratio returns the normalized edit-distance similarity of a and b in 0..100.
func Ratio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	return int(math.Round(100 * levenshtein.Similarity(a, b, ratioParams)))
}

// TokenSetRatio scores a and b by token overlap, ignoring word order and
// duplicated words. Extra words on one side ("fast food" vs "fast food
// restaurant") are penalized less than by a plain ratio.
func TokenSetRatio(a, b string) int {
	ta, tb := tokenSet(Process(a)), tokenSet(Process(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var sect, onlyA, onlyB []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			sect = append(sect, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(sect)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(sect, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	if base != "" && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	best := Ratio(combinedA, combinedB)
	if base != "" {
		best = max(best, Ratio(base, combinedA), Ratio(base, combinedB))
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}
