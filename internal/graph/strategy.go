package graph

import "unicode/utf8"

// Pick chooses one value from a multi-valued predicate.
// Values arrive in store insertion order; Pick returns false for an empty slice.
type Pick func(values []Term) (Term, bool)

// PickFirst returns the first value in store order.
func PickFirst(values []Term) (Term, bool) {
	if len(values) == 0 {
		return Term{}, false
	}
	return values[0], true
}

// PickLongest returns the longest value; ties keep the first seen.
func PickLongest(values []Term) (Term, bool) {
	if len(values) == 0 {
		return Term{}, false
	}
	best := values[0]
	bestLen := utf8.RuneCountInString(best.Value)
	for _, v := range values[1:] {
		if n := utf8.RuneCountInString(v.Value); n > bestLen {
			best, bestLen = v, n
		}
	}
	return best, true
}

// Strategies maps a predicate IRI to the pick applied to it.
// Predicates without an entry use PickFirst.
type Strategies map[string]Pick

// DefaultStrategies picks the longest description and the first of everything else.
func DefaultStrategies() Strategies {
	return Strategies{
		PredDescription: PickLongest,
	}
}

func (s Strategies) pick(predicate string, values []Term) (Term, bool) {
	if p, ok := s[predicate]; ok && p != nil {
		return p(values)
	}
	return PickFirst(values)
}
