package labels

import "strings"

// Rule rewrites labels containing Match by removing every occurrence of Strip.
// The rewrite only applies when something is left afterwards.
type Rule struct {
	Match string `mapstructure:"match" yaml:"match" json:"match"`
	Strip string `mapstructure:"strip" yaml:"strip" json:"strip"`
}

// DefaultRules collapses "X building" to "X".
func DefaultRules() []Rule {
	return []Rule{{Match: "building", Strip: "building"}}
}

// Normalizer applies an ordered list of rules to lower-cased labels.
type Normalizer struct {
	rules []Rule
}

// NewNormalizer creates a Normalizer. A nil rule list means DefaultRules.
func NewNormalizer(rules []Rule) *Normalizer {
	if rules == nil {
		rules = DefaultRules()
	}
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		r.Match = strings.ToLower(r.Match)
		r.Strip = strings.ToLower(r.Strip)
		if r.Strip == "" {
			r.Strip = r.Match
		}
		if r.Match == "" {
			continue
		}
		normalized = append(normalized, r)
	}
	return &Normalizer{rules: normalized}
}

// Normalize lower-cases label, collapses whitespace and applies each rule in order.
func (n *Normalizer) Normalize(label string) string {
	out := collapse(strings.ToLower(label))
	for _, r := range n.rules {
		out = r.apply(out)
	}
	return out
}

func (r Rule) apply(label string) string {
	if !strings.Contains(label, r.Match) {
		return label
	}
	rest := collapse(strings.ReplaceAll(label, r.Strip, " "))
	if rest == "" {
		return label
	}
	return rest
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
