package labels

import "testing"

func TestProcess(t *testing.T) {
	tests := map[string]string{
		"amenity=fast_food":       "amenity fast food",
		"  Church   Building ":    "church building",
		"healthcare:speciality=x": "healthcare speciality x",
		"!!!":                     "",
	}
	for in, want := range tests {
		if got := Process(in); got != want {
			t.Errorf("Process(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("abc", "abc"); got != 100 {
		t.Errorf("Ratio identical = %d", got)
	}
	if got := Ratio("", "abc"); got != 0 {
		t.Errorf("Ratio empty = %d", got)
	}
	// One substitution over 8 characters: (8-2)/8.
	if got := Ratio("abcd", "abce"); got != 75 {
		t.Errorf("Ratio(abcd, abce) = %d, want 75", got)
	}
}

func TestTokenSetRatio(t *testing.T) {
	if got := TokenSetRatio("amenity=fast_food", "fast food"); got != 100 {
		t.Errorf("subset should score 100, got %d", got)
	}
	if got := TokenSetRatio("building=church", "church building"); got != 100 {
		t.Errorf("reordered tokens should score 100, got %d", got)
	}
	if got := TokenSetRatio("amenity=fast_food", ""); got != 0 {
		t.Errorf("empty side should score 0, got %d", got)
	}

	sub := TokenSetRatio("amenity=fast_food", "fast food restaurant")
	if sub >= 100 || sub <= 0 {
		t.Errorf("partial overlap score out of range: %d", sub)
	}

	if a, b := TokenSetRatio("x y", "y z"), TokenSetRatio("y z", "x y"); a != b {
		t.Errorf("TokenSetRatio not symmetric: %d vs %d", a, b)
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver()

	got, ok := r.Resolve("amenity=fast_food", []string{"fast food restaurant", "fast food"})
	if !ok || got.Label != "fast food" {
		t.Errorf("Resolve fast_food = %+v, %v; want fast food", got, ok)
	}

	got, ok = r.Resolve("building=church", []string{"place of worship", "church building"})
	if !ok || got.Label != "church building" {
		t.Errorf("Resolve church = %+v, %v; want church building", got, ok)
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := NewResolver()
	candidates := []string{"shop", "bakery", "bakery shop", "bakery"}

	first, _ := r.Resolve("shop=bakery", candidates)
	for i := 0; i < 10; i++ {
		reversed := make([]string, len(candidates))
		for j, c := range candidates {
			reversed[len(candidates)-1-j] = c
		}
		again, _ := r.Resolve("shop=bakery", reversed)
		if again != first {
			t.Fatalf("Resolve not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestResolveTieBreaksLexically(t *testing.T) {
	constant := NewResolverWithScorer(func(a, b string) int { return 50 })

	got, ok := constant.Resolve("k", []string{"zebra", "apple", "mango"})
	if !ok || got.Label != "apple" {
		t.Errorf("tie = %+v, want apple", got)
	}
}

func TestResolveEmpty(t *testing.T) {
	r := NewResolver()
	if got, ok := r.Resolve("amenity=cafe", nil); ok || got.Label != "" {
		t.Errorf("Resolve(nil) = %+v, %v; want unresolved", got, ok)
	}
	if _, ok := r.Resolve("amenity=cafe", []string{"", ""}); ok {
		t.Error("blank candidates should be unresolved")
	}
}

func TestNormalizeBuilding(t *testing.T) {
	n := NewNormalizer(nil)

	tests := map[string]string{
		"restaurant building": "restaurant",
		"building":            "building",
		"Church Building":     "church",
		"fast food":           "fast food",
		"  building  ":        "building",
	}
	for in, want := range tests {
		if got := n.Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeRuleOrder(t *testing.T) {
	n := NewNormalizer([]Rule{
		{Match: "building", Strip: "building"},
		{Match: "station", Strip: "station"},
	})

	if got := n.Normalize("railway station building"); got != "railway" {
		t.Errorf("Normalize = %q, want railway", got)
	}
	if got := n.Normalize("station building"); got != "station" {
		// First rule leaves "station"; the second would empty it and is skipped.
		t.Errorf("Normalize = %q, want station", got)
	}
}

func TestNormalizeEmptyRules(t *testing.T) {
	n := NewNormalizer([]Rule{})
	if got := n.Normalize("Restaurant Building"); got != "restaurant building" {
		t.Errorf("Normalize = %q", got)
	}
}
