package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimension matches the 300-dimension subword vectors the tag corpus
// was first indexed with.
const DefaultDimension = 300

const (
	minGram = 3
	maxGram = 5
)

// Hashing is a local subword encoder. Each word contributes its own feature
// plus every character n-gram of "<word>" (n = 3..5); features are hashed into
// Dimension() signed buckets and the sum is L2-normalized.
//
// Words sharing stems land close together ("restaurant", "restaurants"), which
// gives the kNN leg meaningful recall without a model download.
type Hashing struct {
	dim int
}

var _ Gateway = (*Hashing)(nil)

// NewHashing creates a Hashing encoder. A non-positive dim selects DefaultDimension.
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Hashing{dim: dim}
}

// Dimension implements Gateway.
func (h *Hashing) Dimension() int { return h.dim }

// Model implements Gateway.
func (h *Hashing) Model() string { return fmt.Sprintf("hashing-v1-d%d", h.dim) }

// Encode implements Gateway. Text without letters or digits encodes to the zero vector.
func (h *Hashing) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, h.dim)
	for _, word := range words(text) {
		h.add(vec, "w:"+word, 1)

		grams := ngrams("<" + word + ">")
		if len(grams) == 0 {
			continue
		}
		weight := 1 / math.Sqrt(float64(len(grams)))
		for _, g := range grams {
			h.add(vec, "g:"+g, weight)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *Hashing) add(vec []float64, feature string, weight float64) {
	hasher := fnv.New64a()
	hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func ngrams(s string) []string {
	runes := []rune(s)
	var out []string
	for n := minGram; n <= maxGram; n++ {
		for i := 0; i+n <= len(runes); i++ {
			out = append(out, string(runes[i:i+n]))
		}
	}
	return out
}
