package embedclient

import (
	"context"
	"hash/fnv"
	"math"
)

// Deterministic is a lightweight, deterministic embedder suitable for
// tests and for deployments with no configured embedding service. It
// hashes byte 3-grams into a fixed-size vector and L2-normalizes the
// result, so cosine similarity between two texts reflects shared
// substrings rather than meaning — good enough to exercise every code
// path that depends on "a pluggable text->vector function" without
// depending on an external model.
type Deterministic struct {
	dim  int
	seed uint64
}

// NewDeterministic constructs a Deterministic embedder of the given
// dimension. dim <= 0 defaults to 768, matching the store's default
// collection dimensionality.
func NewDeterministic(dim int, seed uint64) *Deterministic {
	if dim <= 0 {
		dim = 768
	}
	return &Deterministic{dim: dim, seed: seed}
}

func (d *Deterministic) Dimension() int            { return d.dim }
func (d *Deterministic) Ping(_ context.Context) error { return nil }

func (d *Deterministic) Embed(text string) ([]float32, error) {
	v := make([]float32, d.dim)
	b := []byte(text)
	if len(b) == 0 {
		return v, nil
	}
	if len(b) < 3 {
		hashInto(d.seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			hashInto(d.seed, b[i:i+3], v)
		}
	}
	normalize(v)
	return v, nil
}

func (d *Deterministic) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := d.Embed(t)
		out[i] = v
	}
	return out, nil
}

func hashInto(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
