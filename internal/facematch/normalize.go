package facematch

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Normalize returns v scaled to unit L2 norm.
// The zero vector is returned unchanged (as a copy) instead of dividing by zero.
func Normalize(v []float64) Embedding {
	out := make(Embedding, len(v))
	copy(out, v)
	if len(out) == 0 {
		return out
	}
	n := floats.Norm(out, 2)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return out
	}
	floats.Scale(1/n, out)
	return out
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Distance returns the Euclidean distance between a and b.
// Vectors of different (or zero) length are infinitely far apart.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	return floats.Distance(a, b, 2)
}

// Centroid returns Normalize(mean(vs)), or nil if vs is empty.
// Vectors whose length differs from the first one are ignored.
func Centroid(vs []Embedding) Embedding {
	if len(vs) == 0 {
		return nil
	}
	dim := len(vs[0])
	sum := make([]float64, dim)
	n := 0
	for _, v := range vs {
		if len(v) != dim {
			continue
		}
		floats.Add(sum, v)
		n++
	}
	if n == 0 || dim == 0 {
		return nil
	}
	floats.Scale(1/float64(n), sum)
	return Normalize(sum)
}

// FromFloat32 widens a float32 vector as returned by extraction services.
func FromFloat32(v []float32) Embedding {
	out := make(Embedding, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// ToFloat32 narrows an embedding for storage in float32 columns.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
