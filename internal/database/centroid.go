package database

import (
	"github.com/kozaktomas/face-gate/internal/facematch"
)

// RecomputeCentroid returns Normalize(mean(faces)) as float32 for storage.
// Faces that failed to decode or do not have the expected dimension are skipped.
// Returns nil when no usable face remains.
func RecomputeCentroid(faces []StoredFace) []float32 {
	vs := make([]facematch.Embedding, 0, len(faces))
	for i := range faces {
		f := &faces[i]
		if f.DecodeErr != nil || len(f.Embedding) != facematch.Dim {
			continue
		}
		vs = append(vs, facematch.FromFloat32(f.Embedding))
	}
	c := facematch.Centroid(vs)
	if c == nil {
		return nil
	}
	return facematch.ToFloat32(c)
}
