package quality

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/kozaktomas/face-gate/internal/extractor"
	"github.com/kozaktomas/face-gate/internal/facematch"
)

// FaceDetector is the subset of *extractor.Client used by HTTPStrategy.
type FaceDetector interface {
	DetectFaces(ctx context.Context, imageData []byte, model string) (*extractor.FaceResponse, error)
}

// HTTPStrategy detects faces through the extraction service with one model.
type HTTPStrategy struct {
	client FaceDetector
	model  string
}

// NewHTTPStrategy creates a strategy for the given model ("cnn" or "hog").
func NewHTTPStrategy(client FaceDetector, model string) *HTTPStrategy {
	return &HTTPStrategy{client: client, model: model}
}

func (s *HTTPStrategy) Name() string { return s.model }

func (s *HTTPStrategy) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	resp, err := s.client.DetectFaces(ctx, imageData, s.model)
	if err != nil {
		if errors.Is(err, extractor.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}

	out := make([]Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			return nil, fmt.Errorf("face %d: expected 4 bbox values, got %d", f.FaceIndex, len(f.BBox))
		}
		out = append(out, Detection{
			BBox: image.Rect(
				int(math.Round(f.BBox[0])), int(math.Round(f.BBox[1])),
				int(math.Round(f.BBox[2])), int(math.Round(f.BBox[3])),
			),
			Embedding: facematch.FromFloat32(f.Embedding),
			Score:     f.DetScore,
		})
	}
	return out, nil
}

// NewHTTPStrategies builds one HTTPStrategy per model, preserving order.
func NewHTTPStrategies(client FaceDetector, models []string) []Strategy {
	out := make([]Strategy, 0, len(models))
	for _, m := range models {
		out = append(out, NewHTTPStrategy(client, m))
	}
	return out
}
