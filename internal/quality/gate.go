package quality

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/kozaktomas/face-gate/internal/facematch"
)

// ErrUnavailable means a strategy cannot run (model missing, service down).
// The gate moves on to the next strategy. It never means "zero faces".
var ErrUnavailable = errors.New("detector unavailable")

// Detection is one face found by a strategy.
type Detection struct {
	BBox      image.Rectangle
	Embedding facematch.Embedding
	Score     float64
}

// Strategy is one named face detector. Returning zero detections with a nil
// error is an authoritative answer and stops the fallback chain.
type Strategy interface {
	Name() string
	Detect(ctx context.Context, imageData []byte) ([]Detection, error)
}

// Limits are the gate's tunable thresholds.
type Limits struct {
	BlurThreshold   float64
	MinFaceHeightPx int
}

// Result describes an accepted image.
type Result struct {
	BlurScore float64
	Strategy  string
	Face      Detection
	Width     int
	Height    int
}

// Gate rejects unusable images before any embedding is trusted.
type Gate struct {
	strategies []Strategy
	limits     func() Limits
}

// NewGate creates a gate. Strategies are tried in the given order; limits is
// read once per Check so runtime threshold changes apply to the next image.
func NewGate(limits func() Limits, strategies ...Strategy) *Gate {
	return &Gate{strategies: strategies, limits: limits}
}

// Strategies returns the configured strategy names in order.
func (g *Gate) Strategies() []string {
	names := make([]string, len(g.strategies))
	for i, s := range g.strategies {
		names[i] = s.Name()
	}
	return names
}

// Check runs blur, detection, face count and face size checks in that order.
// Quality failures are *facematch.QualityError; when no strategy can run the
// error wraps facematch.ErrExtractionFailed.
func (g *Gate) Check(ctx context.Context, imageData []byte) (*Result, error) {
	lim := g.limits()

	img, _, err := Decode(imageData)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	res := &Result{Width: b.Dx(), Height: b.Dy()}

	res.BlurScore = BlurScore(img)
	if res.BlurScore < lim.BlurThreshold {
		return nil, &facematch.QualityError{
			Reason: facematch.QualityBlurry,
			Detail: fmt.Sprintf("laplacian variance %.1f < %.1f", res.BlurScore, lim.BlurThreshold),
		}
	}

	name, faces, err := g.Detect(ctx, imageData)
	if err != nil {
		return nil, err
	}
	res.Strategy = name

	switch len(faces) {
	case 0:
		return nil, &facematch.QualityError{Reason: facematch.QualityNoFace}
	case 1:
	default:
		return nil, &facematch.QualityError{
			Reason: facematch.QualityMultipleFaces,
			Detail: fmt.Sprintf("%d faces", len(faces)),
		}
	}

	face := faces[0]
	if h := face.BBox.Dy(); h < lim.MinFaceHeightPx {
		return nil, &facematch.QualityError{
			Reason: facematch.QualityFaceTooSmall,
			Detail: fmt.Sprintf("face height %dpx < %dpx", h, lim.MinFaceHeightPx),
		}
	}
	res.Face = face
	return res, nil
}

// Detect runs the strategies in order and returns the first answer.
// A strategy error (unavailable or otherwise) falls through to the next one.
func (g *Gate) Detect(ctx context.Context, imageData []byte) (string, []Detection, error) {
	if len(g.strategies) == 0 {
		return "", nil, fmt.Errorf("%w: no detector configured", facematch.ErrExtractionFailed)
	}

	var errs []error
	for _, s := range g.strategies {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		faces, err := s.Detect(ctx, imageData)
		if err == nil {
			return s.Name(), faces, nil
		}
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		if !errors.Is(err, ErrUnavailable) {
			log.Printf("quality: detector %s failed: %v", s.Name(), err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return "", nil, fmt.Errorf("%w: %w", facematch.ErrExtractionFailed, errors.Join(errs...))
}
