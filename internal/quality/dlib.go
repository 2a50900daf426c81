//go:build dlib

package quality

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/kozaktomas/face-gate/internal/facematch"
)

// DlibStrategy runs dlib detection in-process via go-face. The recognizer is
// not safe for concurrent use, so calls are serialized.
type DlibStrategy struct {
	mu  *sync.Mutex // shared by every strategy using rec
	rec *face.Recognizer
	cnn bool
}

// NewDlibStrategies loads the models in modelDir and returns the CNN (accurate)
// and HOG (fast) strategies sharing one recognizer.
func NewDlibStrategies(modelDir string) ([]Strategy, func(), error) {
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load dlib models: %v", ErrUnavailable, err)
	}
	mu := &sync.Mutex{}
	return []Strategy{
		&DlibStrategy{mu: mu, rec: rec, cnn: true},
		&DlibStrategy{mu: mu, rec: rec},
	}, rec.Close, nil
}

func (s *DlibStrategy) Name() string {
	if s.cnn {
		return "dlib-cnn"
	}
	return "dlib-hog"
}

func (s *DlibStrategy) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		faces []face.Face
		err   error
	)
	if s.cnn {
		faces, err = s.rec.RecognizeCNN(imageData)
	} else {
		faces, err = s.rec.Recognize(imageData)
	}
	if err != nil {
		return nil, fmt.Errorf("dlib detect: %w", err)
	}

	out := make([]Detection, 0, len(faces))
	for _, f := range faces {
		out = append(out, Detection{
			BBox:      f.Rectangle,
			Embedding: facematch.FromFloat32(f.Descriptor[:]),
			Score:     1,
		})
	}
	return out, nil
}
