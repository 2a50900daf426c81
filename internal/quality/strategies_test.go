package quality

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kozaktomas/face-gate/internal/extractor"
)

type fakeDetector struct {
	resp  *extractor.FaceResponse
	err   error
	model string
}

func (f *fakeDetector) DetectFaces(ctx context.Context, imageData []byte, model string) (*extractor.FaceResponse, error) {
	f.model = model
	return f.resp, f.err
}

func TestHTTPStrategy_Detect(t *testing.T) {
	det := &fakeDetector{resp: &extractor.FaceResponse{
		FacesCount: 1,
		Faces: []extractor.FaceDetection{
			{FaceIndex: 0, Dim: 3, Embedding: []float32{0.5, 0.25, 1}, BBox: []float64{10.4, 20.6, 110.2, 160.5}, DetScore: 0.98},
		},
	}}

	s := NewHTTPStrategy(det, "hog")
	faces, err := s.Detect(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if det.model != "hog" {
		t.Errorf("expected model hog, got %q", det.model)
	}
	if len(faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(faces))
	}
	f := faces[0]
	if f.BBox.Min.X != 10 || f.BBox.Min.Y != 21 || f.BBox.Max.X != 110 || f.BBox.Max.Y != 161 {
		t.Errorf("unexpected bbox %v", f.BBox)
	}
	if f.BBox.Dy() != 140 {
		t.Errorf("expected height 140, got %d", f.BBox.Dy())
	}
	if len(f.Embedding) != 3 || f.Embedding[1] != 0.25 {
		t.Errorf("unexpected embedding %v", f.Embedding)
	}
}

func TestHTTPStrategy_Errors(t *testing.T) {
	tests := []struct {
		name            string
		det             *fakeDetector
		wantUnavailable bool
	}{
		{
			name:            "service unavailable",
			det:             &fakeDetector{err: fmt.Errorf("%w: status 503", extractor.ErrUnavailable)},
			wantUnavailable: true,
		},
		{
			name: "generic failure",
			det:  &fakeDetector{err: errors.New("connection reset")},
		},
		{
			name: "malformed bbox",
			det: &fakeDetector{resp: &extractor.FaceResponse{Faces: []extractor.FaceDetection{
				{BBox: []float64{1, 2, 3}},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPStrategy(tt.det, "cnn").Detect(context.Background(), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrUnavailable); got != tt.wantUnavailable {
				t.Errorf("errors.Is(err, ErrUnavailable) = %v, want %v", got, tt.wantUnavailable)
			}
		})
	}
}

func TestNewHTTPStrategies(t *testing.T) {
	ss := NewHTTPStrategies(&fakeDetector{}, []string{"cnn", "hog"})
	if len(ss) != 2 || ss[0].Name() != "cnn" || ss[1].Name() != "hog" {
		t.Errorf("unexpected strategies")
	}
}
