package quality

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/kozaktomas/face-gate/internal/facematch"
)

func uniformImage(w, h int, c uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = c
	}
	return img
}

func checkerboard(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestBlurScore(t *testing.T) {
	tests := []struct {
		name    string
		img     image.Image
		wantMin float64
		wantMax float64
	}{
		{"uniform gray", uniformImage(32, 32, 128), 0, 0.0001},
		{"single pixel", uniformImage(1, 1, 200), 0, 0.0001},
		{"checkerboard", checkerboard(32, 32), 100_000, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BlurScore(tt.img)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("BlurScore() = %f, want in [%f, %f]", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestBlurScore_KnownValue(t *testing.T) {
	// 3x1 image [0 255 0]: replicated borders give laplacian [255, -510, 255].
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	img.Pix = []uint8{0, 255, 0}

	want := (255*255 + 510*510 + 255*255) / 3.0
	got := BlurScore(img)
	if math.Abs(got-want) > 0.0001 {
		t.Errorf("BlurScore() = %f, want %f", got, want)
	}
}

func TestBlurScore_SubImage(t *testing.T) {
	full := checkerboard(16, 16)
	sub := full.SubImage(image.Rect(4, 4, 12, 12))
	if BlurScore(sub) < 100_000 {
		t.Error("sub-image with non-zero origin should keep its edges")
	}
}

type fakeStrategy struct {
	name  string
	faces []Detection
	err   error
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	f.calls++
	return f.faces, f.err
}

func face(height int) Detection {
	return Detection{BBox: image.Rect(0, 0, height, height), Embedding: make(facematch.Embedding, facematch.Dim)}
}

func limits(blur float64, height int) func() Limits {
	return func() Limits { return Limits{BlurThreshold: blur, MinFaceHeightPx: height} }
}

func TestGate_Check(t *testing.T) {
	sharp := encodePNG(t, checkerboard(64, 64))
	blurry := encodePNG(t, uniformImage(64, 64, 90))

	tests := []struct {
		name       string
		data       []byte
		strategies []Strategy
		wantReason facematch.QualityReason
		wantErr    error
	}{
		{
			name:       "accepted",
			data:       sharp,
			strategies: []Strategy{&fakeStrategy{name: "cnn", faces: []Detection{face(150)}}},
		},
		{
			name:       "blurry",
			data:       blurry,
			strategies: []Strategy{&fakeStrategy{name: "cnn", faces: []Detection{face(150)}}},
			wantReason: facematch.QualityBlurry,
		},
		{
			name:       "no face",
			data:       sharp,
			strategies: []Strategy{&fakeStrategy{name: "cnn"}},
			wantReason: facematch.QualityNoFace,
		},
		{
			name:       "multiple faces",
			data:       sharp,
			strategies: []Strategy{&fakeStrategy{name: "cnn", faces: []Detection{face(150), face(130)}}},
			wantReason: facematch.QualityMultipleFaces,
		},
		{
			name:       "face too small",
			data:       sharp,
			strategies: []Strategy{&fakeStrategy{name: "cnn", faces: []Detection{face(119)}}},
			wantReason: facematch.QualityFaceTooSmall,
		},
		{
			name:       "exactly min height passes",
			data:       sharp,
			strategies: []Strategy{&fakeStrategy{name: "cnn", faces: []Detection{face(120)}}},
		},
		{
			name:       "all strategies unavailable",
			data:       sharp,
			strategies: []Strategy{&fakeStrategy{name: "cnn", err: ErrUnavailable}, &fakeStrategy{name: "hog", err: ErrUnavailable}},
			wantErr:    facematch.ErrExtractionFailed,
		},
		{
			name:    "invalid image",
			data:    []byte("not an image"),
			wantErr: ErrInvalidImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(limits(100, 120), tt.strategies...)
			res, err := g.Check(context.Background(), tt.data)

			switch {
			case tt.wantReason != "":
				var qe *facematch.QualityError
				if !errors.As(err, &qe) {
					t.Fatalf("expected QualityError, got %v", err)
				}
				if qe.Reason != tt.wantReason {
					t.Errorf("reason = %q, want %q", qe.Reason, tt.wantReason)
				}
				if !errors.Is(err, facematch.ErrQualityRejected) {
					t.Error("expected errors.Is(err, ErrQualityRejected)")
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if res.Width != 64 || res.Height != 64 {
					t.Errorf("unexpected dimensions %dx%d", res.Width, res.Height)
				}
				if res.Strategy != "cnn" {
					t.Errorf("strategy = %q, want cnn", res.Strategy)
				}
			}
		})
	}
}

func TestGate_FallbackOrder(t *testing.T) {
	sharp := encodePNG(t, checkerboard(64, 64))

	t.Run("unavailable falls through", func(t *testing.T) {
		cnn := &fakeStrategy{name: "cnn", err: ErrUnavailable}
		hog := &fakeStrategy{name: "hog", faces: []Detection{face(200)}}
		res, err := NewGate(limits(100, 120), cnn, hog).Check(context.Background(), sharp)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Strategy != "hog" {
			t.Errorf("expected hog to answer, got %q", res.Strategy)
		}
	})

	t.Run("generic error falls through", func(t *testing.T) {
		cnn := &fakeStrategy{name: "cnn", err: errors.New("timeout")}
		hog := &fakeStrategy{name: "hog", faces: []Detection{face(200)}}
		if _, err := NewGate(limits(100, 120), cnn, hog).Check(context.Background(), sharp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hog.calls != 1 {
			t.Errorf("expected hog to be called once, got %d", hog.calls)
		}
	})

	t.Run("zero faces is authoritative", func(t *testing.T) {
		cnn := &fakeStrategy{name: "cnn"}
		hog := &fakeStrategy{name: "hog", faces: []Detection{face(200)}}
		_, err := NewGate(limits(100, 120), cnn, hog).Check(context.Background(), sharp)
		var qe *facematch.QualityError
		if !errors.As(err, &qe) || qe.Reason != facematch.QualityNoFace {
			t.Fatalf("expected no_face, got %v", err)
		}
		if hog.calls != 0 {
			t.Error("hog must not run after cnn reported zero faces")
		}
	})

	t.Run("no strategies", func(t *testing.T) {
		_, err := NewGate(limits(100, 120)).Check(context.Background(), sharp)
		if !errors.Is(err, facematch.ErrExtractionFailed) {
			t.Errorf("expected ErrExtractionFailed, got %v", err)
		}
	})
}

func TestGate_LimitsReadPerCheck(t *testing.T) {
	sharp := encodePNG(t, checkerboard(64, 64))
	height := 120
	g := NewGate(func() Limits { return Limits{MinFaceHeightPx: height} },
		&fakeStrategy{name: "cnn", faces: []Detection{face(130)}})

	if _, err := g.Check(context.Background(), sharp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	height = 140
	if _, err := g.Check(context.Background(), sharp); !errors.Is(err, facematch.ErrQualityRejected) {
		t.Errorf("expected rejection after raising min height, got %v", err)
	}
}

func TestGate_Strategies(t *testing.T) {
	g := NewGate(limits(0, 0), &fakeStrategy{name: "cnn"}, &fakeStrategy{name: "hog"})
	names := g.Strategies()
	if len(names) != 2 || names[0] != "cnn" || names[1] != "hog" {
		t.Errorf("unexpected strategies %v", names)
	}
}
