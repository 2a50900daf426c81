package quality

import (
	"image"

	"gonum.org/v1/gonum/stat"
)

// BlurScore returns the variance of the 3x3 Laplacian of the grayscale image,
// kernel [0 1 0; 1 -4 1; 0 1 0]. Borders use replicated edge pixels.
// Low values mean few edges, i.e. a blurry image.
func BlurScore(img image.Image) float64 {
	gray := toGrayscale(img)
	r := gray.Rect
	w, h := r.Dx(), r.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return float64(gray.Pix[gray.PixOffset(r.Min.X+x, r.Min.Y+y)])
	}

	lap := make([]float64, 0, w*h)
	for y := range h {
		for x := range w {
			v := at(x, y-1) + at(x-1, y) + at(x+1, y) + at(x, y+1) - 4*at(x, y)
			lap = append(lap, v)
		}
	}
	return stat.PopVariance(lap, nil)
}
