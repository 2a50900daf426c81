//go:build !dlib

package quality

import "fmt"

// NewDlibStrategies is unavailable unless built with -tags dlib.
func NewDlibStrategies(modelDir string) ([]Strategy, func(), error) {
	return nil, nil, fmt.Errorf("%w: binary built without dlib support", ErrUnavailable)
}
