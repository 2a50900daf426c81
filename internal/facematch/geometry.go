package facematch

// BBoxHeight returns the height of a [x1, y1, x2, y2] pixel bounding box, or 0 if malformed.
func BBoxHeight(bbox []float64) float64 {
	if len(bbox) != 4 || bbox[3] < bbox[1] {
		return 0
	}
	return bbox[3] - bbox[1]
}

// BBoxWidth returns the width of a [x1, y1, x2, y2] pixel bounding box, or 0 if malformed.
func BBoxWidth(bbox []float64) float64 {
	if len(bbox) != 4 || bbox[2] < bbox[0] {
		return 0
	}
	return bbox[2] - bbox[0]
}

// CSSToCorners converts a dlib/face_recognition (top, right, bottom, left) rectangle
// to [x1, y1, x2, y2] corner format.
func CSSToCorners(top, right, bottom, left int) []float64 {
	return []float64{float64(left), float64(top), float64(right), float64(bottom)}
}
