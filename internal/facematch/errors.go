package facematch

import (
	"errors"
	"fmt"
	"math"
)

// QualityReason names why the quality gate rejected an image.
type QualityReason string

const (
	QualityBlurry        QualityReason = "blurry"
	QualityNoFace        QualityReason = "no_face"
	QualityMultipleFaces QualityReason = "multiple_faces"
	QualityFaceTooSmall  QualityReason = "face_too_small"
)

var (
	// ErrQualityRejected matches any *QualityError.
	ErrQualityRejected = errors.New("image rejected by quality gate")
	// ErrExtractionFailed means no detector strategy could produce embeddings.
	ErrExtractionFailed = errors.New("face extraction failed")
	// ErrNoProfiles means there is no enrolled user with a centroid to compare against.
	ErrNoProfiles = errors.New("no user profiles")
	// ErrNotRecognized means the decision rule rejected the best candidate.
	ErrNotRecognized = errors.New("face not recognized")
	// ErrIdentityMismatch matches any *IdentityMismatchError.
	ErrIdentityMismatch = errors.New("identity mismatch")
	// ErrStorage wraps persistence failures; partial writes have been rolled back.
	ErrStorage = errors.New("storage error")
	// ErrInvalidEmbedding means an embedding has the wrong dimensionality or is not finite.
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// QualityError is returned when an input image fails a quality check.
type QualityError struct {
	Reason QualityReason
	Detail string
}

func (e *QualityError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("quality rejected: %s", e.Reason)
	}
	return fmt.Sprintf("quality rejected: %s (%s)", e.Reason, e.Detail)
}

// Is makes errors.Is(err, ErrQualityRejected) true for every reason.
func (e *QualityError) Is(target error) bool {
	return target == ErrQualityRejected
}

// IdentityMismatchError is returned when the caller asserted one identity and the face matched another.
type IdentityMismatchError struct {
	Asserted string
	Detected string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("identity mismatch: asserted %q, detected %q", e.Asserted, e.Detected)
}

func (e *IdentityMismatchError) Is(target error) bool {
	return target == ErrIdentityMismatch
}

// NotRecognizedError carries the decision record of a rejected match.
type NotRecognizedError struct {
	Record DecisionRecord
}

func (e *NotRecognizedError) Error() string {
	return fmt.Sprintf("face not recognized: %s", e.Record.Reason)
}

// Is matches ErrNotRecognized, and ErrNoProfiles when there was nobody to compare against.
func (e *NotRecognizedError) Is(target error) bool {
	if target == ErrNoProfiles {
		return e.Record.Reason == ReasonNoProfiles
	}
	return target == ErrNotRecognized
}

// ValidateEmbedding checks dimensionality and that every component is finite.
func ValidateEmbedding(v []float64) error {
	if len(v) != Dim {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidEmbedding, len(v), Dim)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrInvalidEmbedding, i)
		}
	}
	return nil
}
