package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a user or face does not exist.
var ErrNotFound = errors.New("not found")

// StoredUser represents a user row with its persisted centroid.
type StoredUser struct {
	UserID    string
	Centroid  []float32 // nil when the user has no faces
	CreatedAt time.Time
	UpdatedAt time.Time

	// DecodeErr is set when the stored centroid could not be decoded.
	// The row is still returned so callers can report it without aborting.
	DecodeErr error
}

// StoredFace represents one enrolled face embedding.
type StoredFace struct {
	ID         string
	UserID     string
	Embedding  []float32
	Dim        int
	EnrolledAt time.Time

	// DecodeErr is set when the stored embedding could not be decoded.
	DecodeErr error
}

// UserState is the committed state of one user after a write.
type UserState struct {
	User  StoredUser
	Faces []StoredFace
}
