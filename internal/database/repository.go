package database

import (
	"context"
)

// ProfileReader provides read-only access to users and their faces.
type ProfileReader interface {
	// ListUsers returns every user, including users without a centroid.
	ListUsers(ctx context.Context) ([]StoredUser, error)
	// ListFaces returns every face of every user ordered by user and enrollment time.
	ListFaces(ctx context.Context) ([]StoredFace, error)
	// ListProfiles returns every user and every face read from one
	// consistent point in time.
	ListProfiles(ctx context.Context) ([]StoredUser, []StoredFace, error)
	// GetUser returns ErrNotFound if the user does not exist.
	GetUser(ctx context.Context, userID string) (*StoredUser, error)
	// GetFace returns ErrNotFound if the face does not exist.
	GetFace(ctx context.Context, faceID string) (*StoredFace, error)
	// ListUserFaces returns the faces of one user ordered by enrollment time.
	ListUserFaces(ctx context.Context, userID string) ([]StoredFace, error)
}

// FaceStore provides transactional writes. Every write recomputes the owning
// user's centroid inside the same transaction, so a committed user row is
// always consistent with its faces.
type FaceStore interface {
	ProfileReader

	// EnsureUser creates the user if it does not exist.
	EnsureUser(ctx context.Context, userID string) error

	// AddFaces inserts all faces for userID (creating the user if absent) and
	// updates its centroid. Either every face is stored or none is.
	AddFaces(ctx context.Context, userID string, faces []StoredFace) (*UserState, error)

	// DeleteFace removes one face and recomputes the owner's centroid from the
	// remaining faces (NULL when none remain). Returns ErrNotFound if absent.
	DeleteFace(ctx context.Context, faceID string) (*UserState, error)
}

// Backend is a FaceStore with a lifecycle.
type Backend interface {
	FaceStore
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
