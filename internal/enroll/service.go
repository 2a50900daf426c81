// Package enroll adds and removes face embeddings and keeps each user's
// centroid consistent with its faces.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/profiles"
	"github.com/kozaktomas/face-gate/internal/quality"
	"github.com/kozaktomas/face-gate/internal/worker"
)

var (
	// ErrInvalidUserID is returned for empty or overlong user identifiers.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrNoImages is returned when an enrollment carries no image.
	ErrNoImages = errors.New("no images provided")
	// ErrTooManyImages is returned when an enrollment exceeds MaxImagesPerEnrollment.
	ErrTooManyImages = errors.New("too many images")
	// ErrImageTooLarge is returned when an image exceeds MaxImageBytes.
	ErrImageTooLarge = errors.New("image too large")
)

// Checker runs the quality gate on one image.
type Checker interface {
	Check(ctx context.Context, imageData []byte) (*quality.Result, error)
}

// Result is the committed state of a user after an enrollment or deletion.
type Result struct {
	UserID     string
	Added      []facematch.FaceProfile
	FaceCount  int
	HasProfile bool
}

// Service performs enrollments. Writes for one user are serialized; different
// users proceed in parallel.
type Service struct {
	gate   Checker
	pool   *worker.Pool
	store  database.FaceStore
	mirror *profiles.Store
	locks  *userLocks
}

// NewService creates an enrollment service. mirror may be nil when no
// in-memory snapshot needs to follow the writes (one-shot CLI commands).
func NewService(gate Checker, pool *worker.Pool, store database.FaceStore, mirror *profiles.Store) *Service {
	return &Service{
		gate:   gate,
		pool:   pool,
		store:  store,
		mirror: mirror,
		locks:  newUserLocks(),
	}
}

// ValidateUserID normalizes id and checks its length.
func ValidateUserID(id string) (string, error) {
	uid := profiles.NormalizeUserID(id)
	if uid == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if n := utf8.RuneCountInString(uid); n > database.MaxUserIDLength {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidUserID, n, database.MaxUserIDLength)
	}
	return uid, nil
}

// Enroll runs every image through the quality gate and stores the resulting
// embeddings. The enrollment is all-or-nothing: if any image is rejected or
// the write fails, nothing is stored. Quality errors are prefixed with the
// image index.
func (s *Service) Enroll(ctx context.Context, userID string, images [][]byte) (*Result, error) {
	uid, err := ValidateUserID(userID)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if len(images) > constants.MaxImagesPerEnrollment {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyImages, len(images), constants.MaxImagesPerEnrollment)
	}
	for i, img := range images {
		if len(img) > constants.MaxImageBytes {
			return nil, fmt.Errorf("image %d: %w: %d bytes", i, ErrImageTooLarge, len(img))
		}
	}

	embs := make([]facematch.Embedding, 0, len(images))
	for i, img := range images {
		res, err := worker.Submit(ctx, s.pool, func(ctx context.Context) (*quality.Result, error) {
			return s.gate.Check(ctx, img)
		})
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		if err := facematch.ValidateEmbedding(res.Face.Embedding); err != nil {
			return nil, fmt.Errorf("image %d: %w: %w", i, facematch.ErrExtractionFailed, err)
		}
		if facematch.IsZero(res.Face.Embedding) {
			return nil, fmt.Errorf("image %d: %w: %w: zero vector", i, facematch.ErrExtractionFailed, facematch.ErrInvalidEmbedding)
		}
		embs = append(embs, res.Face.Embedding)
	}

	return s.persist(ctx, uid, embs)
}

// EnrollEmbedding stores a precomputed embedding without the image path.
func (s *Service) EnrollEmbedding(ctx context.Context, userID string, emb []float64) (*Result, error) {
	uid, err := ValidateUserID(userID)
	if err != nil {
		return nil, err
	}
	if err := facematch.ValidateEmbedding(emb); err != nil {
		return nil, err
	}
	if facematch.IsZero(emb) {
		return nil, fmt.Errorf("%w: zero vector", facematch.ErrInvalidEmbedding)
	}
	return s.persist(ctx, uid, []facematch.Embedding{emb})
}

func (s *Service) persist(ctx context.Context, uid string, embs []facematch.Embedding) (*Result, error) {
	unlock := s.locks.lock(uid)
	defer unlock()

	// A caller that gave up must not leave a write behind.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := make([]database.StoredFace, len(embs))
	for i, e := range embs {
		rows[i] = database.StoredFace{
			ID:        uuid.NewString(),
			UserID:    uid,
			Embedding: facematch.ToFloat32(facematch.Normalize(e)),
			Dim:       len(e),
		}
	}

	state, err := s.store.AddFaces(ctx, uid, rows)
	if err != nil {
		return nil, fmt.Errorf("%w: add faces for %s: %w", facematch.ErrStorage, uid, err)
	}
	s.apply(state)

	added := make([]facematch.FaceProfile, 0, len(rows))
	ids := make(map[string]bool, len(rows))
	for _, r := range rows {
		ids[r.ID] = true
	}
	for _, f := range state.Faces {
		if ids[f.ID] {
			added = append(added, facematch.FaceProfile{
				ID:         f.ID,
				UserID:     f.UserID,
				Embedding:  facematch.FromFloat32(f.Embedding),
				EnrolledAt: f.EnrolledAt,
			})
		}
	}

	log.Printf("enroll: added %d face(s) for user %s, now %d", len(added), uid, len(state.Faces))
	return newResult(state, added), nil
}

// DeleteFace removes one face and recomputes its owner's centroid.
// Returns an error wrapping database.ErrNotFound if the face does not exist.
func (s *Service) DeleteFace(ctx context.Context, faceID string) (*Result, error) {
	face, err := s.store.GetFace(ctx, faceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("face %s: %w", faceID, err)
		}
		return nil, fmt.Errorf("%w: get face %s: %w", facematch.ErrStorage, faceID, err)
	}

	unlock := s.locks.lock(face.UserID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state, err := s.store.DeleteFace(ctx, faceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("face %s: %w", faceID, err)
		}
		return nil, fmt.Errorf("%w: delete face %s: %w", facematch.ErrStorage, faceID, err)
	}
	s.apply(state)

	log.Printf("enroll: deleted face %s of user %s, %d remaining", faceID, state.User.UserID, len(state.Faces))
	return newResult(state, nil), nil
}

// ListFaces returns the enrolled faces of a user.
func (s *Service) ListFaces(ctx context.Context, userID string) ([]facematch.FaceProfile, error) {
	uid, err := ValidateUserID(userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, uid); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", uid, err)
		}
		return nil, fmt.Errorf("%w: get user %s: %w", facematch.ErrStorage, uid, err)
	}

	rows, err := s.store.ListUserFaces(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: list faces of %s: %w", facematch.ErrStorage, uid, err)
	}
	out := make([]facematch.FaceProfile, 0, len(rows))
	for _, f := range rows {
		out = append(out, facematch.FaceProfile{
			ID:         f.ID,
			UserID:     f.UserID,
			Embedding:  facematch.FromFloat32(f.Embedding),
			EnrolledAt: f.EnrolledAt,
		})
	}
	return out, nil
}

func (s *Service) apply(state *database.UserState) {
	if s.mirror == nil {
		return
	}
	for _, issue := range s.mirror.ApplyUserState(state) {
		log.Printf("enroll: skipped %s", issue)
	}
}

func newResult(state *database.UserState, added []facematch.FaceProfile) *Result {
	return &Result{
		UserID:     state.User.UserID,
		Added:      added,
		FaceCount:  len(state.Faces),
		HasProfile: state.User.Centroid != nil,
	}
}
