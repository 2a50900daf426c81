// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-gate/internal/database"
)

// MockFaceStore is an in-memory implementation of database.Backend.
type MockFaceStore struct {
	mu    sync.RWMutex
	users map[string]*database.StoredUser
	faces map[string]*database.StoredFace
	seq   int64 // monotonic enrollment clock so ordering is stable

	// Error injection
	ListUsersError  error
	ListFacesError  error
	GetUserError    error
	GetFaceError    error
	EnsureUserError error
	AddFacesError   error
	DeleteFaceError error

	// Calls counts write operations, for assertions on rollback behavior.
	Calls struct {
		AddFaces   int
		DeleteFace int
	}
}

var _ database.Backend = (*MockFaceStore)(nil)

// NewMockFaceStore creates a new empty mock store.
func NewMockFaceStore() *MockFaceStore {
	return &MockFaceStore{
		users: make(map[string]*database.StoredUser),
		faces: make(map[string]*database.StoredFace),
	}
}

// PutUser inserts or replaces a raw user row without recomputing anything.
// Used to seed inconsistent or malformed state.
func (m *MockFaceStore) PutUser(u database.StoredUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = &u
}

// PutFace inserts or replaces a raw face row without recomputing the centroid.
func (m *MockFaceStore) PutFace(f database.StoredFace) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.EnrolledAt.IsZero() {
		f.EnrolledAt = m.tick()
	}
	m.faces[f.ID] = &f
}

// tick must be called with mu held.
func (m *MockFaceStore) tick() time.Time {
	m.seq++
	return time.Unix(1_700_000_000, 0).Add(time.Duration(m.seq) * time.Millisecond).UTC()
}

func (m *MockFaceStore) Migrate(ctx context.Context) error { return nil }

func (m *MockFaceStore) Close() error { return nil }

func (m *MockFaceStore) Ping(ctx context.Context) error { return nil }

// ListUsers returns all users ordered by ID.
func (m *MockFaceStore) ListUsers(ctx context.Context) ([]database.StoredUser, error) {
	if m.ListUsersError != nil {
		return nil, m.ListUsersError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedUsers(), nil
}

// ListProfiles returns users and faces under a single read lock.
func (m *MockFaceStore) ListProfiles(ctx context.Context) ([]database.StoredUser, []database.StoredFace, error) {
	if m.ListUsersError != nil {
		return nil, nil, m.ListUsersError
	}
	if m.ListFacesError != nil {
		return nil, nil, m.ListFacesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedUsers(), m.sortedFaces(func(*database.StoredFace) bool { return true }), nil
}

// sortedUsers must be called with mu held.
func (m *MockFaceStore) sortedUsers() []database.StoredUser {
	users := make([]database.StoredUser, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	slices.SortFunc(users, func(a, b database.StoredUser) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return users
}

// ListFaces returns all faces ordered by user and enrollment time.
func (m *MockFaceStore) ListFaces(ctx context.Context) ([]database.StoredFace, error) {
	if m.ListFacesError != nil {
		return nil, m.ListFacesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedFaces(func(*database.StoredFace) bool { return true }), nil
}

// GetUser retrieves a user by ID.
func (m *MockFaceStore) GetUser(ctx context.Context, userID string) (*database.StoredUser, error) {
	if m.GetUserError != nil {
		return nil, m.GetUserError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetFace retrieves a face by ID.
func (m *MockFaceStore) GetFace(ctx context.Context, faceID string) (*database.StoredFace, error) {
	if m.GetFaceError != nil {
		return nil, m.GetFaceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.faces[faceID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

// ListUserFaces returns the faces of one user.
func (m *MockFaceStore) ListUserFaces(ctx context.Context, userID string) ([]database.StoredFace, error) {
	if m.ListFacesError != nil {
		return nil, m.ListFacesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedFaces(func(f *database.StoredFace) bool { return f.UserID == userID }), nil
}

// EnsureUser creates a user if absent.
func (m *MockFaceStore) EnsureUser(ctx context.Context, userID string) error {
	if m.EnsureUserError != nil {
		return m.EnsureUserError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureUser(userID)
	return nil
}

// AddFaces stores faces atomically and recomputes the user's centroid.
func (m *MockFaceStore) AddFaces(
	ctx context.Context, userID string, faces []database.StoredFace,
) (*database.UserState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.AddFaces++
	if m.AddFacesError != nil {
		return nil, m.AddFacesError
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	m.ensureUser(userID)
	for i := range faces {
		f := faces[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.UserID = userID
		f.Dim = len(f.Embedding)
		f.EnrolledAt = m.tick()
		faces[i].ID = f.ID
		m.faces[f.ID] = &f
	}
	return m.recompute(userID), nil
}

// DeleteFace removes a face and recomputes its owner's centroid.
func (m *MockFaceStore) DeleteFace(ctx context.Context, faceID string) (*database.UserState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.DeleteFace++
	if m.DeleteFaceError != nil {
		return nil, m.DeleteFaceError
	}
	f, ok := m.faces[faceID]
	if !ok {
		return nil, database.ErrNotFound
	}
	delete(m.faces, faceID)
	return m.recompute(f.UserID), nil
}

// ensureUser must be called with mu held.
func (m *MockFaceStore) ensureUser(userID string) {
	if _, ok := m.users[userID]; ok {
		return
	}
	now := m.tick()
	m.users[userID] = &database.StoredUser{UserID: userID, CreatedAt: now, UpdatedAt: now}
}

// recompute must be called with mu held.
func (m *MockFaceStore) recompute(userID string) *database.UserState {
	faces := m.sortedFaces(func(f *database.StoredFace) bool { return f.UserID == userID })
	u := m.users[userID]
	u.Centroid = database.RecomputeCentroid(faces)
	u.DecodeErr = nil
	u.UpdatedAt = m.tick()
	return &database.UserState{User: *u, Faces: faces}
}

// sortedFaces must be called with mu held.
func (m *MockFaceStore) sortedFaces(keep func(*database.StoredFace) bool) []database.StoredFace {
	var out []database.StoredFace
	for _, f := range m.faces {
		if keep(f) {
			out = append(out, *f)
		}
	}
	slices.SortFunc(out, func(a, b database.StoredFace) int {
		if c := cmp.Compare(a.UserID, b.UserID); c != 0 {
			return c
		}
		if c := a.EnrolledAt.Compare(b.EnrolledAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
