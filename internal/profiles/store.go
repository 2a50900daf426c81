package profiles

import (
	"context"
	"fmt"
	"log"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/facematch"
)

// Store is an in-memory mirror of all user profiles. Readers get an immutable
// *facematch.Snapshot; writers build a copy and swap it in with a new version.
type Store struct {
	reader database.ProfileReader

	cur atomic.Pointer[facematch.Snapshot]
	mu  sync.Mutex // serializes writers, held for the whole of Reload

	scheduler *gocron.Scheduler
}

// NewStore creates a store holding an empty snapshot (version 0).
func NewStore(reader database.ProfileReader) *Store {
	s := &Store{reader: reader}
	s.cur.Store(facematch.EmptySnapshot())
	return s
}

// Snapshot returns the current point-in-time view. Never nil.
func (s *Store) Snapshot() *facematch.Snapshot {
	return s.cur.Load()
}

// Reload rebuilds the snapshot from storage. On error the previous snapshot is kept.
func (s *Store) Reload(ctx context.Context) ([]LoadIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, faces, err := s.reader.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	snap, issues := Build(s.cur.Load().Version+1, users, faces)
	s.cur.Store(snap)
	return issues, nil
}

// ApplyUserState replaces one user's entry with its committed state.
func (s *Store) ApplyUserState(state *database.UserState) []LoadIssue {
	p, issues := BuildUser(state)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.swap(func(m map[string]*facematch.UserProfile) {
		if p != nil {
			m[p.UserID] = p
		}
	})
	return issues
}

// RemoveUser drops a user from the mirror.
func (s *Store) RemoveUser(userID string) {
	uid := NormalizeUserID(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.swap(func(m map[string]*facematch.UserProfile) {
		delete(m, uid)
	})
}

// swap must be called with mu held.
func (s *Store) swap(mutate func(map[string]*facematch.UserProfile)) {
	old := s.cur.Load()
	m := maps.Clone(old.Profiles)
	if m == nil {
		m = map[string]*facematch.UserProfile{}
	}
	mutate(m)
	s.cur.Store(&facematch.Snapshot{
		Version:  old.Version + 1,
		LoadedAt: old.LoadedAt,
		Profiles: m,
	})
}

// StartRefresh schedules a periodic full reload so writes made by other
// processes are picked up. Errors are logged and the previous snapshot is kept.
func (s *Store) StartRefresh(interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	_, err := sched.Every(interval).WaitForSchedule().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		issues, err := s.Reload(ctx)
		if err != nil {
			log.Printf("profiles: reload failed, keeping version %d: %v", s.Snapshot().Version, err)
			return
		}
		for _, issue := range issues {
			log.Printf("profiles: skipped %s", issue)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule profile refresh: %w", err)
	}

	sched.StartAsync()
	s.scheduler = sched
	return nil
}

// Stop cancels the periodic refresh.
func (s *Store) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
