package profiles

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"golang.org/x/text/unicode/norm"
)

// LoadIssue describes one stored row that was skipped while building a snapshot.
type LoadIssue struct {
	UserID string
	FaceID string // empty for user-level issues
	Err    error
}

func (i LoadIssue) String() string {
	if i.FaceID != "" {
		return fmt.Sprintf("user %s face %s: %v", i.UserID, i.FaceID, i.Err)
	}
	return fmt.Sprintf("user %s: %v", i.UserID, i.Err)
}

// NormalizeUserID trims and NFC-normalizes an identifier so equivalent
// Unicode spellings compare equal.
func NormalizeUserID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// checkVector converts a stored vector, rejecting wrong dimensionality and non-finite components.
func checkVector(v []float32) (facematch.Embedding, error) {
	if len(v) != facematch.Dim {
		return nil, fmt.Errorf("expected %d dimensions, got %d", facematch.Dim, len(v))
	}
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, fmt.Errorf("component %d is not finite", i)
		}
	}
	return facematch.Normalize(facematch.FromFloat32(v)), nil
}

// Build assembles an immutable snapshot from stored rows. Rows that cannot be
// decoded or have the wrong dimensionality are skipped and reported; they never
// abort loading of other users. A user whose centroid is unusable stays in the
// snapshot without a centroid and therefore cannot be matched.
func Build(version uint64, users []database.StoredUser, faces []database.StoredFace) (*facematch.Snapshot, []LoadIssue) {
	snap := &facematch.Snapshot{
		Version:  version,
		LoadedAt: time.Now(),
		Profiles: make(map[string]*facematch.UserProfile, len(users)),
	}
	var issues []LoadIssue

	for i := range users {
		u := &users[i]
		p, userIssues := buildUser(u, nil)
		issues = append(issues, userIssues...)
		if p == nil {
			continue
		}
		if _, dup := snap.Profiles[p.UserID]; dup {
			issues = append(issues, LoadIssue{UserID: u.UserID, Err: fmt.Errorf("duplicate user id after normalization")})
			continue
		}
		snap.Profiles[p.UserID] = p
	}

	for i := range faces {
		f := &faces[i]
		uid := NormalizeUserID(f.UserID)
		p, ok := snap.Profiles[uid]
		if !ok {
			issues = append(issues, LoadIssue{UserID: f.UserID, FaceID: f.ID, Err: fmt.Errorf("face belongs to unknown user")})
			continue
		}
		fp, err := buildFace(uid, f)
		if err != nil {
			issues = append(issues, LoadIssue{UserID: f.UserID, FaceID: f.ID, Err: err})
			continue
		}
		p.Faces = append(p.Faces, fp)
	}

	return snap, issues
}

// BuildUser converts the committed state of one user into a profile.
func BuildUser(state *database.UserState) (*facematch.UserProfile, []LoadIssue) {
	return buildUser(&state.User, state.Faces)
}

func buildUser(u *database.StoredUser, faces []database.StoredFace) (*facematch.UserProfile, []LoadIssue) {
	uid := NormalizeUserID(u.UserID)
	if uid == "" {
		return nil, []LoadIssue{{UserID: u.UserID, Err: fmt.Errorf("empty user id")}}
	}

	var issues []LoadIssue
	p := &facematch.UserProfile{UserID: uid}

	switch {
	case u.DecodeErr != nil:
		issues = append(issues, LoadIssue{UserID: u.UserID, Err: fmt.Errorf("centroid: %w", u.DecodeErr)})
	case u.Centroid != nil:
		c, err := checkVector(u.Centroid)
		if err != nil {
			issues = append(issues, LoadIssue{UserID: u.UserID, Err: fmt.Errorf("centroid: %w", err)})
		} else {
			p.Centroid = c
		}
	}

	for i := range faces {
		fp, err := buildFace(uid, &faces[i])
		if err != nil {
			issues = append(issues, LoadIssue{UserID: u.UserID, FaceID: faces[i].ID, Err: err})
			continue
		}
		p.Faces = append(p.Faces, fp)
	}
	return p, issues
}

func buildFace(uid string, f *database.StoredFace) (facematch.FaceProfile, error) {
	if f.DecodeErr != nil {
		return facematch.FaceProfile{}, f.DecodeErr
	}
	e, err := checkVector(f.Embedding)
	if err != nil {
		return facematch.FaceProfile{}, err
	}
	return facematch.FaceProfile{ID: f.ID, UserID: uid, Embedding: e, EnrolledAt: f.EnrolledAt}, nil
}
