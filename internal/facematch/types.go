package facematch

import "time"

// Dim is the fixed dimensionality of face embeddings (dlib ResNet descriptors).
const Dim = 128

// Embedding is a face descriptor. Stored and compared L2-normalized.
type Embedding []float64

// FaceProfile is one enrolled face of a user.
type FaceProfile struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Embedding  Embedding `json:"-"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// UserProfile aggregates a user's enrolled faces.
// Centroid is nil when the user has no usable faces; such a user can never be matched.
type UserProfile struct {
	UserID   string
	Centroid Embedding
	Faces    []FaceProfile
}

// Snapshot is an immutable point-in-time view of all user profiles.
// Decisions must be computed against a single Snapshot obtained once per request.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time
	Profiles map[string]*UserProfile
}

// EmptySnapshot returns a snapshot with no profiles.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Profiles: map[string]*UserProfile{}}
}

// Len returns the number of users in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Profiles)
}

// FaceCount returns the total number of faces across all users.
func (s *Snapshot) FaceCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, p := range s.Profiles {
		n += len(p.Faces)
	}
	return n
}

// Thresholds are the three tunable scalars of the match rule.
type Thresholds struct {
	UserTol    float64 `json:"user_tol" yaml:"user_tol"`
	UserMargin float64 `json:"user_margin" yaml:"user_margin"`
	FaceTol    float64 `json:"face_tol" yaml:"face_tol"`
}

// Reason explains the outcome of a decision.
type Reason string

const (
	ReasonAccepted     Reason = "accepted"
	ReasonNoProfiles   Reason = "no_profiles"
	ReasonUserDistance Reason = "user_distance"
	ReasonMargin       Reason = "margin"
	ReasonFaceDistance Reason = "face_distance"
)

// DecisionRecord is the immutable, append-only result of one match attempt.
type DecisionRecord struct {
	QueryID          string
	Timestamp        time.Time
	BestUserID       string
	BestDistance     float64
	RunnerUpDistance float64
	Margin           float64
	PerFaceMin       float64
	PerFaceTop3      []float64
	Accepted         bool
	Reason           Reason
	Latency          time.Duration
	SnapshotVersion  uint64
	TrueLabel        string
}

// Decision is the outcome returned by Decide.
type Decision struct {
	Accepted bool
	Reason   Reason
	Record   DecisionRecord
}
