package config

import (
	"sync/atomic"

	"github.com/kozaktomas/face-gate/internal/facematch"
)

// ThresholdStore holds the live thresholds. Readers get a value copy, so a
// concurrent Set never changes thresholds mid-decision.
type ThresholdStore struct {
	v atomic.Pointer[Thresholds]
}

func NewThresholdStore(initial Thresholds) *ThresholdStore {
	s := &ThresholdStore{}
	s.v.Store(&initial)
	return s
}

func (s *ThresholdStore) Get() Thresholds {
	return *s.v.Load()
}

// Set validates and swaps in new thresholds.
func (s *ThresholdStore) Set(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.v.Store(&t)
	return nil
}

// Match returns the subset used by the decision rule.
func (t Thresholds) Match() facematch.Thresholds {
	return facematch.Thresholds{
		UserTol:    t.UserTol,
		UserMargin: t.UserMargin,
		FaceTol:    t.FaceTol,
	}
}
