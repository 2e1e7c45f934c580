package journeysvc

import (
	"context"
	"fmt"

	"github.com/ignite/journey-engine/internal/journey"
)

// HandleUserChange reacts to an identity transition (typically an anonymous
// device id resolving to a known user): every journey in memory under
// oldID is dropped (its timers cancelled) without being marked cancelled in
// storage, since it belongs to an identity the host no longer queries under;
// newID's already-persisted live journeys are then loaded into the registry
// and their resume timers rearmed.
func (s *Service) HandleUserChange(ctx context.Context, oldID, newID string) error {
	s.mu.Lock()
	var stale []journey.Journey
	for _, j := range s.live {
		if j.DistinctID == oldID {
			stale = append(stale, j)
		}
	}
	s.mu.Unlock()

	for _, j := range stale {
		s.cancelTimer(j.ID)
		s.mu.Lock()
		s.unregisterLocked(j)
		s.mu.Unlock()
	}

	persisted, err := s.store.LoadActiveJourneys(ctx)
	if err != nil {
		return fmt.Errorf("journeysvc: load active journeys for identity transition: %w", err)
	}

	for _, j := range persisted {
		if j.DistinctID != newID {
			continue
		}
		s.touchLocked(j)
		if j.Status == journey.StatusPaused && j.ResumeAt != nil {
			s.scheduleResume(j.ID, *j.ResumeAt)
		}
	}
	return nil
}
