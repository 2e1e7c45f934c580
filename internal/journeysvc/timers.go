package journeysvc

import (
	"context"
	"log"
	"time"

	"github.com/ignite/journey-engine/internal/executor"
	"github.com/ignite/journey-engine/internal/journey"
)

// scheduleResume (re)arms the wake timer for a paused journey so it resumes
// automatically when its deadline passes, including deadlines already in
// the past (e.g. one that fired while the process was asleep).
func (s *Service) scheduleResume(id journey.ID, deadline time.Time) {
	s.cancelTimer(id)

	d := deadline.Sub(s.now())
	if d < 0 {
		d = 0
	}

	t := time.AfterFunc(d, func() { s.resumeOnTimer(id) })

	s.mu.Lock()
	s.timers[id] = t
	s.mu.Unlock()
}

// cancelTimer stops and forgets id's resume timer, if one is armed. Safe to
// call when no timer exists.
func (s *Service) cancelTimer(id journey.ID) {
	s.mu.Lock()
	t, ok := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()

	if ok {
		t.Stop()
	}
}

// resumeOnTimer fires when a scheduled deadline elapses. It re-reads the
// journey's canonical in-memory state (it may have already been resumed
// reactively, or completed, between scheduling and firing) before resuming.
func (s *Service) resumeOnTimer(id journey.ID) {
	s.mu.Lock()
	j, ok := s.live[id]
	s.mu.Unlock()
	if !ok || j.Status != journey.StatusPaused {
		return
	}

	ctx := context.Background()
	j = j.Resume(s.now())
	if _, err := s.executeJourney(ctx, j, executor.ResumeTimer); err != nil {
		log.Printf("journeysvc: resume journey %s on timer: %v", id, err)
	}
}

// tryReactiveResume resumes id if it is currently paused on a waitUntil
// node, cancelling its pending timer first. Used when an inbound event or
// segment change may satisfy a purely reactive (no-deadline) wait, or
// pre-empt a timed one. Journeys paused on any other node type are left to
// their timers.
func (s *Service) tryReactiveResume(ctx context.Context, id journey.ID, reason executor.ResumeReason) {
	s.mu.Lock()
	j, ok := s.live[id]
	s.mu.Unlock()
	if !ok || j.Status != journey.StatusPaused || j.CurrentNodeID == nil {
		return
	}
	c, ok := s.campaignFor(j.CampaignID)
	if !ok {
		return
	}
	if node, ok := c.Node(*j.CurrentNodeID); !ok || node.Type != journey.NodeWaitUntil {
		return
	}

	s.cancelTimer(id)
	j = j.Resume(s.now())
	if _, err := s.executeJourney(ctx, j, reason); err != nil {
		log.Printf("journeysvc: reactive resume journey %s: %v", id, err)
	}
}
