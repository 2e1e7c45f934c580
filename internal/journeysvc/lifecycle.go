package journeysvc

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/journey-engine/internal/executor"
	"github.com/ignite/journey-engine/internal/frequency"
	"github.com/ignite/journey-engine/internal/goal"
	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journey"
	"github.com/ignite/journey-engine/internal/telemetry"
)

// StartJourney admits and starts a journey for distinctID against campaignID
// under the campaign's frequency policy, driving it through its first batch
// of synchronous nodes before returning. started is false when the
// frequency policy denied admission; that is not an error.
func (s *Service) StartJourney(ctx context.Context, campaignID, distinctID string) (j journey.Journey, started bool, err error) {
	c, ok := s.campaignFor(campaignID)
	if !ok {
		return journey.Journey{}, false, fmt.Errorf("journeysvc: unknown campaign %s", campaignID)
	}
	return s.admitAndStart(ctx, c, distinctID, s.now())
}

// admitAndStart runs frequency admission for (c, distinctID) and, if
// admitted, constructs and drives a new journey. It is shared by the public
// StartJourney entry point and the event/segment-trigger matching paths,
// which have already decided the campaign is a trigger candidate and only
// need the frequency gate applied.
func (s *Service) admitAndStart(ctx context.Context, c journey.Campaign, distinctID string, now time.Time) (journey.Journey, bool, error) {
	decision, err := frequency.Check(ctx, s.store, s, c, distinctID, now)
	if err != nil {
		return journey.Journey{}, false, fmt.Errorf("journeysvc: admission check for %s/%s: %w", distinctID, c.ID, err)
	}
	if !decision.Admit {
		return journey.Journey{}, false, nil
	}

	if decision.CancelLive {
		if live, ok := s.lookupByKey(distinctID, c.ID); ok {
			if _, err := s.completeJourney(ctx, live, now, journey.StatusCancelled, journey.ExitReasonCancelled); err != nil {
				return journey.Journey{}, false, fmt.Errorf("journeysvc: cancel superseded journey %s: %w", live.ID, err)
			}
		}
	}

	j := journey.New(c, distinctID, now)
	s.mu.Lock()
	s.registerLocked(j)
	s.mu.Unlock()

	j, err = s.executeJourney(ctx, j, executor.ResumeStart)
	if err != nil {
		return j, true, err
	}
	return j, true, nil
}

// executeJourney drives j forward from its current node until it either
// pauses (async, awaiting a timer or a reactive event) or reaches a
// terminal state, persisting exactly at those two boundaries.
func (s *Service) executeJourney(ctx context.Context, j journey.Journey, reason executor.ResumeReason) (journey.Journey, error) {
	c, ok := s.campaignFor(j.CampaignID)
	if !ok {
		return s.completeJourney(ctx, j, s.now(), journey.StatusCompleted, journey.ExitReasonError)
	}

	for {
		now := s.now()
		evalCtx := s.buildEvalContext(ctx, j.DistinctID, nil)

		if j.ConvertedAt == nil {
			if gr := goal.Evaluate(j, evalCtx); gr.Met {
				j = j.SetConverted(gr.At)
				telemetry.JourneyGoalMet(ctx, telemetryEmitter{s.events}, j)
			}
		}

		if exitReason, terminal := s.evaluateExit(j, c, evalCtx); terminal {
			return s.completeJourney(ctx, j, now, statusForReason(exitReason), exitReason)
		}

		if j.CurrentNodeID == nil {
			return s.completeJourney(ctx, j, now, journey.StatusCompleted, journey.ExitReasonError)
		}
		node, ok := c.Node(*j.CurrentNodeID)
		if !ok {
			return s.completeJourney(ctx, j, now, journey.StatusCompleted, journey.ExitReasonError)
		}

		res, nj, err := executor.Execute(ctx, s.execDeps, node, j, reason, evalCtx)
		if err != nil {
			return s.completeJourney(ctx, nj, now, journey.StatusCompleted, journey.ExitReasonError)
		}
		j = nj
		reason = executor.ResumeStart

		switch res.Action {
		case executor.ActionContinue:
			if len(res.NextIDs) == 0 {
				return s.completeJourney(ctx, j, now, journey.StatusCompleted, journey.ExitReasonCompleted)
			}
			j = j.MoveToNode(res.NextIDs[0], now)
			s.touchLocked(j)

		case executor.ActionSkip:
			if res.SkipID == nil {
				return s.completeJourney(ctx, j, now, journey.StatusCompleted, journey.ExitReasonCompleted)
			}
			j = j.MoveToNode(*res.SkipID, now)
			s.touchLocked(j)

		case executor.ActionAsync:
			j = j.Pause(now, res.Deadline)
			if err := s.store.SaveJourney(ctx, j); err != nil {
				return j, fmt.Errorf("journeysvc: persist paused journey %s: %w", j.ID, err)
			}
			s.touchLocked(j)
			if res.Deadline != nil {
				s.scheduleResume(j.ID, *res.Deadline)
			} else {
				s.cancelTimer(j.ID)
			}
			return j, nil

		case executor.ActionComplete:
			return s.completeJourney(ctx, j, now, journey.StatusCompleted, res.ExitReason)

		default:
			return s.completeJourney(ctx, j, now, journey.StatusCompleted, journey.ExitReasonError)
		}
	}
}

// evaluateExit applies the exit-policy rules (beyond the node graph itself)
// that can terminate an otherwise still-running journey: expiry, goal-driven
// exit, and a segment trigger's condition no longer holding.
func (s *Service) evaluateExit(j journey.Journey, c journey.Campaign, evalCtx ir.EvalContext) (journey.ExitReason, bool) {
	if j.HasExpired(evalCtx.Now) {
		return journey.ExitReasonExpired, true
	}

	policy := j.ExitPolicySnapshot
	if (policy == journey.ExitOnGoal || policy == journey.ExitOnGoalOrStop) && j.ConvertedAt != nil {
		return journey.ExitReasonGoalMet, true
	}

	if policy == journey.ExitOnStopMatching || policy == journey.ExitOnGoalOrStop {
		if c.Trigger.Kind == journey.TriggerSegment && c.Trigger.Condition != nil {
			holds, err := ir.EvalBool(*c.Trigger.Condition, evalCtx)
			if err == nil && !holds {
				return journey.ExitReasonTriggerUnmatched, true
			}
		}
	}

	return "", false
}

// statusForReason maps a terminal exit reason to the journey status it
// produces. Every reason other than expired/cancelled lands on completed:
// reaching an exit node, running out of graph, or failing mid-execution are
// all ordinary completions from the data model's point of view.
func statusForReason(reason journey.ExitReason) journey.Status {
	switch reason {
	case journey.ExitReasonExpired:
		return journey.StatusExpired
	case journey.ExitReasonCancelled:
		return journey.StatusCancelled
	default:
		return journey.StatusCompleted
	}
}

// completeJourney transitions j to a terminal state, appends its completion
// record, deletes its persisted live state, drops it from the in-memory
// registry, and cancels any pending resume timer.
func (s *Service) completeJourney(ctx context.Context, j journey.Journey, now time.Time, status journey.Status, reason journey.ExitReason) (journey.Journey, error) {
	j = j.Complete(now, status, reason)

	if err := s.store.RecordCompletion(ctx, journey.RecordFrom(j)); err != nil {
		return j, fmt.Errorf("journeysvc: record completion for journey %s: %w", j.ID, err)
	}
	if err := s.store.DeleteJourney(ctx, j.ID); err != nil {
		return j, fmt.Errorf("journeysvc: delete persisted journey %s: %w", j.ID, err)
	}

	s.mu.Lock()
	s.unregisterLocked(j)
	s.mu.Unlock()
	s.cancelTimer(j.ID)

	telemetry.JourneyExited(ctx, telemetryEmitter{s.events}, j, now)
	return j, nil
}

// campaignFor looks up a registered campaign by id.
func (s *Service) campaignFor(id string) (journey.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	return c, ok
}

// lookupByKey returns the live journey for (distinctID, campaignID), if any.
func (s *Service) lookupByKey(distinctID, campaignID string) (journey.Journey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.liveByKey[liveKey{distinctID, campaignID}]
	if !ok {
		return journey.Journey{}, false
	}
	j, ok := s.live[id]
	return j, ok
}

// liveJourneysFor returns every in-memory live (active or paused) journey
// belonging to distinctID.
func (s *Service) liveJourneysFor(distinctID string) []journey.Journey {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []journey.Journey
	for _, j := range s.live {
		if j.DistinctID == distinctID && j.Status.IsLive() {
			out = append(out, j)
		}
	}
	return out
}

// touchLocked updates the in-memory registry entry for j without touching
// storage; intermediate hops within a single executeJourney call are not
// persisted, only the pause/terminate boundaries are.
func (s *Service) touchLocked(j journey.Journey) {
	s.mu.Lock()
	s.registerLocked(j)
	s.mu.Unlock()
}
