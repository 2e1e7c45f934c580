package journeysvc

import (
	"context"
	"log"

	"github.com/ignite/journey-engine/internal/adapters"
	"github.com/ignite/journey-engine/internal/executor"
	"github.com/ignite/journey-engine/internal/goal"
	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journey"
	"github.com/ignite/journey-engine/internal/telemetry"
)

// HandleSegmentChange is the segment-membership-stream entry point: it
// attempts to start a journey for every segment-triggered campaign whose
// condition now holds for change.DistinctID, then re-evaluates every one of
// their already-live journeys (segment-typed goal, exit re-evaluation,
// reactive resume of a paused waitUntil node).
func (s *Service) HandleSegmentChange(ctx context.Context, change adapters.SegmentChange) error {
	now := s.now()
	evalCtx := s.buildEvalContext(ctx, change.DistinctID, nil)

	for _, c := range s.Campaigns() {
		if c.Trigger.Kind != journey.TriggerSegment || c.Trigger.Condition == nil {
			continue
		}
		ok, err := ir.EvalBool(*c.Trigger.Condition, evalCtx)
		if err != nil || !ok {
			continue
		}
		if _, _, err := s.admitAndStart(ctx, c, change.DistinctID, now); err != nil {
			log.Printf("journeysvc: start journey for campaign %s on segment change: %v", c.ID, err)
		}
	}

	for _, j := range s.liveJourneysFor(change.DistinctID) {
		c, ok := s.campaignFor(j.CampaignID)
		if !ok {
			continue
		}

		updated := j
		if updated.ConvertedAt == nil {
			if gr := goal.Evaluate(updated, evalCtx); gr.Met {
				updated = updated.SetConverted(gr.At)
				telemetry.JourneyGoalMet(ctx, telemetryEmitter{s.events}, updated)
				if err := s.store.SaveJourney(ctx, updated); err != nil {
					log.Printf("journeysvc: persist converted journey %s: %v", updated.ID, err)
				} else {
					s.touchLocked(updated)
				}
			}
		}

		if exitReason, terminal := s.evaluateExit(updated, c, evalCtx); terminal {
			if _, err := s.completeJourney(ctx, updated, now, statusForReason(exitReason), exitReason); err != nil {
				log.Printf("journeysvc: complete journey %s on segment change: %v", j.ID, err)
			}
			continue
		}

		if updated.Status == journey.StatusPaused {
			s.tryReactiveResume(ctx, updated.ID, executor.ResumeEvent)
		}
	}

	return nil
}
