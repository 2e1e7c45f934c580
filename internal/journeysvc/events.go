package journeysvc

import (
	"context"
	"log"

	"github.com/ignite/journey-engine/internal/executor"
	"github.com/ignite/journey-engine/internal/goal"
	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journey"
	"github.com/ignite/journey-engine/internal/telemetry"
)

// HandleEvent is the inbound-event entry point: it attempts to start a
// journey for every event-triggered campaign whose condition matches, then
// re-evaluates every one of distinctID's already-live journeys against the
// event (event-typed goal fast path, exit re-evaluation, reactive resume of
// a paused waitUntil node).
func (s *Service) HandleEvent(ctx context.Context, distinctID string, ev ir.Event) error {
	now := s.now()
	evalCtx := s.buildEvalContext(ctx, distinctID, &ev)

	for _, c := range s.Campaigns() {
		if c.Trigger.Kind != journey.TriggerEvent || c.Trigger.EventName != ev.Name {
			continue
		}
		if c.Trigger.Condition != nil {
			ok, err := ir.EvalBool(*c.Trigger.Condition, evalCtx)
			if err != nil || !ok {
				continue
			}
		}
		if _, _, err := s.admitAndStart(ctx, c, distinctID, now); err != nil {
			log.Printf("journeysvc: start journey for campaign %s on event %s: %v", c.ID, ev.Name, err)
		}
	}

	for _, j := range s.liveJourneysFor(distinctID) {
		c, ok := s.campaignFor(j.CampaignID)
		if !ok {
			continue
		}

		updated := j
		if updated.ConvertedAt == nil {
			if gr, matched := goal.EvaluateEvent(updated, ev, evalCtx); matched && gr.Met {
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
				log.Printf("journeysvc: complete journey %s on event %s: %v", j.ID, ev.Name, err)
			}
			continue
		}

		if updated.Status == journey.StatusPaused {
			s.tryReactiveResume(ctx, updated.ID, executor.ResumeEvent)
		}
	}

	return nil
}
