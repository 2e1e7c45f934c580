// Package telemetry emits the journey engine's fixed-schema wire events.
// Every event is tracked through an adapters.EventEmitter so it rides the
// same channel (and, in production, the same SQS queue) as application
// events, the way the teacher's tracking package funnels engagement events
// through one publisher.
package telemetry

import (
	"context"
	"time"

	"github.com/ignite/journey-engine/internal/journey"
)

// Event names, all internal-analytics-prefixed per spec.
const (
	EventJourneyExited           = "$journey_exited"
	EventJourneyGoalMet          = "$journey_goal_met"
	EventExperimentExposure      = "$experiment_exposure"
	EventExperimentExposureError = "$experiment_exposure_error"
)

// Emitter is the narrow slice of adapters.EventEmitter telemetry needs.
type Emitter interface {
	Track(ctx context.Context, distinctID, name string, properties map[string]any)
}

// JourneyExited emits the terminal lifecycle event for a journey, with the
// duration it ran and why it stopped.
func JourneyExited(ctx context.Context, emitter Emitter, j journey.Journey, now time.Time) {
	if emitter == nil {
		return
	}
	reason := journey.ExitReasonCompleted
	if j.ExitReason != nil {
		reason = *j.ExitReason
	}
	emitter.Track(ctx, j.DistinctID, EventJourneyExited, map[string]any{
		"journey_id":  string(j.ID),
		"campaign_id": j.CampaignID,
		"reason":      string(reason),
		"duration_ms": now.Sub(j.StartedAt).Milliseconds(),
	})
}

// JourneyGoalMet emits the conversion-latch event at the moment convertedAt
// is first set.
func JourneyGoalMet(ctx context.Context, emitter Emitter, j journey.Journey) {
	if emitter == nil || j.ConvertedAt == nil {
		return
	}
	emitter.Track(ctx, j.DistinctID, EventJourneyGoalMet, map[string]any{
		"journey_id":   string(j.ID),
		"campaign_id":  j.CampaignID,
		"converted_at": j.ConvertedAt.Format(time.RFC3339Nano),
	})
}

// ExperimentExposure emits the event marking a frozen experiment-variant
// assignment being shown to the user via a showFlow/showPaywall node.
func ExperimentExposure(ctx context.Context, emitter Emitter, j journey.Journey, flowID, experimentID, variantKey string) {
	if emitter == nil {
		return
	}
	emitter.Track(ctx, j.DistinctID, EventExperimentExposure, map[string]any{
		"journey_id":     string(j.ID),
		"campaign_id":    j.CampaignID,
		"flow_id":        flowID,
		"experiment_key": experimentID,
		"variant_key":    variantKey,
	})
}

// ExperimentExposureError emits a failure to resolve an experiment
// assignment, so the host can alert on degraded personalization without
// the journey itself failing.
func ExperimentExposureError(ctx context.Context, emitter Emitter, j journey.Journey, experimentID string, cause error) {
	if emitter == nil {
		return
	}
	props := map[string]any{
		"journey_id":     string(j.ID),
		"campaign_id":    j.CampaignID,
		"experiment_key": experimentID,
	}
	if cause != nil {
		props["error"] = cause.Error()
	}
	emitter.Track(ctx, j.DistinctID, EventExperimentExposureError, props)
}

// Transaction is the fixed property schema shared by the paywall/
// transaction/restore/subscription event family: a presentation
// collaborator reports these back as ordinary events, not as direct engine
// calls, so this struct just documents the schema callers should populate
// when relaying FlowPresentationService outcomes onto the event channel.
type Transaction struct {
	JourneyID     string
	CampaignID    string
	FlowID        string
	ProductID     string
	Currency      string
	Revenue       float64
	TransactionID string
	ExperimentKey string
	VariantKey    string
}

func (t Transaction) Properties() map[string]any {
	props := map[string]any{
		"journey_id":     t.JourneyID,
		"campaign_id":    t.CampaignID,
		"flow_id":        t.FlowID,
		"product_id":     t.ProductID,
		"currency":       t.Currency,
		"revenue":        t.Revenue,
		"transaction_id": t.TransactionID,
	}
	if t.ExperimentKey != "" {
		props["experiment_key"] = t.ExperimentKey
	}
	if t.VariantKey != "" {
		props["variant_key"] = t.VariantKey
	}
	return props
}
