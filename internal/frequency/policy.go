// Package frequency implements the admission-control rule that decides
// whether a new journey may be started for a (campaign, distinctId) pair.
package frequency

import (
	"context"
	"time"

	"github.com/ignite/journey-engine/internal/journey"
	"github.com/ignite/journey-engine/internal/journeystore"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Admit bool
	// CancelLive is set when admission requires cancelling an existing live
	// journey first (fixedInterval only).
	CancelLive bool
}

// LiveJourneyLookup resolves whether a (user, campaign) pair currently has a
// live journey, and if so, when it started. The orchestrator supplies this
// from its in-memory registry, which is the authoritative source for
// "hasLive" per the data-model invariant.
type LiveJourneyLookup interface {
	LiveJourney(distinctID, campaignID string) (startedAt time.Time, ok bool)
}

// Check decides whether a journey may be started for (distinctID,
// campaignID) under the campaign's frequency policy.
func Check(ctx context.Context, store journeystore.Store, live LiveJourneyLookup, c journey.Campaign, distinctID string, now time.Time) (Decision, error) {
	startedAt, hasLive := live.LiveJourney(distinctID, c.ID)

	switch policyOrDefault(c.FrequencyPolicy) {
	case journey.FrequencyOnce:
		if hasLive {
			return Decision{}, nil
		}
		completed, err := store.HasCompletedCampaign(ctx, distinctID, c.ID)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Admit: !completed}, nil

	case journey.FrequencyEveryRematch:
		return Decision{Admit: !hasLive}, nil

	case journey.FrequencyFixedInterval:
		interval := c.FrequencyInterval
		if hasLive {
			if now.Sub(startedAt) >= interval {
				return Decision{Admit: true, CancelLive: true}, nil
			}
			return Decision{}, nil
		}
		lastCompletion, ok, err := store.LastCompletionTime(ctx, distinctID, c.ID)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return Decision{Admit: true}, nil
		}
		return Decision{Admit: now.Sub(lastCompletion) >= interval}, nil

	default:
		return Decision{Admit: !hasLive}, nil
	}
}

// policyOrDefault maps an unrecognised policy string to everyRematch, per
// spec.
func policyOrDefault(p journey.FrequencyPolicyKind) journey.FrequencyPolicyKind {
	switch p {
	case journey.FrequencyOnce, journey.FrequencyEveryRematch, journey.FrequencyFixedInterval:
		return p
	default:
		return journey.FrequencyEveryRematch
	}
}
