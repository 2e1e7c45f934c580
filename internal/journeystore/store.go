// Package journeystore persists live journeys, the completion ledger, and
// per-(user,campaign) frequency records behind a single Store contract with
// three pluggable backends: an atomic-file implementation for on-device use,
// and Postgres/DynamoDB implementations for server-resident deployments.
package journeystore

import (
	"context"
	"time"

	"github.com/ignite/journey-engine/internal/journey"
)

// Store is the durable-persistence contract every backend implements.
type Store interface {
	SaveJourney(ctx context.Context, j journey.Journey) error
	LoadActiveJourneys(ctx context.Context) ([]journey.Journey, error)
	DeleteJourney(ctx context.Context, id journey.ID) error

	RecordCompletion(ctx context.Context, rec journey.CompletionRecord) error
	HasCompletedCampaign(ctx context.Context, distinctID, campaignID string) (bool, error)
	LastCompletionTime(ctx context.Context, distinctID, campaignID string) (time.Time, bool, error)

	GetActiveJourneyIDs(ctx context.Context, distinctID, campaignID string) ([]journey.ID, error)
}
