// Package adapters declares the collaborator interfaces the journey engine
// consumes from its host application: profile/identity lookups, segment
// membership, event history and emission, feature entitlements, and the
// clock. Concrete implementations live in subpackages (httpprofile,
// sqsevents) or internal/adapters/adaptertest for tests.
package adapters

import (
	"context"
	"time"

	"github.com/ignite/journey-engine/internal/executor"
	"github.com/ignite/journey-engine/internal/ir"
)

// ExperimentAssignment is a user's frozen variant for one experiment, as
// reported by ProfileService.
type ExperimentAssignment struct {
	VariantKey string
	Status     string
	IsHoldout  bool
}

// FeatureState is a user's entitlement snapshot for one feature.
type FeatureState struct {
	Has         bool
	IsUnlimited bool
	Balance     float64
	HasBalance  bool
}

// Profile is the bootstrap payload a host fetches to determine which
// campaigns a user is eligible for and to seed IR evaluation context.
type Profile struct {
	Campaigns      []string
	UserProperties map[string]any
	Experiments    map[string]ExperimentAssignment
	Features       map[string]FeatureState
}

// ProfileService resolves a user's campaign eligibility and evaluation
// context in one round trip. A failed fetch is treated as "no campaigns" by
// callers rather than propagated as a hard error.
type ProfileService interface {
	FetchProfile(ctx context.Context, distinctID string) (Profile, error)
}

// IdentityService resolves the active user identity and applies profile
// attribute writes (the updateCustomer node).
type IdentityService interface {
	DistinctID(ctx context.Context) string
	// RawDistinctID returns nil when the current user is anonymous.
	RawDistinctID(ctx context.Context) *string
	UserProperty(ctx context.Context, distinctID, key string) (any, bool)
	UpdateProfile(ctx context.Context, distinctID string, attributes map[string]any) error
}

// SegmentChange is one delta notification from the segment membership
// stream: distinctId entered some segments, exited others, and remained in
// the rest.
type SegmentChange struct {
	DistinctID string
	Entered    []string
	Exited     []string
	Remained   []string
}

// SegmentService resolves segment membership and publishes membership
// changes so the orchestrator can reactively resume waiting journeys.
type SegmentService interface {
	IsMember(ctx context.Context, distinctID, segmentID string) bool
	EnteredAt(ctx context.Context, distinctID, segmentID string) (time.Time, bool)
	Changes() <-chan SegmentChange
}

// FeatureService resolves feature-flag and entitlement state, scoped per
// user into an ir.FeaturesAdapter for IR evaluation.
type FeatureService interface {
	ForUser(ctx context.Context, distinctID string) ir.FeaturesAdapter
}

// EventQuerier is the event-history query side of EventService, scoped per
// user into an ir.EventsAdapter for IR evaluation.
type EventQuerier interface {
	ForUser(ctx context.Context, distinctID string) ir.EventsAdapter
}

// EventEmitter is the emission side of EventService: sendEvent's
// fire-and-forget track, and remote nodes' awaited trackWithResponse. It
// satisfies executor.EventService so it can be wired straight into
// executor.Deps without adapting.
type EventEmitter interface {
	Track(ctx context.Context, distinctID, name string, properties map[string]any)
	TrackWithResponse(ctx context.Context, distinctID, action string, payload map[string]any) (executor.RemoteResponse, error)
}

// EventService is the full collaborator the orchestrator wires: query
// capability for IR evaluation plus the emission channels. Read and write
// sides are often backed by different infrastructure (a queryable store vs.
// a message queue), so NewEventService composes them from separate
// implementations.
type EventService interface {
	EventQuerier
	EventEmitter
}

type eventService struct {
	EventQuerier
	EventEmitter
}

// NewEventService composes a query-capable source and an emission sink into
// a single EventService.
func NewEventService(querier EventQuerier, emitter EventEmitter) EventService {
	return eventService{EventQuerier: querier, EventEmitter: emitter}
}

// DateProvider is a mockable source of the current time, used wherever the
// orchestrator or executor needs "now".
type DateProvider interface {
	Now() time.Time
}

// SleepProvider is a mockable, cancellable scheduled wake. The orchestrator's
// timer management does not use it; journeysvc arms resume timers with
// time.AfterFunc.
type SleepProvider interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// FlowPresentationService requests that a flow or paywall be shown to the
// user; it satisfies executor.PresentationService directly.
type FlowPresentationService = executor.PresentationService
