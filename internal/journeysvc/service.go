// Package journeysvc is the orchestrator: it owns the in-memory registry of
// live journeys, admits and starts new ones, drives them through the
// executor node by node, persists state at every pause/terminate boundary,
// and reacts to inbound events and segment-membership changes by resuming
// paused journeys. Nothing in internal/executor or internal/journey talks to
// the store or a clock directly; this package is the only place those are
// wired together, the way the teacher's worker packages are the only callers
// that bridge its domain logic to storage and transport.
package journeysvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/journey-engine/internal/adapters"
	"github.com/ignite/journey-engine/internal/executor"
	"github.com/ignite/journey-engine/internal/frequency"
	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journey"
	"github.com/ignite/journey-engine/internal/journeystore"
	"github.com/ignite/journey-engine/internal/telemetry"
)

// Deps bundles every collaborator the orchestrator needs beyond the
// executor's own Deps (which it also holds, to pass straight through to
// executor.Execute).
type Deps struct {
	Store       journeystore.Store
	Executor    executor.Deps
	Identity    adapters.IdentityService
	Events      adapters.EventService
	Segments    adapters.SegmentService
	Features    adapters.FeatureService
	Clock       adapters.DateProvider
}

// Service is the journey orchestrator for one campaign set. Safe for
// concurrent use.
type Service struct {
	store    journeystore.Store
	execDeps executor.Deps
	identity adapters.IdentityService
	events   adapters.EventService
	segments adapters.SegmentService
	features adapters.FeatureService
	clock    adapters.DateProvider

	mu        sync.Mutex
	campaigns map[string]journey.Campaign
	live      map[journey.ID]journey.Journey
	liveByKey map[liveKey]journey.ID
	timers    map[journey.ID]*time.Timer
}

type liveKey struct {
	distinctID string
	campaignID string
}

// New builds a Service with an empty registry. Call LoadPersisted to
// repopulate it from storage after a restart, and SetCampaign for every
// published campaign the service should admit journeys for.
func New(d Deps) *Service {
	return &Service{
		store:     d.Store,
		execDeps:  d.Executor,
		identity:  d.Identity,
		events:    d.Events,
		segments:  d.Segments,
		features:  d.Features,
		clock:     d.Clock,
		campaigns: map[string]journey.Campaign{},
		live:      map[journey.ID]journey.Journey{},
		liveByKey: map[liveKey]journey.ID{},
		timers:    map[journey.ID]*time.Timer{},
	}
}

// SetCampaign registers (or replaces) a published campaign definition.
// In-flight journeys are unaffected: they carry their own goal/exit-policy
// snapshots frozen at start.
func (s *Service) SetCampaign(c journey.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
}

// Campaigns returns the currently registered campaign set.
func (s *Service) Campaigns() []journey.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]journey.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, c)
	}
	return out
}

// now returns the service's clock time, defaulting to time.Now when no
// DateProvider was supplied.
func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

// LoadPersisted repopulates the in-memory registry from the store, the
// recovery path run once at process start. Every loaded journey with a
// resumeAt deadline gets a fresh timer scheduled against the current clock,
// so deadlines that fired while the process was down resolve immediately.
func (s *Service) LoadPersisted(ctx context.Context) error {
	journeys, err := s.store.LoadActiveJourneys(ctx)
	if err != nil {
		return fmt.Errorf("journeysvc: load active journeys: %w", err)
	}

	s.mu.Lock()
	for _, j := range journeys {
		s.registerLocked(j)
	}
	s.mu.Unlock()

	for _, j := range journeys {
		if j.Status == journey.StatusPaused && j.ResumeAt != nil {
			s.scheduleResume(j.ID, *j.ResumeAt)
		}
	}
	return nil
}

// registerLocked inserts or replaces j in the registry. Caller holds s.mu.
func (s *Service) registerLocked(j journey.Journey) {
	s.live[j.ID] = j
	s.liveByKey[liveKey{j.DistinctID, j.CampaignID}] = j.ID
}

// unregisterLocked removes a terminal journey from the registry. Caller
// holds s.mu.
func (s *Service) unregisterLocked(j journey.Journey) {
	delete(s.live, j.ID)
	if s.liveByKey[liveKey{j.DistinctID, j.CampaignID}] == j.ID {
		delete(s.liveByKey, liveKey{j.DistinctID, j.CampaignID})
	}
}

// LiveJourney implements frequency.LiveJourneyLookup against the in-memory
// registry, the authoritative source for "does this (user, campaign) pair
// already have a live journey".
func (s *Service) LiveJourney(distinctID, campaignID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.liveByKey[liveKey{distinctID, campaignID}]
	if !ok {
		return time.Time{}, false
	}
	j, ok := s.live[id]
	if !ok {
		return time.Time{}, false
	}
	return j.StartedAt, true
}

var _ frequency.LiveJourneyLookup = (*Service)(nil)

// buildEvalContext assembles the IR evaluation context for one (distinctID,
// event) evaluation, scoping each collaborator with the caller's context and
// the user in question.
func (s *Service) buildEvalContext(ctx context.Context, distinctID string, ev *ir.Event) ir.EvalContext {
	evalCtx := ir.EvalContext{Now: s.now(), Event: ev}

	if s.identity != nil {
		evalCtx.User = userAdapter{ctx: ctx, distinctID: distinctID, identity: s.identity}
	}
	if s.events != nil {
		evalCtx.Events = s.events.ForUser(ctx, distinctID)
	}
	if s.segments != nil {
		evalCtx.Segments = segmentsAdapter{ctx: ctx, distinctID: distinctID, segments: s.segments}
	}
	if s.features != nil {
		evalCtx.Features = s.features.ForUser(ctx, distinctID)
	}
	return evalCtx
}

type userAdapter struct {
	ctx        context.Context
	distinctID string
	identity   adapters.IdentityService
}

func (u userAdapter) Property(key string) (any, bool) {
	return u.identity.UserProperty(u.ctx, u.distinctID, key)
}

type segmentsAdapter struct {
	ctx        context.Context
	distinctID string
	segments   adapters.SegmentService
}

func (a segmentsAdapter) IsMember(segmentID string) bool {
	return a.segments.IsMember(a.ctx, a.distinctID, segmentID)
}

func (a segmentsAdapter) EnteredAt(segmentID string) (time.Time, bool) {
	return a.segments.EnteredAt(a.ctx, a.distinctID, segmentID)
}

// telemetryEmitter adapts adapters.EventService.Track to telemetry.Emitter.
type telemetryEmitter struct{ events adapters.EventService }

func (e telemetryEmitter) Track(ctx context.Context, distinctID, name string, properties map[string]any) {
	if e.events == nil {
		return
	}
	e.events.Track(ctx, distinctID, name, properties)
}

var _ telemetry.Emitter = telemetryEmitter{}
