package journeysvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/journey-engine/internal/adapters"
	"github.com/ignite/journey-engine/internal/executor"
	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journey"
	"github.com/ignite/journey-engine/internal/journeystore"
)

// fakeClock is a mutable, mockable adapters.DateProvider for deterministic
// tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingEvents is a minimal adapters.EventService recording every Track
// call, with no query capability (every ForUser call returns an empty
// adapter).
type recordingEvents struct {
	mu     sync.Mutex
	tracks []trackedEvent
}

type trackedEvent struct {
	distinctID string
	name       string
	properties map[string]any
}

func (e *recordingEvents) Track(ctx context.Context, distinctID, name string, properties map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracks = append(e.tracks, trackedEvent{distinctID, name, properties})
}

func (e *recordingEvents) TrackWithResponse(ctx context.Context, distinctID, action string, payload map[string]any) (executor.RemoteResponse, error) {
	return executor.RemoteResponse{Success: true}, nil
}

func (e *recordingEvents) ForUser(ctx context.Context, distinctID string) ir.EventsAdapter {
	return emptyEvents{}
}

func (e *recordingEvents) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.tracks))
	for i, t := range e.tracks {
		out[i] = t.name
	}
	return out
}

type emptyEvents struct{}

func (emptyEvents) Exists(string, *time.Time, *time.Time, *ir.Predicate) bool { return false }
func (emptyEvents) Count(string, *time.Time, *time.Time, *ir.Predicate) int   { return 0 }
func (emptyEvents) FirstTime(string, *time.Time, *time.Time, *ir.Predicate) (time.Time, bool) {
	return time.Time{}, false
}
func (emptyEvents) LastTime(string, *time.Time, *time.Time, *ir.Predicate) (time.Time, bool) {
	return time.Time{}, false
}
func (emptyEvents) LastAge(string, *time.Time, *time.Time, *ir.Predicate) (time.Duration, bool) {
	return 0, false
}
func (emptyEvents) Aggregate(ir.AggregateFn, string, string, *time.Time, *time.Time, *ir.Predicate) (float64, bool) {
	return 0, false
}
func (emptyEvents) InOrder([]string, time.Duration, time.Duration) bool    { return false }
func (emptyEvents) ActivePeriods(ir.IntervalUnit, int, int) bool          { return false }
func (emptyEvents) Stopped(time.Duration) bool                            { return false }
func (emptyEvents) Restarted(time.Duration, time.Duration) bool           { return false }

var _ adapters.EventService = (*recordingEvents)(nil)

func newTestService(t *testing.T, clock *fakeClock, events *recordingEvents) *Service {
	t.Helper()
	store, err := journeystore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(Deps{
		Store: store,
		Clock: clock,
		Events: events,
		Executor: executor.Deps{Events: events},
	})
}

// twoStepCampaign builds a minimal campaign: sendEvent("welcome") -> exit.
func twoStepCampaign(id string) journey.Campaign {
	return journey.Campaign{
		ID:              id,
		VersionID:       "v1",
		EntryNodeID:     "send",
		FrequencyPolicy: journey.FrequencyOnce,
		ExitPolicy:      journey.ExitNever,
		Nodes: map[string]journey.Node{
			"send": {
				ID:      "send",
				Type:    journey.NodeSendEvent,
				Next:    []string{"exit"},
				Payload: journey.SendEventPayload{Name: "welcome"},
			},
			"exit": {
				ID:      "exit",
				Type:    journey.NodeExit,
				Payload: journey.ExitPayload{Reason: journey.ExitReasonCompleted},
			},
		},
	}
}

// delayCampaign builds: timeDelay(1h) -> exit.
func delayCampaign(id string) journey.Campaign {
	return journey.Campaign{
		ID:              id,
		VersionID:       "v1",
		EntryNodeID:     "wait",
		FrequencyPolicy: journey.FrequencyEveryRematch,
		ExitPolicy:      journey.ExitNever,
		Nodes: map[string]journey.Node{
			"wait": {
				ID:      "wait",
				Type:    journey.NodeTimeDelay,
				Next:    []string{"exit"},
				Payload: journey.TimeDelayPayload{Duration: time.Hour},
			},
			"exit": {
				ID:      "exit",
				Type:    journey.NodeExit,
				Payload: journey.ExitPayload{Reason: journey.ExitReasonCompleted},
			},
		},
	}
}

func TestStartJourneyRunsToCompletionSynchronously(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	events := &recordingEvents{}
	svc := newTestService(t, clock, events)
	svc.SetCampaign(twoStepCampaign("c1"))

	j, started, err := svc.StartJourney(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, journey.StatusCompleted, j.Status)
	assert.Contains(t, events.names(), "welcome")

	snap := svc.Overview()
	assert.Equal(t, 0, snap.LiveJourneys)
}

func TestStartJourneyDeniedByFrequencyPolicyOnceAfterCompletion(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	events := &recordingEvents{}
	svc := newTestService(t, clock, events)
	svc.SetCampaign(twoStepCampaign("c1"))

	_, started, err := svc.StartJourney(context.Background(), "c1", "u1")
	require.NoError(t, err)
	require.True(t, started)

	_, started, err = svc.StartJourney(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.False(t, started, "once policy should deny after completion")
}

func TestStartJourneyPausesAndResumesOnTimer(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	events := &recordingEvents{}
	svc := newTestService(t, clock, events)
	svc.SetCampaign(delayCampaign("c2"))

	j, started, err := svc.StartJourney(context.Background(), "c2", "u1")
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, journey.StatusPaused, j.Status)

	snap := svc.Overview()
	assert.Equal(t, 1, snap.LiveJourneys)

	clock.Advance(2 * time.Hour)
	svc.resumeOnTimer(j.ID)

	snap = svc.Overview()
	assert.Equal(t, 0, snap.LiveJourneys, "journey should have completed after the delay elapsed")
}

func TestHandleEventStartsEventTriggeredCampaign(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	events := &recordingEvents{}
	svc := newTestService(t, clock, events)

	c := twoStepCampaign("c3")
	c.Trigger = journey.Trigger{Kind: journey.TriggerEvent, EventName: "app_opened"}
	svc.SetCampaign(c)

	err := svc.HandleEvent(context.Background(), "u1", ir.Event{Name: "app_opened", Timestamp: clock.Now(), DistinctID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, events.names(), "welcome")
}

func TestHandleUserChangeMovesRegistryToNewIdentity(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	events := &recordingEvents{}
	svc := newTestService(t, clock, events)
	svc.SetCampaign(delayCampaign("c4"))

	j, started, err := svc.StartJourney(context.Background(), "c4", "anon-1")
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, journey.StatusPaused, j.Status)

	require.NoError(t, svc.store.SaveJourney(context.Background(), journeyUnderNewIdentity(j)))
	require.NoError(t, svc.HandleUserChange(context.Background(), "anon-1", "user-1"))

	snap := svc.Overview()
	assert.Equal(t, 1, snap.LiveJourneys)
	_, hasOld := svc.lookupByKey("anon-1", "c4")
	assert.False(t, hasOld)
	_, hasNew := svc.lookupByKey("user-1", "c4")
	assert.True(t, hasNew)
}

func journeyUnderNewIdentity(j journey.Journey) journey.Journey {
	j.ID = j.ID + "-merged"
	j.DistinctID = "user-1"
	return j
}

// fakeSegments is a mutable adapters.SegmentService test double: membership
// is whatever the test last set it to for the segment names it tracks.
type fakeSegments struct {
	mu      sync.Mutex
	members map[string]bool
}

func newFakeSegments() *fakeSegments { return &fakeSegments{members: map[string]bool{}} }

func (f *fakeSegments) set(segmentID string, member bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[segmentID] = member
}

func (f *fakeSegments) IsMember(ctx context.Context, distinctID, segmentID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[segmentID]
}

func (f *fakeSegments) EnteredAt(ctx context.Context, distinctID, segmentID string) (time.Time, bool) {
	return time.Time{}, false
}

func (f *fakeSegments) Changes() <-chan adapters.SegmentChange { return nil }

var _ adapters.SegmentService = (*fakeSegments)(nil)

// segmentTriggeredCampaign builds a segment-triggered campaign whose sendEvent
// node is followed by exit: trigger condition is membership in segmentID.
func segmentTriggeredCampaign(id, segmentID string) journey.Campaign {
	c := twoStepCampaign(id)
	cond := ir.Expr{Kind: ir.KindSegment, SegmentID: segmentID, SegmentOp: ir.SegmentIsMember}
	c.Trigger = journey.Trigger{Kind: journey.TriggerSegment, Condition: &cond}
	return c
}

func TestHandleSegmentChangeStartsSegmentTriggeredCampaign(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	events := &recordingEvents{}
	segments := newFakeSegments()
	segments.set("vip", true)

	store, err := journeystore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := New(Deps{
		Store:    store,
		Clock:    clock,
		Events:   events,
		Segments: segments,
		Executor: executor.Deps{Events: events},
	})
	svc.SetCampaign(segmentTriggeredCampaign("c5", "vip"))

	err = svc.HandleSegmentChange(context.Background(), adapters.SegmentChange{DistinctID: "u1", Entered: []string{"vip"}})
	require.NoError(t, err)
	assert.Contains(t, events.names(), "welcome")
}

func TestStartJourneyFixedIntervalCancelsLiveJourney(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	events := &recordingEvents{}
	svc := newTestService(t, clock, events)

	c := delayCampaign("c6")
	c.FrequencyPolicy = journey.FrequencyFixedInterval
	c.FrequencyInterval = time.Hour
	svc.SetCampaign(c)

	first, started, err := svc.StartJourney(context.Background(), "c6", "u1")
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, journey.StatusPaused, first.Status)

	clock.Advance(2 * time.Hour)
	second, started, err := svc.StartJourney(context.Background(), "c6", "u1")
	require.NoError(t, err)
	require.True(t, started)
	assert.NotEqual(t, first.ID, second.ID)

	snap := svc.Overview()
	assert.Equal(t, 1, snap.LiveJourneys, "the superseded journey should have been cancelled, not left live")
}

// exitOnGoalCampaign never reaches its own exit node; it relies entirely on
// the onGoal exit policy to terminate once the attribute goal is met.
func exitOnGoalCampaign(id string) journey.Campaign {
	c := delayCampaign(id)
	c.ExitPolicy = journey.ExitOnGoal
	attr := ir.Expr{
		Kind:      ir.KindUser,
		Key:       "plan",
		KeyOp:     ir.KeyEq,
		ScalarArg: &ir.Expr{Kind: ir.KindString, Str: "pro"},
	}
	c.Goal = &journey.Goal{Kind: journey.GoalAttribute, Attribute: &attr}
	return c
}

type fakeIdentity struct {
	mu    sync.Mutex
	props map[string]any
}

func newFakeIdentity() *fakeIdentity { return &fakeIdentity{props: map[string]any{}} }

func (f *fakeIdentity) set(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[key] = value
}

func (f *fakeIdentity) UserProperty(ctx context.Context, distinctID, key string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.props[key]
	return v, ok
}

func (f *fakeIdentity) DistinctID(ctx context.Context) string    { return "u1" }
func (f *fakeIdentity) RawDistinctID(ctx context.Context) *string { return nil }

func (f *fakeIdentity) UpdateProfile(ctx context.Context, distinctID string, attributes map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range attributes {
		f.props[k] = v
	}
	return nil
}

var _ adapters.IdentityService = (*fakeIdentity)(nil)

func TestExitOnGoalTerminatesPausedJourneyOnSegmentChange(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	events := &recordingEvents{}
	identity := newFakeIdentity()
	segments := newFakeSegments()

	store, err := journeystore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := New(Deps{
		Store:    store,
		Clock:    clock,
		Events:   events,
		Identity: identity,
		Segments: segments,
		Executor: executor.Deps{Events: events},
	})
	svc.SetCampaign(exitOnGoalCampaign("c7"))

	j, started, err := svc.StartJourney(context.Background(), "c7", "u1")
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, journey.StatusPaused, j.Status)

	identity.set("plan", "pro")
	err = svc.HandleSegmentChange(context.Background(), adapters.SegmentChange{DistinctID: "u1"})
	require.NoError(t, err)

	snap := svc.Overview()
	assert.Equal(t, 0, snap.LiveJourneys, "onGoal exit policy should have completed the journey once the attribute goal matched")
}
