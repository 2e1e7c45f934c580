// Package adaptertest provides in-memory doubles for the adapters
// interfaces, suitable for unit tests of the executor and orchestrator that
// need real (if simplified) event-history/segment/feature semantics rather
// than canned stub returns.
package adaptertest

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/journey-engine/internal/executor"
	"github.com/ignite/journey-engine/internal/ir"
)

// Event is one recorded occurrence fed into Events.
type Event struct {
	Name       string
	Time       time.Time
	Properties map[string]any
}

// Events is an in-memory, per-distinctId event log implementing
// ir.EventsAdapter (via ForUser) and the tracking side of
// adapters.EventService.
type Events struct {
	mu     sync.Mutex
	byUser map[string][]Event
	resp   executor.RemoteResponse
	err    error
}

func NewEvents() *Events {
	return &Events{byUser: map[string][]Event{}}
}

// Record appends an event for distinctID, most recent last.
func (e *Events) Record(distinctID string, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byUser[distinctID] = append(e.byUser[distinctID], ev)
}

// SetRemoteResponse fixes what TrackWithResponse returns for every call.
func (e *Events) SetRemoteResponse(resp executor.RemoteResponse, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resp, e.err = resp, err
}

func (e *Events) Track(_ context.Context, distinctID, name string, properties map[string]any) {
	e.Record(distinctID, Event{Name: name, Time: time.Now(), Properties: properties})
}

func (e *Events) TrackWithResponse(context.Context, string, string, map[string]any) (executor.RemoteResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resp, e.err
}

func (e *Events) ForUser(_ context.Context, distinctID string) ir.EventsAdapter {
	return userEvents{events: e, distinctID: distinctID}
}

type userEvents struct {
	events     *Events
	distinctID string
}

func (u userEvents) matching(name string, since, until *time.Time, pred *ir.Predicate) []Event {
	u.events.mu.Lock()
	all := append([]Event(nil), u.events.byUser[u.distinctID]...)
	u.events.mu.Unlock()

	out := make([]Event, 0, len(all))
	for _, ev := range all {
		if ev.Name != name {
			continue
		}
		if since != nil && ev.Time.Before(*since) {
			continue
		}
		if until != nil && ev.Time.After(*until) {
			continue
		}
		if pred != nil {
			ok, err := ir.MatchPredicate(pred, ev.Properties, ir.EvalContext{Now: ev.Time})
			if err != nil || !ok {
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}

func (u userEvents) Exists(name string, since, until *time.Time, pred *ir.Predicate) bool {
	return len(u.matching(name, since, until, pred)) > 0
}

func (u userEvents) Count(name string, since, until *time.Time, pred *ir.Predicate) int {
	return len(u.matching(name, since, until, pred))
}

func (u userEvents) FirstTime(name string, since, until *time.Time, pred *ir.Predicate) (time.Time, bool) {
	m := u.matching(name, since, until, pred)
	if len(m) == 0 {
		return time.Time{}, false
	}
	first := m[0].Time
	for _, ev := range m[1:] {
		if ev.Time.Before(first) {
			first = ev.Time
		}
	}
	return first, true
}

func (u userEvents) LastTime(name string, since, until *time.Time, pred *ir.Predicate) (time.Time, bool) {
	m := u.matching(name, since, until, pred)
	if len(m) == 0 {
		return time.Time{}, false
	}
	last := m[0].Time
	for _, ev := range m[1:] {
		if ev.Time.After(last) {
			last = ev.Time
		}
	}
	return last, true
}

func (u userEvents) LastAge(name string, since, until *time.Time, pred *ir.Predicate) (time.Duration, bool) {
	last, ok := u.LastTime(name, since, until, pred)
	if !ok {
		return 0, false
	}
	return time.Since(last), true
}

func (u userEvents) Aggregate(fn ir.AggregateFn, name, prop string, since, until *time.Time, pred *ir.Predicate) (float64, bool) {
	m := u.matching(name, since, until, pred)
	if len(m) == 0 {
		return 0, false
	}
	var sum, count float64
	min, max := 0.0, 0.0
	for i, ev := range m {
		v, ok := ev.Properties[prop].(float64)
		if !ok {
			continue
		}
		sum += v
		count++
		if i == 0 || v < min {
			min = v
		}
		if i == 0 || v > max {
			max = v
		}
	}
	switch fn {
	case ir.AggSum:
		return sum, true
	case ir.AggCount:
		return count, true
	case ir.AggMin:
		return min, true
	case ir.AggMax:
		return max, true
	case ir.AggAvg:
		if count == 0 {
			return 0, false
		}
		return sum / count, true
	default:
		return 0, false
	}
}

// InOrder, ActivePeriods, Stopped and Restarted cover funnel/cadence
// analysis this fake doesn't attempt to model faithfully; they always
// report false so tests exercising them must fake Events at a higher level.
func (u userEvents) InOrder([]string, time.Duration, time.Duration) bool { return false }
func (u userEvents) ActivePeriods(ir.IntervalUnit, int, int) bool        { return false }
func (u userEvents) Stopped(time.Duration) bool                         { return false }
func (u userEvents) Restarted(time.Duration, time.Duration) bool        { return false }

// Segments is an in-memory segment membership fake.
type Segments struct {
	mu       sync.Mutex
	members  map[string]map[string]time.Time // distinctId -> segmentId -> enteredAt
	changeCh chan adaptersSegmentChange
}

// adaptersSegmentChange mirrors adapters.SegmentChange without importing the
// parent package.
type adaptersSegmentChange struct {
	DistinctID               string
	Entered, Exited, Remained []string
}

func NewSegments() *Segments {
	return &Segments{members: map[string]map[string]time.Time{}, changeCh: make(chan adaptersSegmentChange, 16)}
}

func (s *Segments) Enter(distinctID, segmentID string, at time.Time) {
	s.mu.Lock()
	if s.members[distinctID] == nil {
		s.members[distinctID] = map[string]time.Time{}
	}
	s.members[distinctID][segmentID] = at
	s.mu.Unlock()
	s.publish(adaptersSegmentChange{DistinctID: distinctID, Entered: []string{segmentID}})
}

func (s *Segments) Exit(distinctID, segmentID string) {
	s.mu.Lock()
	delete(s.members[distinctID], segmentID)
	s.mu.Unlock()
	s.publish(adaptersSegmentChange{DistinctID: distinctID, Exited: []string{segmentID}})
}

func (s *Segments) publish(c adaptersSegmentChange) {
	select {
	case s.changeCh <- c:
	default:
	}
}

func (s *Segments) IsMember(_ context.Context, distinctID, segmentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[distinctID][segmentID]
	return ok
}

func (s *Segments) EnteredAt(_ context.Context, distinctID, segmentID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.members[distinctID][segmentID]
	return t, ok
}

func (s *Segments) ForUser(distinctID string) ir.SegmentsAdapter {
	return userSegments{segments: s, distinctID: distinctID}
}

type userSegments struct {
	segments   *Segments
	distinctID string
}

func (u userSegments) IsMember(segmentID string) bool {
	return u.segments.IsMember(context.Background(), u.distinctID, segmentID)
}

func (u userSegments) EnteredAt(segmentID string) (time.Time, bool) {
	return u.segments.EnteredAt(context.Background(), u.distinctID, segmentID)
}

// Identity is an in-memory IdentityService/profile-attribute fake.
type Identity struct {
	mu         sync.Mutex
	attributes map[string]map[string]any
}

func NewIdentity() *Identity {
	return &Identity{attributes: map[string]map[string]any{}}
}

func (i *Identity) DistinctID(context.Context) string { return "" }

func (i *Identity) RawDistinctID(context.Context) *string { return nil }

func (i *Identity) UserProperty(_ context.Context, distinctID, key string) (any, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	v, ok := i.attributes[distinctID][key]
	return v, ok
}

func (i *Identity) UpdateProfile(_ context.Context, distinctID string, attributes map[string]any) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.attributes[distinctID] == nil {
		i.attributes[distinctID] = map[string]any{}
	}
	for k, v := range attributes {
		i.attributes[distinctID][k] = v
	}
	return nil
}

func (i *Identity) ForUser(distinctID string) ir.UserAdapter {
	return userProperties{identity: i, distinctID: distinctID}
}

type userProperties struct {
	identity   *Identity
	distinctID string
}

func (u userProperties) Property(key string) (any, bool) {
	return u.identity.UserProperty(context.Background(), u.distinctID, key)
}

// Presentation records every Present call instead of rendering anything.
type Presentation struct {
	mu    sync.Mutex
	Calls []PresentationCall
}

type PresentationCall struct {
	DistinctID, Kind, ContentID, Variant string
}

func NewPresentation() *Presentation { return &Presentation{} }

func (p *Presentation) Present(_ context.Context, distinctID, kind, contentID, variant string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, PresentationCall{distinctID, kind, contentID, variant})
	return nil
}

// Experiments assigns a fixed variant per experiment: it returns the variant
// mapped to the experiment id for every distinctId and records no calls.
type Experiments struct {
	mu       sync.Mutex
	variants map[string]string
}

func NewExperiments(variants map[string]string) *Experiments {
	return &Experiments{variants: variants}
}

func (e *Experiments) AssignVariant(_ context.Context, _ string, experimentID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.variants[experimentID], nil
}

// Clock is a controllable DateProvider/SleepProvider for deterministic
// tests: Sleep returns immediately rather than blocking.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Sleep(ctx context.Context, _ time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
