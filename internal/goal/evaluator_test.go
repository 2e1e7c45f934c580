package goal

import (
	"testing"
	"time"

	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvents struct {
	t  time.Time
	ok bool
}

func (s stubEvents) Exists(string, *time.Time, *time.Time, *ir.Predicate) bool { return s.ok }
func (s stubEvents) Count(string, *time.Time, *time.Time, *ir.Predicate) int   { return 0 }
func (s stubEvents) FirstTime(string, *time.Time, *time.Time, *ir.Predicate) (time.Time, bool) {
	return s.t, s.ok
}
func (s stubEvents) LastTime(string, *time.Time, *time.Time, *ir.Predicate) (time.Time, bool) {
	return s.t, s.ok
}
func (s stubEvents) LastAge(string, *time.Time, *time.Time, *ir.Predicate) (time.Duration, bool) {
	return 0, s.ok
}
func (s stubEvents) Aggregate(ir.AggregateFn, string, string, *time.Time, *time.Time, *ir.Predicate) (float64, bool) {
	return 0, false
}
func (s stubEvents) InOrder([]string, time.Duration, time.Duration) bool { return false }
func (s stubEvents) ActivePeriods(ir.IntervalUnit, int, int) bool        { return false }
func (s stubEvents) Stopped(time.Duration) bool                         { return false }
func (s stubEvents) Restarted(time.Duration, time.Duration) bool        { return false }

func TestEvaluateNoGoalSnapshot(t *testing.T) {
	r := Evaluate(journey.Journey{}, ir.EvalContext{})
	assert.False(t, r.Met)
}

func TestEvaluateEventGoalWithinWindow(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	converted := anchor.Add(30 * time.Minute)
	j := journey.Journey{
		GoalSnapshot:       &journey.Goal{Kind: journey.GoalEvent, EventName: "purchase", Window: time.Hour},
		ConversionAnchorAt: anchor,
		ConversionWindow:   time.Hour,
	}
	ctx := ir.EvalContext{Now: anchor.Add(45 * time.Minute), Events: stubEvents{t: converted, ok: true}}
	r := Evaluate(j, ctx)
	require.True(t, r.Met)
	assert.Equal(t, converted, r.At)
}

func TestEvaluateEventGoalNoEventsAdapter(t *testing.T) {
	j := journey.Journey{GoalSnapshot: &journey.Goal{Kind: journey.GoalEvent, EventName: "purchase"}}
	r := Evaluate(j, ir.EvalContext{})
	assert.False(t, r.Met)
}

type stubSegments struct{ member bool }

func (s stubSegments) IsMember(string) bool                    { return s.member }
func (s stubSegments) EnteredAt(string) (time.Time, bool) { return time.Time{}, false }

func TestEvaluateSegmentEnter(t *testing.T) {
	j := journey.Journey{GoalSnapshot: &journey.Goal{Kind: journey.GoalSegmentEnter, SegmentID: "vip"}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Evaluate(j, ir.EvalContext{Now: now, Segments: stubSegments{member: true}})
	require.True(t, r.Met)
	assert.Equal(t, now, r.At)
}

func TestEvaluateAttributeGoal(t *testing.T) {
	attr := ir.Expr{Kind: ir.KindBool, Bool: true}
	j := journey.Journey{GoalSnapshot: &journey.Goal{Kind: journey.GoalAttribute, Attribute: &attr}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Evaluate(j, ir.EvalContext{Now: now})
	require.True(t, r.Met)
	assert.Equal(t, now, r.At)
}

func TestEvaluateEventFastPathOutsideWindowFails(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := journey.Journey{
		GoalSnapshot:       &journey.Goal{Kind: journey.GoalEvent, EventName: "purchase", Window: time.Hour},
		ConversionAnchorAt: anchor,
		ConversionWindow:   time.Hour,
	}
	ev := ir.Event{Name: "purchase", Timestamp: anchor.Add(2 * time.Hour)}
	_, ok := EvaluateEvent(j, ev, ir.EvalContext{})
	assert.False(t, ok)
}

func TestEvaluateEventFastPathWithinWindowSucceeds(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := journey.Journey{
		GoalSnapshot:       &journey.Goal{Kind: journey.GoalEvent, EventName: "purchase", Window: time.Hour},
		ConversionAnchorAt: anchor,
		ConversionWindow:   time.Hour,
	}
	ev := ir.Event{Name: "purchase", Timestamp: anchor.Add(30 * time.Minute)}
	r, ok := EvaluateEvent(j, ev, ir.EvalContext{})
	require.True(t, ok)
	assert.Equal(t, ev.Timestamp, r.At)
}
