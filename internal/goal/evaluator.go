// Package goal evaluates whether a journey's frozen goal snapshot has been
// met, returning the time it latched.
package goal

import (
	"time"

	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journey"
)

// Result is the outcome of evaluating a journey's goal.
type Result struct {
	Met bool
	At  time.Time
}

// Evaluate decides whether j's goal snapshot is satisfied given the current
// evaluation context. A journey with no goal snapshot never converts.
func Evaluate(j journey.Journey, ctx ir.EvalContext) Result {
	g := j.GoalSnapshot
	if g == nil {
		return Result{}
	}

	anchor := j.ConversionAnchorAt
	var until *time.Time
	if j.ConversionWindow > 0 {
		u := anchor.Add(j.ConversionWindow)
		until = &u
	}

	switch g.Kind {
	case journey.GoalEvent:
		if ctx.Events == nil {
			return Result{}
		}
		t, ok := ctx.Events.LastTime(g.EventName, &anchor, until, g.EventFilter)
		if !ok {
			return Result{}
		}
		return Result{Met: true, At: t}

	case journey.GoalSegmentEnter:
		if ctx.Segments == nil {
			return Result{}
		}
		if ctx.Segments.IsMember(g.SegmentID) {
			return Result{Met: true, At: ctx.Now}
		}
		return Result{}

	case journey.GoalSegmentLeave:
		if ctx.Segments == nil {
			return Result{}
		}
		if !ctx.Segments.IsMember(g.SegmentID) {
			return Result{Met: true, At: ctx.Now}
		}
		return Result{}

	case journey.GoalAttribute:
		if g.Attribute == nil {
			return Result{}
		}
		ok, err := ir.EvalBool(*g.Attribute, ctx)
		if err != nil || !ok {
			return Result{}
		}
		return Result{Met: true, At: ctx.Now}

	default:
		return Result{}
	}
}

// EvaluateEvent implements the event-goal fast path used directly from
// handleEvent: rather than re-querying the events adapter, it tests a single
// inbound event's timestamp and properties against the goal's
// anchor/window/filter directly.
func EvaluateEvent(j journey.Journey, ev ir.Event, ctx ir.EvalContext) (Result, bool) {
	g := j.GoalSnapshot
	if g == nil || g.Kind != journey.GoalEvent || g.EventName != ev.Name {
		return Result{}, false
	}
	anchor := j.ConversionAnchorAt
	if ev.Timestamp.Before(anchor) {
		return Result{}, false
	}
	if j.ConversionWindow > 0 && ev.Timestamp.After(anchor.Add(j.ConversionWindow)) {
		return Result{}, false
	}
	if g.EventFilter != nil {
		ok, err := ir.MatchPredicate(g.EventFilter, ev.Properties, ctx)
		if err != nil || !ok {
			return Result{}, false
		}
	}
	return Result{Met: true, At: ev.Timestamp}, true
}
