package ir

import "time"

// Event is the inbound event the interpreter evaluates expressions against.
type Event struct {
	Name       string
	Timestamp  time.Time
	DistinctID string
	Properties map[string]any
}

// UserAdapter resolves profile/user-scoped property lookups.
type UserAdapter interface {
	Property(key string) (any, bool)
}

// EventsAdapter answers event-history queries. Implementations may suspend
// (query a store); a missing adapter is treated as "no data" by the caller.
type EventsAdapter interface {
	Exists(name string, since, until *time.Time, pred *Predicate) bool
	Count(name string, since, until *time.Time, pred *Predicate) int
	FirstTime(name string, since, until *time.Time, pred *Predicate) (time.Time, bool)
	LastTime(name string, since, until *time.Time, pred *Predicate) (time.Time, bool)
	LastAge(name string, since, until *time.Time, pred *Predicate) (time.Duration, bool)
	Aggregate(fn AggregateFn, name, prop string, since, until *time.Time, pred *Predicate) (float64, bool)
	InOrder(steps []string, overallWithin, perStepWithin time.Duration) bool
	ActivePeriods(period IntervalUnit, total, min int) bool
	Stopped(inactiveFor time.Duration) bool
	Restarted(inactiveFor, within time.Duration) bool
}

// SegmentsAdapter resolves segment membership queries.
type SegmentsAdapter interface {
	IsMember(segmentID string) bool
	EnteredAt(segmentID string) (time.Time, bool)
}

// FeaturesAdapter resolves feature-flag/entitlement queries.
type FeaturesAdapter interface {
	Has(featureID string) bool
	IsUnlimited(featureID string) bool
	Balance(featureID string) (float64, bool)
}

// EvalContext is the full set of collaborators a single evaluation may use.
// Any field may be nil; a query against a nil adapter degrades to false (or
// zero/absent in value position) per spec §4.1.
type EvalContext struct {
	Now      time.Time
	Event    *Event
	User     UserAdapter
	Events   EventsAdapter
	Segments SegmentsAdapter
	Features FeaturesAdapter
}
