// Package ir evaluates the serialized expression intermediate representation
// used for campaign triggers, node conditions, and goals. The interpreter is
// pure and side-effect-free; all I/O is delegated to the adapters passed in
// the evaluation Context.
package ir

import (
	"errors"
	"time"
)

// ErrInvalidOperator is returned when an expression names an operator the
// interpreter does not recognize.
var ErrInvalidOperator = errors.New("ir: invalid operator")

// ErrTypeMismatch is returned when a value-position expression produces a
// type that cannot satisfy the requested operation.
var ErrTypeMismatch = errors.New("ir: type mismatch")

// Kind discriminates the variants of Expr.
type Kind string

const (
	KindBool        Kind = "bool"
	KindNumber      Kind = "number"
	KindString      Kind = "string"
	KindTimestamp   Kind = "timestamp"
	KindDuration    Kind = "duration"
	KindList        Kind = "list"
	KindTimeNow     Kind = "timeNow"
	KindTimeAgo     Kind = "timeAgo"
	KindTimeWindow  Kind = "timeWindow"
	KindAnd         Kind = "and"
	KindOr          Kind = "or"
	KindNot         Kind = "not"
	KindCompare     Kind = "compare"
	KindUser        Kind = "user"
	KindEvent       Kind = "event"
	KindFeature     Kind = "feature"
	KindSegment     Kind = "segment"
	KindEventExists Kind = "exists"
	KindEventCount  Kind = "count"
	KindFirstTime   Kind = "firstTime"
	KindLastTime    Kind = "lastTime"
	KindLastAge     Kind = "lastAge"
	KindAggregate   Kind = "aggregate"
	KindInOrder     Kind = "inOrder"
	KindActivePeriods Kind = "activePeriods"
	KindStopped     Kind = "stopped"
	KindRestarted   Kind = "restarted"
)

// CompareOp enumerates the operators accepted by a `compare` expression.
type CompareOp string

const (
	OpEq    CompareOp = "eq"
	OpNeq   CompareOp = "neq"
	OpLt    CompareOp = "lt"
	OpLte   CompareOp = "lte"
	OpGt    CompareOp = "gt"
	OpGte   CompareOp = "gte"
	OpIn    CompareOp = "in"
	OpNotIn CompareOp = "notIn"
)

// KeyOp enumerates the per-key operator set shared by user/event/pred scopes.
type KeyOp string

const (
	KeyHasSet      KeyOp = "has"
	KeyIsNotSet    KeyOp = "is_not_set"
	KeyEq          KeyOp = "eq"
	KeyNeq         KeyOp = "neq"
	KeyGt          KeyOp = "gt"
	KeyGte         KeyOp = "gte"
	KeyLt          KeyOp = "lt"
	KeyLte         KeyOp = "lte"
	KeyIContains   KeyOp = "icontains"
	KeyRegex       KeyOp = "regex"
	KeyIn          KeyOp = "in"
	KeyNotIn       KeyOp = "not_in"
	KeyDateExact   KeyOp = "is_date_exact"
	KeyDateAfter   KeyOp = "is_date_after"
	KeyDateBefore  KeyOp = "is_date_before"
)

// FeatureOp enumerates operators for `feature` expressions.
type FeatureOp string

const (
	FeatureHas           FeatureOp = "has"
	FeatureNotHas        FeatureOp = "not_has"
	FeatureIsUnlimited   FeatureOp = "is_unlimited"
	FeatureCreditsEq     FeatureOp = "credits_eq"
	FeatureCreditsNeq    FeatureOp = "credits_neq"
	FeatureCreditsGt     FeatureOp = "credits_gt"
	FeatureCreditsGte    FeatureOp = "credits_gte"
	FeatureCreditsLt     FeatureOp = "credits_lt"
	FeatureCreditsLte    FeatureOp = "credits_lte"
)

// SegmentOp enumerates operators for `segment` expressions.
type SegmentOp string

const (
	SegmentIsMember     SegmentOp = "is_member"
	SegmentNotMember    SegmentOp = "not_member"
	SegmentEnteredWithin SegmentOp = "entered_within"
)

// AggregateFn enumerates the reducers accepted by `aggregate`.
type AggregateFn string

const (
	AggSum   AggregateFn = "sum"
	AggMin   AggregateFn = "min"
	AggMax   AggregateFn = "max"
	AggAvg   AggregateFn = "avg"
	AggCount AggregateFn = "count"
)

// IntervalUnit is the unit accepted by `timeWindow`.
type IntervalUnit string

const (
	IntervalHour  IntervalUnit = "hour"
	IntervalDay   IntervalUnit = "day"
	IntervalWeek  IntervalUnit = "week"
	IntervalMonth IntervalUnit = "month"
	IntervalYear  IntervalUnit = "year"
)

// Duration returns the fixed duration the spec assigns to an interval unit
// (month = 30d, year = 365d).
func (u IntervalUnit) Duration(n float64) time.Duration {
	switch u {
	case IntervalHour:
		return time.Duration(n * float64(time.Hour))
	case IntervalDay:
		return time.Duration(n * float64(24*time.Hour))
	case IntervalWeek:
		return time.Duration(n * float64(7*24*time.Hour))
	case IntervalMonth:
		return time.Duration(n * float64(30*24*time.Hour))
	case IntervalYear:
		return time.Duration(n * float64(365*24*time.Hour))
	default:
		return 0
	}
}

// Predicate is a boolean tree over event/user properties, used as the
// optional `pred`/`predAnd`/`predOr` filter on event-history queries. `not`
// over predicates is unsupported per spec.
type Predicate struct {
	Kind  string      `json:"kind"` // "pred", "predAnd", "predOr"
	Key   string      `json:"key,omitempty"`
	Op    KeyOp       `json:"op,omitempty"`
	Value any         `json:"value,omitempty"`
	Preds []Predicate `json:"preds,omitempty"`
}

// Expr is a node of the serialized expression tree.
type Expr struct {
	Kind Kind `json:"kind"`

	// Literals
	Bool     bool          `json:"bool,omitempty"`
	Number   float64       `json:"number,omitempty"`
	Str      string        `json:"str,omitempty"`
	Time     time.Time     `json:"time,omitempty"`
	Dur      time.Duration `json:"dur,omitempty"`
	List     []Expr        `json:"list,omitempty"`
	Interval IntervalUnit  `json:"interval,omitempty"`
	Value    *Expr         `json:"value,omitempty"` // operand of timeAgo/timeWindow

	// Logic
	Exprs []Expr `json:"exprs,omitempty"` // operands of and/or
	Expr1 *Expr  `json:"expr1,omitempty"` // operand of not

	// compare
	CompareOp CompareOp `json:"compareOp,omitempty"`
	Left      *Expr     `json:"left,omitempty"`
	Right     *Expr     `json:"right,omitempty"`

	// scoped predicates: user/event/feature/segment
	KeyOp     KeyOp     `json:"keyOp,omitempty"`
	Key       string    `json:"key,omitempty"`
	ScalarArg *Expr     `json:"scalarArg,omitempty"`
	FeatureOp FeatureOp `json:"featureOp,omitempty"`
	FeatureID string    `json:"featureId,omitempty"`
	SegmentOp SegmentOp `json:"segmentOp,omitempty"`
	SegmentID string    `json:"segmentId,omitempty"`
	Within    *Expr     `json:"within,omitempty"`

	// event-history queries
	EventName    string      `json:"eventName,omitempty"`
	Since        *Expr       `json:"since,omitempty"`
	Until        *Expr       `json:"until,omitempty"`
	Pred         *Predicate  `json:"pred,omitempty"`
	AggFn        AggregateFn `json:"aggFn,omitempty"`
	Prop         string      `json:"prop,omitempty"`
	Steps        []string    `json:"steps,omitempty"`
	OverallWithin *Expr      `json:"overallWithin,omitempty"`
	PerStepWithin *Expr      `json:"perStepWithin,omitempty"`
	Period       IntervalUnit `json:"period,omitempty"`
	Total        int         `json:"total,omitempty"`
	Min          int         `json:"min,omitempty"`
	InactiveFor  *Expr       `json:"inactiveFor,omitempty"`
}

// Envelope wraps a versioned expression tree as persisted on a campaign.
type Envelope struct {
	IRVersion int  `json:"irVersion"`
	Expr      Expr `json:"expr"`
}
