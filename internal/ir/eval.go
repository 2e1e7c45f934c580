package ir

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// EvalBool evaluates an expression and returns its boolean-position result,
// applying the truthiness coercion of spec §4.1 to non-boolean results.
func EvalBool(e Expr, ctx EvalContext) (bool, error) {
	v, err := Eval(e, ctx)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// Eval evaluates an expression to its dynamic Value. The interpreter never
// performs I/O itself; EventsAdapter/SegmentsAdapter/etc. calls may suspend
// on the caller's side.
func Eval(e Expr, ctx EvalContext) (Value, error) {
	switch e.Kind {
	case KindBool:
		return vbool(e.Bool), nil
	case KindNumber:
		return vnumber(e.Number), nil
	case KindString:
		return vstring(e.Str), nil
	case KindTimestamp:
		return vtime(e.Time), nil
	case KindDuration:
		return vduration(e.Dur), nil
	case KindList:
		out := make([]Value, len(e.List))
		for i, el := range e.List {
			v, err := Eval(el, ctx)
			if err != nil {
				return vnull(), err
			}
			out[i] = v
		}
		return vlist(out), nil
	case KindTimeNow:
		return vtime(ctx.Now), nil
	case KindTimeAgo:
		dur, err := evalDuration(e.Value, ctx)
		if err != nil {
			return vnull(), err
		}
		return vtime(ctx.Now.Add(-dur)), nil
	case KindTimeWindow:
		return evalTimeWindow(e, ctx)
	case KindAnd:
		if len(e.Exprs) == 0 {
			return vbool(true), nil
		}
		for _, sub := range e.Exprs {
			ok, err := EvalBool(sub, ctx)
			if err != nil {
				return vnull(), err
			}
			if !ok {
				return vbool(false), nil
			}
		}
		return vbool(true), nil
	case KindOr:
		if len(e.Exprs) == 0 {
			return vbool(false), nil
		}
		for _, sub := range e.Exprs {
			ok, err := EvalBool(sub, ctx)
			if err != nil {
				return vnull(), err
			}
			if ok {
				return vbool(true), nil
			}
		}
		return vbool(false), nil
	case KindNot:
		if e.Expr1 == nil {
			return vbool(true), nil
		}
		ok, err := EvalBool(*e.Expr1, ctx)
		if err != nil {
			return vnull(), err
		}
		return vbool(!ok), nil
	case KindCompare:
		return evalCompare(e, ctx)
	case KindUser:
		return evalUser(e, ctx)
	case KindEvent:
		return evalEvent(e, ctx)
	case KindFeature:
		return evalFeature(e, ctx)
	case KindSegment:
		return evalSegment(e, ctx)
	case KindEventExists, KindEventCount, KindFirstTime, KindLastTime, KindLastAge,
		KindAggregate, KindInOrder, KindActivePeriods, KindStopped, KindRestarted:
		return evalHistory(e, ctx)
	default:
		return vnull(), fmt.Errorf("%w: unknown expr kind %q", ErrInvalidOperator, e.Kind)
	}
}

func evalDuration(e *Expr, ctx EvalContext) (time.Duration, error) {
	if e == nil {
		return 0, nil
	}
	v, err := Eval(*e, ctx)
	if err != nil {
		return 0, err
	}
	switch v.Kind {
	case VDuration:
		return v.D, nil
	case VNumber:
		return time.Duration(v.N) * time.Second, nil
	default:
		return 0, fmt.Errorf("%w: expected duration", ErrTypeMismatch)
	}
}

func evalTimeWindow(e Expr, ctx EvalContext) (Value, error) {
	if e.Value == nil {
		return vnull(), fmt.Errorf("%w: timeWindow requires a value", ErrTypeMismatch)
	}
	v, err := Eval(*e.Value, ctx)
	if err != nil {
		return vnull(), err
	}
	if v.Kind != VTime {
		return vnull(), fmt.Errorf("%w: timeWindow value must be a timestamp", ErrTypeMismatch)
	}
	step := e.Interval.Duration(1)
	if step <= 0 {
		return vnull(), fmt.Errorf("%w: unknown interval unit %q", ErrInvalidOperator, e.Interval)
	}
	bucket := v.T.Unix() / int64(step/time.Second)
	return vtime(time.Unix(bucket*int64(step/time.Second), 0).UTC()), nil
}

func evalCompare(e Expr, ctx EvalContext) (Value, error) {
	if e.Left == nil || e.Right == nil {
		return vnull(), fmt.Errorf("%w: compare requires left and right", ErrTypeMismatch)
	}
	left, err := Eval(*e.Left, ctx)
	if err != nil {
		return vnull(), err
	}
	right, err := Eval(*e.Right, ctx)
	if err != nil {
		return vnull(), err
	}
	ok, err := compareValues(e.CompareOp, left, right)
	if err != nil {
		return vnull(), err
	}
	return vbool(ok), nil
}

func compareValues(op CompareOp, left, right Value) (bool, error) {
	switch op {
	case OpEq:
		return equal(left, right), nil
	case OpNeq:
		return !equal(left, right), nil
	case OpLt:
		v, ok := less(left, right)
		if !ok {
			return false, fmt.Errorf("%w: values not ordered", ErrTypeMismatch)
		}
		return v, nil
	case OpLte:
		lt, ok := less(left, right)
		if !ok {
			return false, fmt.Errorf("%w: values not ordered", ErrTypeMismatch)
		}
		return lt || equal(left, right), nil
	case OpGt:
		lt, ok := less(right, left)
		if !ok {
			return false, fmt.Errorf("%w: values not ordered", ErrTypeMismatch)
		}
		return lt, nil
	case OpGte:
		lt, ok := less(left, right)
		if !ok {
			return false, fmt.Errorf("%w: values not ordered", ErrTypeMismatch)
		}
		return !lt, nil
	case OpIn:
		return contains(right, left), nil
	case OpNotIn:
		return !contains(right, left), nil
	default:
		return false, fmt.Errorf("%w: compare op %q", ErrInvalidOperator, op)
	}
}

func evalUser(e Expr, ctx EvalContext) (Value, error) {
	if ctx.User == nil {
		return vbool(false), nil
	}
	raw, present := ctx.User.Property(e.Key)
	return applyKeyOp(e.KeyOp, raw, present, e.ScalarArg, ctx)
}

func evalEvent(e Expr, ctx EvalContext) (Value, error) {
	raw, present := resolveEventPath(ctx.Event, e.Key)
	return applyKeyOp(e.KeyOp, raw, present, e.ScalarArg, ctx)
}

// applyKeyOp implements the per-key operator set shared by user/event scopes
// (and, via matchPredicate, the event-history predicate filters).
func applyKeyOp(op KeyOp, raw any, present bool, wantExpr *Expr, ctx EvalContext) (Value, error) {
	switch op {
	case KeyHasSet, "is_set":
		return vbool(present), nil
	case KeyIsNotSet:
		return vbool(!present), nil
	}
	if !present {
		return vbool(false), nil
	}
	actual := fromAny(raw)

	var want Value
	if wantExpr != nil {
		v, err := Eval(*wantExpr, ctx)
		if err != nil {
			return vnull(), err
		}
		want = v
	}

	switch op {
	case KeyEq:
		return vbool(equal(actual, want)), nil
	case KeyNeq:
		return vbool(!equal(actual, want)), nil
	case KeyGt:
		lt, ok := less(want, actual)
		return vbool(ok && lt), nil
	case KeyGte:
		lt, ok := less(actual, want)
		return vbool(ok && !lt), nil
	case KeyLt:
		lt, ok := less(actual, want)
		return vbool(ok && lt), nil
	case KeyLte:
		lt, ok := less(want, actual)
		return vbool(ok && !lt), nil
	case KeyIContains:
		if actual.Kind != VString || want.Kind != VString {
			return vnull(), fmt.Errorf("%w: icontains requires strings", ErrTypeMismatch)
		}
		return vbool(strings.Contains(strings.ToLower(actual.S), strings.ToLower(want.S))), nil
	case KeyRegex:
		if actual.Kind != VString || want.Kind != VString {
			return vnull(), fmt.Errorf("%w: regex requires strings", ErrTypeMismatch)
		}
		re, err := regexp.Compile(want.S)
		if err != nil {
			return vnull(), fmt.Errorf("%w: invalid regex: %v", ErrTypeMismatch, err)
		}
		return vbool(re.MatchString(actual.S)), nil
	case KeyIn:
		return vbool(contains(want, actual)), nil
	case KeyNotIn:
		return vbool(!contains(want, actual)), nil
	case KeyDateExact:
		return vbool(sameCivilDay(actual, want)), nil
	case KeyDateAfter:
		if actual.Kind != VTime || want.Kind != VTime {
			return vnull(), fmt.Errorf("%w: date compare requires timestamps", ErrTypeMismatch)
		}
		return vbool(actual.T.After(want.T)), nil
	case KeyDateBefore:
		if actual.Kind != VTime || want.Kind != VTime {
			return vnull(), fmt.Errorf("%w: date compare requires timestamps", ErrTypeMismatch)
		}
		return vbool(actual.T.Before(want.T)), nil
	default:
		return vnull(), fmt.Errorf("%w: key op %q", ErrInvalidOperator, op)
	}
}

func sameCivilDay(a, b Value) bool {
	if a.Kind != VTime || b.Kind != VTime {
		return false
	}
	ay, am, ad := a.T.Date()
	by, bm, bd := b.T.Date()
	return ay == by && am == bm && ad == bd
}

func evalFeature(e Expr, ctx EvalContext) (Value, error) {
	if ctx.Features == nil {
		return vbool(false), nil
	}
	switch e.FeatureOp {
	case FeatureHas:
		return vbool(ctx.Features.Has(e.FeatureID)), nil
	case FeatureNotHas:
		return vbool(!ctx.Features.Has(e.FeatureID)), nil
	case FeatureIsUnlimited:
		return vbool(ctx.Features.IsUnlimited(e.FeatureID)), nil
	case FeatureCreditsEq, FeatureCreditsNeq, FeatureCreditsGt, FeatureCreditsGte, FeatureCreditsLt, FeatureCreditsLte:
		balance, ok := ctx.Features.Balance(e.FeatureID)
		if !ok {
			return vbool(false), nil
		}
		want := vnumber(0)
		if e.ScalarArg != nil {
			v, err := Eval(*e.ScalarArg, ctx)
			if err != nil {
				return vnull(), err
			}
			want = v
		}
		op := map[FeatureOp]CompareOp{
			FeatureCreditsEq: OpEq, FeatureCreditsNeq: OpNeq, FeatureCreditsGt: OpGt,
			FeatureCreditsGte: OpGte, FeatureCreditsLt: OpLt, FeatureCreditsLte: OpLte,
		}[e.FeatureOp]
		ok2, err := compareValues(op, vnumber(balance), want)
		if err != nil {
			return vnull(), err
		}
		return vbool(ok2), nil
	default:
		return vnull(), fmt.Errorf("%w: feature op %q", ErrInvalidOperator, e.FeatureOp)
	}
}

func evalSegment(e Expr, ctx EvalContext) (Value, error) {
	if ctx.Segments == nil {
		return vbool(false), nil
	}
	switch e.SegmentOp {
	case SegmentIsMember:
		return vbool(ctx.Segments.IsMember(e.SegmentID)), nil
	case SegmentNotMember:
		return vbool(!ctx.Segments.IsMember(e.SegmentID)), nil
	case SegmentEnteredWithin:
		enteredAt, ok := ctx.Segments.EnteredAt(e.SegmentID)
		if !ok {
			return vbool(false), nil
		}
		within, err := evalDuration(e.Within, ctx)
		if err != nil {
			return vnull(), err
		}
		return vbool(ctx.Now.Sub(enteredAt) <= within), nil
	default:
		return vnull(), fmt.Errorf("%w: segment op %q", ErrInvalidOperator, e.SegmentOp)
	}
}

// evalHistory routes event-history queries to the EventsAdapter, applying the
// shared since/until/within windowing rule: within sets since = max(since,
// now-within).
func evalHistory(e Expr, ctx EvalContext) (Value, error) {
	if ctx.Events == nil {
		switch e.Kind {
		case KindEventCount:
			return vnumber(0), nil
		case KindFirstTime, KindLastTime:
			return vnull(), nil
		case KindLastAge, KindAggregate:
			return vnull(), nil
		default:
			return vbool(false), nil
		}
	}

	since, until, err := evalWindow(e, ctx)
	if err != nil {
		return vnull(), err
	}

	switch e.Kind {
	case KindEventExists:
		return vbool(ctx.Events.Exists(e.EventName, since, until, e.Pred)), nil
	case KindEventCount:
		return vnumber(float64(ctx.Events.Count(e.EventName, since, until, e.Pred))), nil
	case KindFirstTime:
		t, ok := ctx.Events.FirstTime(e.EventName, since, until, e.Pred)
		if !ok {
			return vnull(), nil
		}
		return vtime(t), nil
	case KindLastTime:
		t, ok := ctx.Events.LastTime(e.EventName, since, until, e.Pred)
		if !ok {
			return vnull(), nil
		}
		return vtime(t), nil
	case KindLastAge:
		d, ok := ctx.Events.LastAge(e.EventName, since, until, e.Pred)
		if !ok {
			return vnull(), nil
		}
		return vduration(d), nil
	case KindAggregate:
		v, ok := ctx.Events.Aggregate(e.AggFn, e.EventName, e.Prop, since, until, e.Pred)
		if !ok {
			return vnull(), nil
		}
		return vnumber(v), nil
	case KindInOrder:
		overall, err := evalDuration(e.OverallWithin, ctx)
		if err != nil {
			return vnull(), err
		}
		perStep, err := evalDuration(e.PerStepWithin, ctx)
		if err != nil {
			return vnull(), err
		}
		return vbool(ctx.Events.InOrder(e.Steps, overall, perStep)), nil
	case KindActivePeriods:
		return vbool(ctx.Events.ActivePeriods(e.Period, e.Total, e.Min)), nil
	case KindStopped:
		inactiveFor, err := evalDuration(e.InactiveFor, ctx)
		if err != nil {
			return vnull(), err
		}
		return vbool(ctx.Events.Stopped(inactiveFor)), nil
	case KindRestarted:
		inactiveFor, err := evalDuration(e.InactiveFor, ctx)
		if err != nil {
			return vnull(), err
		}
		within, err := evalDuration(e.Within, ctx)
		if err != nil {
			return vnull(), err
		}
		return vbool(ctx.Events.Restarted(inactiveFor, within)), nil
	default:
		return vnull(), fmt.Errorf("%w: history kind %q", ErrInvalidOperator, e.Kind)
	}
}

func evalWindow(e Expr, ctx EvalContext) (since, until *time.Time, err error) {
	if e.Since != nil {
		v, err := Eval(*e.Since, ctx)
		if err != nil {
			return nil, nil, err
		}
		if v.Kind == VTime {
			since = &v.T
		}
	}
	if e.Until != nil {
		v, err := Eval(*e.Until, ctx)
		if err != nil {
			return nil, nil, err
		}
		if v.Kind == VTime {
			until = &v.T
		}
	}
	if e.Within != nil {
		dur, err := evalDuration(e.Within, ctx)
		if err != nil {
			return nil, nil, err
		}
		floor := ctx.Now.Add(-dur)
		if since == nil || floor.After(*since) {
			since = &floor
		}
	}
	return since, until, nil
}

// MatchPredicate evaluates an event-history predicate tree (pred/predAnd/
// predOr) against an event's properties, using the same per-key operator set
// as user/event scopes.
func MatchPredicate(p *Predicate, props map[string]any, ctx EvalContext) (bool, error) {
	if p == nil {
		return true, nil
	}
	switch p.Kind {
	case "predAnd":
		for _, sub := range p.Preds {
			ok, err := MatchPredicate(&sub, props, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case "predOr":
		for _, sub := range p.Preds {
			ok, err := MatchPredicate(&sub, props, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case "pred":
		raw, present := props[p.Key]
		var wantExpr *Expr
		if present || p.Value != nil {
			lit := literalFromAny(p.Value)
			wantExpr = &lit
		}
		v, err := applyKeyOp(p.Op, raw, present, wantExpr, ctx)
		if err != nil {
			return false, err
		}
		return v.Truthy(), nil
	default:
		return false, fmt.Errorf("%w: predicate kind %q", ErrInvalidOperator, p.Kind)
	}
}

func literalFromAny(a any) Expr {
	switch x := a.(type) {
	case bool:
		return Expr{Kind: KindBool, Bool: x}
	case float64:
		return Expr{Kind: KindNumber, Number: x}
	case int:
		return Expr{Kind: KindNumber, Number: float64(x)}
	case string:
		return Expr{Kind: KindString, Str: x}
	case time.Time:
		return Expr{Kind: KindTimestamp, Time: x}
	default:
		return Expr{Kind: KindString, Str: fmt.Sprintf("%v", x)}
	}
}
