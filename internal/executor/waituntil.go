package executor

import (
	"time"

	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journey"
)

// evalWaitUntil implements waitUntil: the first path whose condition now
// holds wins and skips straight to its successor. If none match, the node
// waits until the earliest of the paths' maxTime deadlines (measured from
// the journey's entry onto this node), or reactively forever if no path
// carries a deadline. On any evaluation where no condition matches and the
// earliest deadline has elapsed, the first path in declared order whose own
// deadline has elapsed is taken as a timeout branch.
func evalWaitUntil(p journey.WaitUntilPayload, enteredAt, now time.Time, evalCtx ir.EvalContext) (Result, error) {
	for _, path := range p.Paths {
		ok, err := ir.EvalBool(path.Condition, evalCtx)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return skipTo(path.Next), nil
		}
	}

	var deadline *time.Time
	for _, path := range p.Paths {
		if path.MaxTime == nil {
			continue
		}
		d := enteredAt.Add(*path.MaxTime)
		if deadline == nil || d.Before(*deadline) {
			deadline = &d
		}
	}
	if deadline == nil {
		return asyncUntil(nil), nil
	}

	if !now.Before(*deadline) {
		for _, path := range p.Paths {
			if path.MaxTime == nil {
				continue
			}
			if d := enteredAt.Add(*path.MaxTime); !now.Before(d) {
				return skipTo(path.Next), nil
			}
		}
	}
	return asyncUntil(deadline), nil
}
