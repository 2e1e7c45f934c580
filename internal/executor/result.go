// Package executor evaluates a single workflow node against a journey's
// current state and produces the next step to take. It is a pure function
// of (node, journey, resume reason, evaluation context): it never persists
// anything and never advances the journey itself, leaving that to the
// orchestrator in journeysvc.
package executor

import (
	"time"

	"github.com/ignite/journey-engine/internal/journey"
)

// Action discriminates the four shapes a node execution result can take.
type Action string

const (
	ActionContinue Action = "continue"
	ActionSkip     Action = "skip"
	ActionAsync    Action = "async"
	ActionComplete Action = "complete"
)

// Result is the outcome of executing one node.
type Result struct {
	Action Action

	// NextIDs holds the successor node ids to advance to immediately
	// (ActionContinue). Most node types resolve to exactly one, but the
	// shape stays a slice to mirror Node.Next.
	NextIDs []string

	// SkipID is the successor to advance to without the usual per-node
	// side effects (ActionSkip) -- waitUntil's first-matching-path and
	// timeout-branch outcomes, and the unrecognised-type fallback. Nil
	// means there is nothing to advance to.
	SkipID *string

	// Deadline is when the journey should next be woken (ActionAsync).
	// Nil means a purely reactive wait with no timer.
	Deadline *time.Time

	// ExitReason classifies a terminal outcome (ActionComplete).
	ExitReason journey.ExitReason
}

func continueTo(ids ...string) Result {
	return Result{Action: ActionContinue, NextIDs: ids}
}

func skipTo(id string) Result {
	return Result{Action: ActionSkip, SkipID: &id}
}

func skipNothing() Result {
	return Result{Action: ActionSkip}
}

func asyncUntil(deadline *time.Time) Result {
	return Result{Action: ActionAsync, Deadline: deadline}
}

func complete(reason journey.ExitReason) Result {
	return Result{Action: ActionComplete, ExitReason: reason}
}
