package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journey"
)

// ResumeReason tells a node why Execute is being invoked again for a journey
// already positioned on it: a fresh arrival, a fired timer, or an inbound
// event/segment change that woke a reactive wait. No node's outcome depends
// on it: timeDelay and waitUntil measure from CurrentNodeEnteredAt against
// the evaluation's current time whatever the reason.
type ResumeReason string

const (
	ResumeStart ResumeReason = "start"
	ResumeTimer ResumeReason = "timer"
	ResumeEvent ResumeReason = "event"
)

const defaultRemoteRetry = 5 * time.Second

// Execute evaluates a single node against j's current state and returns the
// next step. It returns a possibly-updated journey: showFlow/showPaywall
// experiment freezing and remote context updates write into the returned
// journey's context rather than mutating in place. updateCustomer leaves the
// journey unchanged and writes through Identity.UpdateProfile instead.
func Execute(ctx context.Context, deps Deps, node journey.Node, j journey.Journey, reason ResumeReason, evalCtx ir.EvalContext) (Result, journey.Journey, error) {
	switch p := node.Payload.(type) {
	case journey.ShowFlowPayload:
		return executePresentation(ctx, deps, j, "flow", p.FlowID, p.ExperimentID, p.RequiresInteraction, node.Next, evalCtx.Now)
	case journey.ShowPaywallPayload:
		return executePresentation(ctx, deps, j, "paywall", p.PaywallID, p.ExperimentID, p.RequiresInteraction, node.Next, evalCtx.Now)
	case journey.TimeDelayPayload:
		return executeTimeDelay(j, p, node.Next, evalCtx.Now), j, nil
	case journey.TimeWindowPayload:
		res, err := executeTimeWindow(p, node.Next, evalCtx.Now)
		return res, j, err
	case journey.WaitUntilPayload:
		res, err := evalWaitUntil(p, j.CurrentNodeEnteredAt, evalCtx.Now, evalCtx)
		return res, j, err
	case journey.BranchPayload:
		return executeBranch(p, node.Next, evalCtx), j, nil
	case journey.MultiBranchPayload:
		res, err := executeMultiBranch(p, node.Next, evalCtx)
		return res, j, err
	case journey.RandomBranchPayload:
		return executeRandomBranch(j.ID, node.ID, p), j, nil
	case journey.UpdateCustomerPayload:
		return executeUpdateCustomer(ctx, deps, j, p, node.Next)
	case journey.SendEventPayload:
		return executeSendEvent(ctx, deps, j, node.ID, p, node.Next), j, nil
	case journey.CallDelegatePayload:
		return executeCallDelegate(ctx, deps, j, p, node.Next), j, nil
	case journey.RemotePayload:
		return executeRemote(ctx, deps, j, p, node.Next, evalCtx.Now)
	case journey.ExitPayload:
		reason := p.Reason
		if reason == "" {
			reason = journey.ExitReasonCompleted
		}
		return complete(reason), j, nil
	default:
		if len(node.Next) > 0 {
			return skipTo(node.Next[0]), j, nil
		}
		return complete(journey.ExitReasonError), j, nil
	}
}

func executePresentation(ctx context.Context, deps Deps, j journey.Journey, kind, contentID, experimentID string, requiresInteraction bool, next []string, now time.Time) (Result, journey.Journey, error) {
	variant := ""
	if experimentID != "" {
		var err error
		variant, j, err = freezeExperimentVariant(ctx, deps, j, experimentID)
		if err != nil {
			return Result{}, j, err
		}
	}
	if deps.Presentation == nil {
		return continueTo(next...), j, nil
	}
	if err := deps.Presentation.Present(ctx, j.DistinctID, kind, contentID, variant); err != nil {
		return Result{}, j, fmt.Errorf("executor: present %s %s: %w", kind, contentID, err)
	}
	if requiresInteraction {
		return asyncUntil(nil), j, nil
	}
	return continueTo(next...), j, nil
}

// freezeExperimentVariant resolves an experiment assignment once and freezes
// it into journey.context["_experiment_variants"][experimentId], so that a
// node revisited later in the same journey (a loop back through branch
// nodes) or a crash-recovery replay never re-rolls the assignment.
func freezeExperimentVariant(ctx context.Context, deps Deps, j journey.Journey, experimentID string) (string, journey.Journey, error) {
	frozen, _ := j.Context["_experiment_variants"].(map[string]any)
	if v, ok := frozen[experimentID]; ok {
		if s, ok := v.(string); ok {
			return s, j, nil
		}
	}
	if deps.Experiments == nil {
		return "", j, nil
	}
	variant, err := deps.Experiments.AssignVariant(ctx, j.DistinctID, experimentID)
	if err != nil {
		return "", j, fmt.Errorf("executor: assign variant for experiment %s: %w", experimentID, err)
	}
	next := make(map[string]any, len(frozen)+1)
	for k, v := range frozen {
		next[k] = v
	}
	next[experimentID] = variant
	j = j.SetContext("_experiment_variants", next)
	return variant, j, nil
}

func executeTimeDelay(j journey.Journey, p journey.TimeDelayPayload, next []string, now time.Time) Result {
	deadline := j.CurrentNodeEnteredAt.Add(p.Duration)
	if !now.Before(deadline) {
		return continueTo(next...)
	}
	return asyncUntil(&deadline)
}

func executeTimeWindow(p journey.TimeWindowPayload, next []string, now time.Time) (Result, error) {
	open, nextOpen, err := evalTimeWindow(p, now)
	if err != nil {
		return Result{}, err
	}
	if open {
		return continueTo(next...), nil
	}
	return asyncUntil(&nextOpen), nil
}

func executeBranch(p journey.BranchPayload, next []string, evalCtx ir.EvalContext) Result {
	ok, err := ir.EvalBool(p.Condition, evalCtx)
	if err != nil || !ok {
		if len(next) > 1 {
			return continueTo(next[1])
		}
		return skipNothing()
	}
	if len(next) > 0 {
		return continueTo(next[0])
	}
	return skipNothing()
}

func executeMultiBranch(p journey.MultiBranchPayload, next []string, evalCtx ir.EvalContext) (Result, error) {
	for i, cond := range p.Conditions {
		ok, err := ir.EvalBool(cond, evalCtx)
		if err != nil {
			return Result{}, err
		}
		if ok && i < len(next) {
			return continueTo(next[i]), nil
		}
	}
	if len(next) > 0 {
		return continueTo(next[len(next)-1]), nil
	}
	return skipNothing(), nil
}

func executeRandomBranch(journeyID journey.ID, nodeID string, p journey.RandomBranchPayload) Result {
	u := sampleUniform(string(journeyID), nodeID)
	opts := make([]rangeOption, len(p.Branches))
	for i, b := range p.Branches {
		opts[i] = rangeOption{percentage: b.Percentage, next: b.Next}
	}
	return continueTo(selectRandomBranch(opts, u))
}

func executeUpdateCustomer(ctx context.Context, deps Deps, j journey.Journey, p journey.UpdateCustomerPayload, next []string) (Result, journey.Journey, error) {
	if deps.Identity != nil {
		if err := deps.Identity.UpdateProfile(ctx, j.DistinctID, p.Attributes); err != nil {
			return Result{}, j, fmt.Errorf("executor: update customer profile: %w", err)
		}
	}
	return continueTo(next...), j, nil
}

func executeSendEvent(ctx context.Context, deps Deps, j journey.Journey, nodeID string, p journey.SendEventPayload, next []string) Result {
	if deps.Events != nil {
		props := make(map[string]any, len(p.Properties)+3)
		for k, v := range p.Properties {
			props[k] = v
		}
		props["journeyId"] = string(j.ID)
		props["campaignId"] = j.CampaignID
		props["nodeId"] = nodeID
		deps.Events.Track(ctx, j.DistinctID, p.Name, props)
	}
	return continueTo(next...)
}

func executeCallDelegate(ctx context.Context, deps Deps, j journey.Journey, p journey.CallDelegatePayload, next []string) Result {
	if deps.Delegate != nil {
		deps.Delegate.Notify(ctx, j.DistinctID, p.Message, p.Payload)
	}
	return continueTo(next...)
}

func executeRemote(ctx context.Context, deps Deps, j journey.Journey, p journey.RemotePayload, next []string, now time.Time) (Result, journey.Journey, error) {
	if p.Async {
		if deps.Events != nil {
			go deps.Events.TrackWithResponse(context.WithoutCancel(ctx), j.DistinctID, p.Action, p.Payload)
		}
		return continueTo(next...), j, nil
	}
	if deps.Events == nil {
		return continueTo(next...), j, nil
	}

	resp, err := deps.Events.TrackWithResponse(ctx, j.DistinctID, p.Action, p.Payload)
	if err != nil {
		deadline := now.Add(defaultRemoteRetry)
		return asyncUntil(&deadline), j, nil
	}
	if resp.Success {
		if len(resp.ContextUpdates) > 0 {
			for k, v := range resp.ContextUpdates {
				j = j.SetContext(k, v)
			}
		}
		return continueTo(next...), j, nil
	}

	if resp.Error != nil && resp.Error.Retryable {
		retryAfter := defaultRemoteRetry
		if resp.Error.RetryAfter != nil {
			retryAfter = *resp.Error.RetryAfter
		}
		deadline := now.Add(retryAfter)
		return asyncUntil(&deadline), j, nil
	}
	return complete(journey.ExitReasonError), j, nil
}
