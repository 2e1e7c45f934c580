package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/journey-engine/internal/ir"
	"github.com/ignite/journey-engine/internal/journey"
)

func TestExecuteTimeDelayWaitsThenContinues(t *testing.T) {
	entered := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := journey.Journey{ID: "j1", CurrentNodeEnteredAt: entered}
	node := journey.Node{ID: "n1", Type: journey.NodeTimeDelay, Next: []string{"n2"}, Payload: journey.TimeDelayPayload{Duration: time.Hour}}

	res, _, err := Execute(context.Background(), Deps{}, node, j, ResumeStart, ir.EvalContext{Now: entered.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, ActionAsync, res.Action)
	require.NotNil(t, res.Deadline)
	assert.Equal(t, entered.Add(time.Hour), *res.Deadline)

	res, _, err = Execute(context.Background(), Deps{}, node, j, ResumeTimer, ir.EvalContext{Now: entered.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, res.Action)
	assert.Equal(t, []string{"n2"}, res.NextIDs)
}

func TestExecuteBranchTrueAndFalse(t *testing.T) {
	node := journey.Node{
		ID: "n1", Type: journey.NodeBranch, Next: []string{"yes", "no"},
		Payload: journey.BranchPayload{Condition: ir.Expr{Kind: ir.KindBool, Bool: true}},
	}
	res, _, err := Execute(context.Background(), Deps{}, node, journey.Journey{}, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"yes"}, res.NextIDs)

	node.Payload = journey.BranchPayload{Condition: ir.Expr{Kind: ir.KindBool, Bool: false}}
	res, _, err = Execute(context.Background(), Deps{}, node, journey.Journey{}, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"no"}, res.NextIDs)
}

func TestExecuteBranchEvalErrorTakesFalseBranch(t *testing.T) {
	node := journey.Node{
		ID: "n1", Type: journey.NodeBranch, Next: []string{"yes", "no"},
		Payload: journey.BranchPayload{Condition: ir.Expr{Kind: "bogus"}},
	}
	res, _, err := Execute(context.Background(), Deps{}, node, journey.Journey{}, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"no"}, res.NextIDs)
}

func TestExecuteMultiBranchFirstMatchWins(t *testing.T) {
	node := journey.Node{
		ID: "n1", Type: journey.NodeMultiBranch, Next: []string{"a", "b", "default"},
		Payload: journey.MultiBranchPayload{Conditions: []ir.Expr{
			{Kind: ir.KindBool, Bool: false},
			{Kind: ir.KindBool, Bool: true},
		}},
	}
	res, _, err := Execute(context.Background(), Deps{}, node, journey.Journey{}, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.NextIDs)
}

func TestExecuteMultiBranchNoneMatchTakesDefault(t *testing.T) {
	node := journey.Node{
		ID: "n1", Type: journey.NodeMultiBranch, Next: []string{"a", "b", "default"},
		Payload: journey.MultiBranchPayload{Conditions: []ir.Expr{
			{Kind: ir.KindBool, Bool: false},
			{Kind: ir.KindBool, Bool: false},
		}},
	}
	res, _, err := Execute(context.Background(), Deps{}, node, journey.Journey{}, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, res.NextIDs)
}

func TestExecuteRandomBranchIsDeterministic(t *testing.T) {
	node := journey.Node{
		ID: "n1", Type: journey.NodeRandomBranch,
		Payload: journey.RandomBranchPayload{Branches: []journey.RandomBranchOption{
			{Percentage: 50, Next: "a"},
			{Percentage: 50, Next: "b"},
		}},
	}
	j := journey.Journey{ID: "j1"}
	res1, _, err := Execute(context.Background(), Deps{}, node, j, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	res2, _, err := Execute(context.Background(), Deps{}, node, j, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, res1.NextIDs, res2.NextIDs, "same journey/node must always resolve to the same branch")
}

func TestExecuteWaitUntilFirstMatchSkips(t *testing.T) {
	node := journey.Node{
		ID: "n1", Type: journey.NodeWaitUntil,
		Payload: journey.WaitUntilPayload{Paths: []journey.WaitPath{
			{Condition: ir.Expr{Kind: ir.KindBool, Bool: true}, Next: "matched"},
		}},
	}
	res, _, err := Execute(context.Background(), Deps{}, node, journey.Journey{}, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, res.Action)
	require.NotNil(t, res.SkipID)
	assert.Equal(t, "matched", *res.SkipID)
}

func TestExecuteWaitUntilTimesOutToFallbackPath(t *testing.T) {
	entered := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTime := time.Hour
	node := journey.Node{
		ID: "n1", Type: journey.NodeWaitUntil,
		Payload: journey.WaitUntilPayload{Paths: []journey.WaitPath{
			{Condition: ir.Expr{Kind: ir.KindBool, Bool: false}, MaxTime: &maxTime, Next: "timeout"},
		}},
	}
	j := journey.Journey{CurrentNodeEnteredAt: entered}

	res, _, err := Execute(context.Background(), Deps{}, node, j, ResumeStart, ir.EvalContext{Now: entered.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, ActionAsync, res.Action)
	require.NotNil(t, res.Deadline)

	res, _, err = Execute(context.Background(), Deps{}, node, j, ResumeEvent, ir.EvalContext{Now: entered.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, res.Action)
	assert.Equal(t, "timeout", *res.SkipID)
}

func TestExecuteExitDefaultsToCompleted(t *testing.T) {
	node := journey.Node{ID: "n1", Type: journey.NodeExit, Payload: journey.ExitPayload{}}
	res, _, err := Execute(context.Background(), Deps{}, node, journey.Journey{}, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, ActionComplete, res.Action)
	assert.Equal(t, journey.ExitReasonCompleted, res.ExitReason)
}

type fakeEventService struct {
	tracked []string
	resp    RemoteResponse
	err     error
}

func (f *fakeEventService) Track(_ context.Context, _ string, name string, _ map[string]any) {
	f.tracked = append(f.tracked, name)
}

func (f *fakeEventService) TrackWithResponse(context.Context, string, string, map[string]any) (RemoteResponse, error) {
	return f.resp, f.err
}

func TestExecuteSendEventTagsJourneyAndCampaign(t *testing.T) {
	svc := &fakeEventService{}
	node := journey.Node{
		ID: "n1", Type: journey.NodeSendEvent, Next: []string{"n2"},
		Payload: journey.SendEventPayload{Name: "funnel_step"},
	}
	j := journey.Journey{ID: "j1", CampaignID: "c1"}
	res, _, err := Execute(context.Background(), Deps{Events: svc}, node, j, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"n2"}, res.NextIDs)
	assert.Equal(t, []string{"funnel_step"}, svc.tracked)
}

func TestExecuteRemoteSuccessAppliesContextUpdates(t *testing.T) {
	svc := &fakeEventService{resp: RemoteResponse{Success: true, ContextUpdates: map[string]any{"k": "v"}}}
	node := journey.Node{ID: "n1", Type: journey.NodeRemote, Next: []string{"n2"}, Payload: journey.RemotePayload{Action: "do-thing"}}
	res, j, err := Execute(context.Background(), Deps{Events: svc}, node, journey.Journey{}, ResumeStart, ir.EvalContext{Now: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, res.Action)
	assert.Equal(t, "v", j.Context["k"])
}

func TestExecuteRemoteRetryableErrorSchedulesRetry(t *testing.T) {
	svc := &fakeEventService{resp: RemoteResponse{Success: false, Error: &RemoteError{Retryable: true}}}
	node := journey.Node{ID: "n1", Type: journey.NodeRemote, Next: []string{"n2"}, Payload: journey.RemotePayload{Action: "do-thing"}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	res, _, err := Execute(context.Background(), Deps{Events: svc}, node, journey.Journey{}, ResumeStart, ir.EvalContext{Now: now})
	require.NoError(t, err)
	assert.Equal(t, ActionAsync, res.Action)
	assert.Equal(t, now.Add(defaultRemoteRetry), *res.Deadline)
}

func TestExecuteRemoteNonRetryableErrorCompletes(t *testing.T) {
	svc := &fakeEventService{resp: RemoteResponse{Success: false, Error: &RemoteError{Retryable: false}}}
	node := journey.Node{ID: "n1", Type: journey.NodeRemote, Next: []string{"n2"}, Payload: journey.RemotePayload{Action: "do-thing"}}
	res, _, err := Execute(context.Background(), Deps{Events: svc}, node, journey.Journey{}, ResumeStart, ir.EvalContext{Now: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, ActionComplete, res.Action)
	assert.Equal(t, journey.ExitReasonError, res.ExitReason)
}

func TestExecuteUnrecognisedPayloadFallsBackToSkipOrComplete(t *testing.T) {
	node := journey.Node{ID: "n1", Next: []string{"n2"}}
	res, _, err := Execute(context.Background(), Deps{}, node, journey.Journey{}, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, res.Action)
	assert.Equal(t, "n2", *res.SkipID)

	node.Next = nil
	res, _, err = Execute(context.Background(), Deps{}, node, journey.Journey{}, ResumeStart, ir.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, ActionComplete, res.Action)
}
