package journey

import (
	"testing"
	"time"

	"github.com/ignite/journey-engine/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFreezesSnapshots(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	goal := &Goal{Kind: GoalEvent, EventName: "purchase", Window: time.Hour}
	c := Campaign{
		ID: "c1", VersionID: "v1", EntryNodeID: "n1",
		Goal: goal, ExitPolicy: ExitOnGoal,
	}
	j := New(c, "u1", now)

	assert.Equal(t, StatusPending, j.Status)
	require.NotNil(t, j.CurrentNodeID)
	assert.Equal(t, "n1", *j.CurrentNodeID)
	assert.Equal(t, AnchorWorkflowEntry, j.ConversionAnchor)
	assert.Equal(t, now, j.ConversionAnchorAt)
	assert.Equal(t, time.Hour, j.ConversionWindow)

	// Mutating the campaign's goal after the fact must not affect the
	// journey's frozen snapshot.
	goal.Window = 2 * time.Hour
	assert.Equal(t, time.Hour, j.GoalSnapshot.Window, "journey snapshot must be a copy independent of the campaign's goal")
}

func TestSetConvertedEarliestWins(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := Journey{}
	j = j.SetConverted(now.Add(2 * time.Hour))
	require.NotNil(t, j.ConvertedAt)
	assert.Equal(t, now.Add(2*time.Hour), *j.ConvertedAt)

	j = j.SetConverted(now.Add(1 * time.Hour))
	assert.Equal(t, now.Add(1*time.Hour), *j.ConvertedAt, "earlier conversion wins")

	j = j.SetConverted(now.Add(3 * time.Hour))
	assert.Equal(t, now.Add(1*time.Hour), *j.ConvertedAt, "later conversion must not overwrite an earlier one")
}

func TestSetContextCopyOnSet(t *testing.T) {
	j := Journey{Context: map[string]any{"a": 1}}
	j2 := j.SetContext("b", 2)

	_, hasB := j.Context["b"]
	assert.False(t, hasB, "original journey's context must be unmodified")
	assert.Equal(t, 2, j2.Context["b"])
	assert.Equal(t, 1, j2.Context["a"])
}

func TestCompleteClearsCurrentNode(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := "n1"
	j := Journey{CurrentNodeID: &n, Status: StatusActive}
	j = j.Complete(now, StatusCompleted, ExitReasonGoalMet)

	assert.Nil(t, j.CurrentNodeID)
	assert.Equal(t, StatusCompleted, j.Status)
	assert.True(t, j.IsTerminal())
	require.NotNil(t, j.ExitReason)
	assert.Equal(t, ExitReasonGoalMet, *j.ExitReason)
	require.NotNil(t, j.CompletedAt)
}

func TestPauseResumeDeadlineInvariant(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := now.Add(time.Hour)
	j := Journey{Status: StatusActive}
	j = j.Pause(now, &deadline)

	assert.Equal(t, StatusPaused, j.Status)
	require.NotNil(t, j.ResumeAt)
	assert.Equal(t, deadline, *j.ResumeAt)

	j = j.Resume(now.Add(2 * time.Hour))
	assert.Equal(t, StatusActive, j.Status)
	assert.Nil(t, j.ResumeAt)
}

func TestValidateMultiBranch(t *testing.T) {
	n := Node{
		ID:      "n1",
		Type:    NodeMultiBranch,
		Next:    []string{"a", "b", "default"},
		Payload: MultiBranchPayload{Conditions: []ir.Expr{{Kind: ir.KindBool}, {Kind: ir.KindBool}}},
	}
	assert.NoError(t, ValidateMultiBranch(n))

	bad := n
	bad.Next = []string{"a", "default"}
	assert.Error(t, ValidateMultiBranch(bad))
}

func TestValidateRandomBranch(t *testing.T) {
	n := Node{
		ID:   "n1",
		Type: NodeRandomBranch,
		Payload: RandomBranchPayload{Branches: []RandomBranchOption{
			{Percentage: 60, Next: "a"},
			{Percentage: 40, Next: "b"},
		}},
	}
	assert.NoError(t, ValidateRandomBranch(n))

	bad := n
	bad.Payload = RandomBranchPayload{Branches: []RandomBranchOption{{Percentage: 50, Next: "a"}}}
	assert.Error(t, ValidateRandomBranch(bad))
}
