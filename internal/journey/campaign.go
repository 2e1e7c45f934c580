// Package journey holds the campaign/node/journey data model: the published
// workflow graph a user is driven through, and the mutable execution record
// of one user's pass through it.
package journey

import (
	"time"

	"github.com/ignite/journey-engine/internal/ir"
)

// TriggerKind discriminates how a campaign is entered.
type TriggerKind string

const (
	TriggerEvent   TriggerKind = "event"
	TriggerSegment TriggerKind = "segment"
)

// Trigger describes when a campaign is a candidate to start a journey.
type Trigger struct {
	Kind      TriggerKind `json:"kind"`
	EventName string      `json:"eventName,omitempty"` // TriggerEvent only
	Condition *ir.Expr     `json:"condition,omitempty"` // optional for event, required for segment
}

// GoalKind discriminates the condition under which a journey converts.
type GoalKind string

const (
	GoalEvent        GoalKind = "event"
	GoalSegmentEnter GoalKind = "segmentEnter"
	GoalSegmentLeave GoalKind = "segmentLeave"
	GoalAttribute    GoalKind = "attribute"
)

// Goal is the optional predicate whose satisfaction latches a journey's
// convertedAt.
type Goal struct {
	Kind        GoalKind  `json:"kind"`
	EventName   string    `json:"eventName,omitempty"`
	EventFilter *ir.Predicate `json:"eventFilter,omitempty"`
	SegmentID   string    `json:"segmentId,omitempty"`
	Attribute   *ir.Expr  `json:"attribute,omitempty"`
	// Window bounds the conversion window, as a time.Duration, relative to
	// the journey's conversion anchor; 0 means unbounded.
	Window time.Duration `json:"window,omitempty"`
}

// ExitPolicy governs early termination of an otherwise still-running journey.
type ExitPolicy string

const (
	ExitNever          ExitPolicy = "never"
	ExitOnGoal         ExitPolicy = "onGoal"
	ExitOnStopMatching ExitPolicy = "onStopMatching"
	ExitOnGoalOrStop   ExitPolicy = "onGoalOrStop"
)

// FrequencyPolicyKind is the admission rule for starting a new journey for a
// (user, campaign) pair.
type FrequencyPolicyKind string

const (
	FrequencyOnce          FrequencyPolicyKind = "once"
	FrequencyEveryRematch  FrequencyPolicyKind = "everyRematch"
	FrequencyFixedInterval FrequencyPolicyKind = "fixedInterval"
)

// ConversionAnchor is the time reference for a goal's conversion window.
type ConversionAnchor string

const (
	AnchorWorkflowEntry ConversionAnchor = "workflowEntry"
)

// Campaign is an immutable, published workflow specification.
type Campaign struct {
	ID                string              `json:"id"`
	VersionID         string              `json:"versionId"`
	CampaignType      string              `json:"campaignType"`
	EntryNodeID       string              `json:"entryNodeId"`
	Nodes             map[string]Node     `json:"nodes"`
	Trigger           Trigger             `json:"trigger"`
	Goal              *Goal               `json:"goal,omitempty"`
	ExitPolicy        ExitPolicy          `json:"exitPolicy,omitempty"`
	FrequencyPolicy   FrequencyPolicyKind `json:"frequencyPolicy"`
	FrequencyInterval time.Duration       `json:"frequencyInterval,omitempty"`
	ConversionAnchor  ConversionAnchor    `json:"conversionAnchor,omitempty"`
}

// EntryNode returns the campaign's entry node, or false if the graph is
// malformed and the entry id is absent.
func (c Campaign) EntryNode() (Node, bool) {
	n, ok := c.Nodes[c.EntryNodeID]
	return n, ok
}

// Node looks up a node by id.
func (c Campaign) Node(id string) (Node, bool) {
	n, ok := c.Nodes[id]
	return n, ok
}
