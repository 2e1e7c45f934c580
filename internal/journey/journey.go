package journey

import (
	"time"

	"github.com/google/uuid"
)

// Status is a journey's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// IsLive reports whether status is active or paused.
func (s Status) IsLive() bool {
	return s == StatusActive || s == StatusPaused
}

// ID is a time-ordered, globally unique journey identifier.
type ID string

// NewID mints a time-ordered unique journey id: a UUIDv4 prefixed with a
// nanosecond timestamp so lexical and chronological order agree.
func NewID(now time.Time) ID {
	return ID(now.UTC().Format("20060102T150405.000000000Z") + "-" + uuid.NewString())
}

// Journey is a single user's mutable execution instance of a campaign's
// workflow graph.
type Journey struct {
	ID                ID     `json:"id"`
	CampaignID        string `json:"campaignId"`
	CampaignVersionID string `json:"campaignVersionId"`
	DistinctID        string `json:"distinctId"`

	CurrentNodeID *string        `json:"currentNodeId"`
	// CurrentNodeEnteredAt is the time the journey last moved onto
	// CurrentNodeID. It is not part of the published data model but is
	// needed to compute waitUntil.paths[i].maxTime deadlines relative to
	// node entry rather than to the last unrelated touch of UpdatedAt.
	CurrentNodeEnteredAt time.Time      `json:"currentNodeEnteredAt,omitempty"`
	Status               Status         `json:"status"`
	Context              map[string]any `json:"context"`

	StartedAt   time.Time  `json:"startedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ResumeAt    *time.Time `json:"resumeAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`

	GoalSnapshot        *Goal            `json:"goalSnapshot,omitempty"`
	ExitPolicySnapshot  ExitPolicy       `json:"exitPolicySnapshot,omitempty"`
	ConversionWindow    time.Duration    `json:"conversionWindow,omitempty"`
	ConversionAnchor    ConversionAnchor `json:"conversionAnchor,omitempty"`
	ConversionAnchorAt  time.Time        `json:"conversionAnchorAt"`
	ConvertedAt         *time.Time       `json:"convertedAt,omitempty"`

	ExitReason *ExitReason `json:"exitReason,omitempty"`
}

// New constructs a journey at the campaign's entry node with status pending,
// freezing the campaign's goal/exit-policy snapshots at creation time per the
// data-model invariant that in-flight journeys never see later campaign
// edits.
func New(c Campaign, distinctID string, now time.Time) Journey {
	entry := c.EntryNodeID
	var goalSnap *Goal
	if c.Goal != nil {
		g := *c.Goal
		goalSnap = &g
	}
	return Journey{
		ID:                 NewID(now),
		CampaignID:         c.ID,
		CampaignVersionID:  c.VersionID,
		DistinctID:         distinctID,
		CurrentNodeID:        &entry,
		CurrentNodeEnteredAt: now,
		Status:               StatusPending,
		Context:              map[string]any{},
		StartedAt:            now,
		UpdatedAt:            now,
		GoalSnapshot:       goalSnap,
		ExitPolicySnapshot: c.ExitPolicy,
		ConversionWindow:   goalWindow(c.Goal),
		ConversionAnchor:   conversionAnchorOrDefault(c.ConversionAnchor),
		ConversionAnchorAt: now,
	}
}

func goalWindow(g *Goal) time.Duration {
	if g == nil {
		return 0
	}
	return g.Window
}

func conversionAnchorOrDefault(a ConversionAnchor) ConversionAnchor {
	if a == "" {
		return AnchorWorkflowEntry
	}
	return a
}

// IsTerminal reports whether the journey has reached a terminal status.
func (j Journey) IsTerminal() bool {
	return !j.Status.IsLive() && j.Status != StatusPending
}

// HasExpired reports whether the journey's ExpiresAt deadline has passed.
func (j Journey) HasExpired(now time.Time) bool {
	return j.ExpiresAt != nil && !now.Before(*j.ExpiresAt)
}

// SetContext returns a copy of the journey with key set in its context
// scratchpad (copy-on-set per the data-model invariant).
func (j Journey) SetContext(key string, value any) Journey {
	next := make(map[string]any, len(j.Context)+1)
	for k, v := range j.Context {
		next[k] = v
	}
	next[key] = value
	j.Context = next
	return j
}

// SetConverted applies the earliest-wins, never-unset monotonic rule for
// convertedAt: a later call with a later timestamp is a no-op once a
// convertedAt is already recorded.
func (j Journey) SetConverted(at time.Time) Journey {
	if j.ConvertedAt == nil || at.Before(*j.ConvertedAt) {
		t := at
		j.ConvertedAt = &t
	}
	return j
}

// Pause transitions the journey to paused with an optional resume deadline.
// deadline == nil means a purely reactive wait.
func (j Journey) Pause(now time.Time, deadline *time.Time) Journey {
	j.Status = StatusPaused
	j.ResumeAt = deadline
	j.UpdatedAt = now
	return j
}

// Resume transitions a paused journey back to active, clearing its resume
// deadline.
func (j Journey) Resume(now time.Time) Journey {
	j.Status = StatusActive
	j.ResumeAt = nil
	j.UpdatedAt = now
	return j
}

// Complete transitions the journey to a terminal status, clearing
// CurrentNodeID per the data-model invariant that terminal journeys have no
// current node.
func (j Journey) Complete(now time.Time, status Status, reason ExitReason) Journey {
	j.Status = status
	j.CurrentNodeID = nil
	j.ResumeAt = nil
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ExitReason = &reason
	return j
}

// MoveToNode returns a copy of the journey positioned at nodeID, stamping
// CurrentNodeEnteredAt so duration-based node semantics (timeDelay,
// waitUntil.maxTime) measure elapsed time from entry rather than from the
// journey's last unrelated update.
func (j Journey) MoveToNode(nodeID string, now time.Time) Journey {
	j.CurrentNodeID = &nodeID
	j.CurrentNodeEnteredAt = now
	j.UpdatedAt = now
	return j
}

// ConversionDeadline returns the absolute time a bounded goal window closes,
// or nil when the window is unbounded (0).
func (j Journey) ConversionDeadline() *time.Time {
	if j.ConversionWindow <= 0 {
		return nil
	}
	d := j.ConversionAnchorAt.Add(j.ConversionWindow)
	return &d
}
