package executor

import (
	"context"
	"time"
)

// IdentityService applies profile attribute writes issued by an
// updateCustomer node.
type IdentityService interface {
	UpdateProfile(ctx context.Context, distinctID string, attributes map[string]any) error
}

// EventService emits analytics events (sendEvent, and the fixed-schema wire
// events the orchestrator emits around lifecycle transitions) and, for
// remote nodes, dispatches an action and awaits the server's response.
type EventService interface {
	Track(ctx context.Context, distinctID, name string, properties map[string]any)
	TrackWithResponse(ctx context.Context, distinctID, action string, payload map[string]any) (RemoteResponse, error)
}

// RemoteResponse is the server's reply to an awaited remote node dispatch.
type RemoteResponse struct {
	Success        bool
	ContextUpdates map[string]any
	Error          *RemoteError
}

// RemoteError classifies a failed remote dispatch.
type RemoteError struct {
	Retryable  bool
	RetryAfter *time.Duration
	Message    string
}

// PresentationService requests that a flow or paywall be shown to the user.
// Kind is "flow" or "paywall".
type PresentationService interface {
	Present(ctx context.Context, distinctID, kind, contentID, experimentVariant string) error
}

// ExperimentService resolves which variant of an experiment a distinctId
// has been assigned, freezing the assignment on first resolution.
type ExperimentService interface {
	AssignVariant(ctx context.Context, distinctID, experimentID string) (string, error)
}

// DelegateService posts an application-level notification on behalf of a
// callDelegate node.
type DelegateService interface {
	Notify(ctx context.Context, distinctID, message string, payload map[string]any)
}

// Deps bundles every collaborator a node execution may call out to. Any
// field may be nil; node types that need an absent collaborator fail open
// by continuing past the node rather than blocking the journey forever.
type Deps struct {
	Identity     IdentityService
	Events       EventService
	Presentation PresentationService
	Experiments  ExperimentService
	Delegate     DelegateService
}
