package funnels

import "time"

// Status is the lifecycle state of a funnel run.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExited    Status = "exited"
)

// UserState is one visitor's run through a funnel. A row exists only once
// the visitor has matched the funnel's first step; before that the run is
// implicit no-run. CurrentStepIndex only increases while the run is active,
// and terminal rows are never reopened.
type UserState struct {
	ID                    string     `json:"id"`
	FunnelID              string     `json:"funnelId"`
	WorkspaceID           string     `json:"workspaceId"`
	AnonymousID           string     `json:"anonymousId"`
	FunnelVersion         int        `json:"funnelVersion"`
	CurrentStepIndex      int        `json:"currentStepIndex"`
	Status                Status     `json:"status"`
	EnteredAt             time.Time  `json:"enteredAt"`
	LastActivityAt        time.Time  `json:"lastActivityAt"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	ExitedAt              *time.Time `json:"exitedAt,omitempty"`
	ExitStepIndex         *int       `json:"exitStepIndex,omitempty"`
	ConversionTimeSeconds *int64     `json:"conversionTimeSeconds,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
}

// Action is the state-machine outcome for one event.
type Action string

const (
	// ActionNone leaves the run untouched.
	ActionNone Action = "none"
	// ActionStart creates a new active run at step 0.
	ActionStart Action = "start"
	// ActionAdvance moves an active run to the immediate next step.
	ActionAdvance Action = "advance"
	// ActionComplete advances into the final step and terminates the run.
	ActionComplete Action = "complete"
	// ActionExpire exits a run whose window lapsed before this event.
	ActionExpire Action = "expire"
)

// Transition describes the decided state change. FromStepIndex is the step
// index the writer must observe for the change to apply; the persistence
// layer uses it as the compare-and-swap guard.
type Transition struct {
	Action        Action
	FromStepIndex int
	ToStepIndex   int
	At            time.Time
}
