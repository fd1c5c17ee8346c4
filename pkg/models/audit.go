package models

import "time"

// AdminActionType names an administrative mutation of the budget.
type AdminActionType string

const (
	ActionLimitChange    AdminActionType = "LIMIT_CHANGE"
	ActionOverrideToggle AdminActionType = "OVERRIDE_TOGGLE"
)

// AdminAction is one audited administrative change.
type AdminAction struct {
	ID        string          `json:"id"`
	Action    AdminActionType `json:"action"`
	ActorID   string          `json:"actor_id"`
	Before    string          `json:"before"`
	After     string          `json:"after"`
	CreatedAt time.Time       `json:"created_at"`
}

// AdminQueryOpts specifies filters for querying admin actions.
type AdminQueryOpts struct {
	Action  AdminActionType
	ActorID string
	Since   time.Time
	Limit   int
}
