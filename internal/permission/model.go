package permission

import "time"

// Action is a capability a grant can carry.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionApprove:
		return true
	}
	return false
}

// Grant is a moderator's capability set within one module.
type Grant struct {
	AccountID  string    `json:"account_id"`
	Module     string    `json:"module"`
	CanRead    bool      `json:"can_read"`
	CanCreate  bool      `json:"can_create"`
	CanUpdate  bool      `json:"can_update"`
	CanDelete  bool      `json:"can_delete"`
	CanApprove bool      `json:"can_approve"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Allows reports whether the grant's flag for action is set.
func (g Grant) Allows(action Action) bool {
	switch action {
	case ActionRead:
		return g.CanRead
	case ActionCreate:
		return g.CanCreate
	case ActionUpdate:
		return g.CanUpdate
	case ActionDelete:
		return g.CanDelete
	case ActionApprove:
		return g.CanApprove
	}
	return false
}
