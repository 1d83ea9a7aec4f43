package domain

import "time"

type EventType string

const (
	EventAccountRegistered  EventType = "account.registered"
	EventAccountRoleUpgrade EventType = "account.role_upgraded"
	EventAccountVerified    EventType = "account.verified"
)

// AccountEvent is published after an account change has been committed.
type AccountEvent struct {
	Type       EventType `json:"type"`
	AccountID  string    `json:"account_id"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	OccurredAt time.Time `json:"occurred_at"`
}
