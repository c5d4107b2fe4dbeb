package models

import (
	"time"

	"github.com/google/uuid"
)

// MembershipAction is the kind of lifecycle transition
type MembershipAction string

const (
	ActionJoined   MembershipAction = "joined"
	ActionLeft     MembershipAction = "left"
	ActionRejoined MembershipAction = "rejoined"
)

// MembershipChange is an append-only lifecycle event
type MembershipChange struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	Username         string           `json:"username" db:"username"`
	Action           MembershipAction `json:"action" db:"action"`
	Timestamp        time.Time        `json:"timestamp" db:"timestamp"`
	PreviousJoinDate *time.Time       `json:"previousJoinDate,omitempty" db:"previous_join_date"`
}

// NewMembershipChange stamps a new event with a random ID
func NewMembershipChange(username string, action MembershipAction, at time.Time, previousJoin *time.Time) MembershipChange {
	return MembershipChange{
		ID:               uuid.New(),
		Username:         username,
		Action:           action,
		Timestamp:        at.UTC(),
		PreviousJoinDate: previousJoin,
	}
}
