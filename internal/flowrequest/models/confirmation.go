package models

import (
	"time"

	"github.com/google/uuid"

	"flowgate/pkg/platform/sentinel"
)

// Action is the lifecycle transition a confirmation code authorizes.
type Action string

const (
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
)

func (a Action) IsValid() bool {
	return a == ActionAdd || a == ActionDelete
}

// ConfirmationCode is a single-use token for one transition of one flow request.
type ConfirmationCode struct {
	Code          string
	FlowRequestID uuid.UUID
	Action        Action
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Consumed      bool
}

// ValidateForConsume reports why a code cannot be consumed at now.
func (c *ConfirmationCode) ValidateForConsume(now time.Time) error {
	if c.Consumed {
		return sentinel.ErrAlreadyUsed
	}
	if !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt) {
		return sentinel.ErrExpired
	}
	return nil
}

// ConsentConfirmation tracks one consent round trip for one channel.
// Once Resolved it never changes again.
type ConsentConfirmation struct {
	ConfirmID     string
	ConsentID     string
	ChannelID     string
	FlowRequestID uuid.UUID
	BatchID       string
	CallbackURL   string
	Resolved      bool
	Success       bool
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

// Resolve records the outcome. It reports false when the confirmation was
// already resolved, in which case nothing changes.
func (c *ConsentConfirmation) Resolve(success bool, now time.Time) bool {
	if c.Resolved {
		return false
	}
	c.Resolved = true
	c.Success = success
	c.ResolvedAt = &now
	return true
}
