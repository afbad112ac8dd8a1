package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "flowgate/pkg/domain-errors"
)

// ChannelStatus is the state of one source-to-destination pipe.
type ChannelStatus string

const (
	ChannelConsentRequested ChannelStatus = "CR"
	ChannelConsentGranted   ChannelStatus = "CG"
	ChannelActive           ChannelStatus = "AC"
	ChannelConsentRejected  ChannelStatus = "RJ"
)

func (s ChannelStatus) IsValid() bool {
	switch s {
	case ChannelConsentRequested, ChannelConsentGranted, ChannelActive, ChannelConsentRejected:
		return true
	}
	return false
}

// ParseChannelStatus validates a status filter value.
func ParseChannelStatus(raw string) (ChannelStatus, error) {
	s := ChannelStatus(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown channel status")
	}
	return s, nil
}

// Channel pairs one flow request with one source.
type Channel struct {
	ID            string
	FlowRequestID uuid.UUID
	SourceID      string
	DestinationID string
	Status        ChannelStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Grant records a successful consent for the channel.
func (c *Channel) Grant(now time.Time) error {
	if c.Status != ChannelConsentRequested {
		return dErrors.New(dErrors.CodeInvalidStatus, "channel is not awaiting consent")
	}
	c.Status = ChannelConsentGranted
	c.UpdatedAt = now
	return nil
}

// Reject records a refused consent. Rejection is terminal.
func (c *Channel) Reject(now time.Time) error {
	if c.Status != ChannelConsentRequested {
		return dErrors.New(dErrors.CodeInvalidStatus, "channel is not awaiting consent")
	}
	c.Status = ChannelConsentRejected
	c.UpdatedAt = now
	return nil
}

// Activate opens the channel. The owning flow request must already be ACTIVE.
func (c *Channel) Activate(owner *FlowRequest, now time.Time) error {
	if owner.Status != StatusActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "channel cannot be active under an inactive flow request")
	}
	if c.Status != ChannelConsentGranted {
		return dErrors.New(dErrors.CodeInvalidStatus, "channel consent not granted")
	}
	c.Status = ChannelActive
	c.UpdatedAt = now
	return nil
}
