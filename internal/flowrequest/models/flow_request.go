package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "flowgate/pkg/domain-errors"
)

// DefaultValidity is applied when a request carries neither validity bound.
const DefaultValidity = 180 * 24 * time.Hour

// Status is the lifecycle state of a flow request. Values are the wire codes.
type Status string

const (
	StatusPending         Status = "PE"
	StatusActive          Status = "AC"
	StatusDeleteRequested Status = "DR"
	StatusFailed          Status = "FA"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDeleteRequested, StatusFailed:
		return true
	}
	return false
}

// Profile describes the data categories a destination asks for. Profiles
// are shared by code; the payload under one code never changes.
type Profile struct {
	Code    string `json:"code"`
	Version string `json:"version"`
	Payload string `json:"payload"`
}

// SameContent reports whether two profiles carry the same payload.
func (p *Profile) SameContent(other *Profile) bool {
	return p.Payload == other.Payload
}

// FlowRequest is one subject-destination data-sharing agreement.
//
// Invariants:
//   - FlowID and DestinationID are non-empty
//   - StartValidity is strictly before ExpireValidity
//   - SubjectID is empty until a consent resolves successfully
//   - Channels are ACTIVE only while the flow request is ACTIVE
type FlowRequest struct {
	ID             uuid.UUID
	FlowID         string
	ProcessID      string
	Profile        *Profile
	DestinationID  string
	SubjectID      string
	StartValidity  time.Time
	ExpireValidity time.Time
	Status         Status
	Sources        []string
	BatchID        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewFlowRequest validates the caller-controlled fields and builds a PENDING
// flow request. Exactly one validity bound is rejected; neither bound yields
// [now, now+DefaultValidity].
func NewFlowRequest(
	id uuid.UUID,
	flowID, processID, destinationID string,
	profile *Profile,
	start, expire *time.Time,
	sources []string,
	now time.Time,
) (*FlowRequest, error) {
	if flowID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "flow_id cannot be empty")
	}
	if len(flowID) > 32 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "flow_id must be 32 characters or less")
	}
	if destinationID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "destination cannot be empty")
	}
	if profile != nil && profile.Code == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "profile code cannot be empty")
	}

	var startValidity, expireValidity time.Time
	switch {
	case start == nil && expire == nil:
		startValidity = now
		expireValidity = now.Add(DefaultValidity)
	case start == nil || expire == nil:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "start_validity and expire_validity must be given together")
	default:
		startValidity, expireValidity = *start, *expire
	}
	if !startValidity.Before(expireValidity) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "start_validity must precede expire_validity")
	}

	return &FlowRequest{
		ID:             id,
		FlowID:         flowID,
		ProcessID:      processID,
		Profile:        profile,
		DestinationID:  destinationID,
		StartValidity:  startValidity,
		ExpireValidity: expireValidity,
		Status:         StatusPending,
		Sources:        sources,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Activate moves a PENDING flow request to ACTIVE.
func (f *FlowRequest) Activate(now time.Time) error {
	if f.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidStatus, "only pending flow requests can be activated")
	}
	f.Status = StatusActive
	f.UpdatedAt = now
	return nil
}

// Fail marks a PENDING flow request as failed after a rejected consent.
func (f *FlowRequest) Fail(now time.Time) error {
	if f.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidStatus, "only pending flow requests can fail")
	}
	f.Status = StatusFailed
	f.UpdatedAt = now
	return nil
}

// RequestDelete marks an active flow request for deletion pending
// confirmation.
func (f *FlowRequest) RequestDelete(now time.Time) error {
	if f.Status != StatusActive {
		return dErrors.New(dErrors.CodeInvalidStatus, "only active flow requests can be deleted")
	}
	f.Status = StatusDeleteRequested
	f.UpdatedAt = now
	return nil
}

// AssignSubject records the subject the first time a consent resolves.
// A later resolution by a different subject is rejected.
func (f *FlowRequest) AssignSubject(subjectID string) error {
	if f.SubjectID != "" && f.SubjectID != subjectID {
		return dErrors.New(dErrors.CodeValidation, "flow request belongs to another subject")
	}
	f.SubjectID = subjectID
	return nil
}
