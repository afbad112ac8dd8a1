// Package announcer tells the message bus that channels became active.
//
// Announcements are written to a transactional outbox in the same
// transaction that activates the channels, flushed right after commit, and
// retried by a background worker until the broker acknowledges them.
package announcer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flowgate/internal/flowrequest/models"
)

const (
	aggregateChannel      = "channel"
	eventChannelActivated = "channel.activated"
)

// Entry is one outbox row.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	Key           string
	Payload       []byte
	Attempts      int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Published reports whether the broker acknowledged the entry.
func (e *Entry) Published() bool {
	return e.PublishedAt != nil
}

// DestinationRef identifies the receiving destination and the key sources
// encrypt for it.
type DestinationRef struct {
	DestinationID  string `json:"destination_id"`
	KafkaPublicKey string `json:"kafka_public_key"`
}

// ProfileRef is the profile block of an announcement. Fields are empty when
// the flow request carries no profile.
type ProfileRef struct {
	Code    string `json:"code"`
	Version string `json:"version"`
	Payload string `json:"payload"`
}

// Payload is the control-topic message for one activated channel.
type Payload struct {
	ChannelID      string         `json:"channel_id"`
	SourceID       string         `json:"source_id"`
	Destination    DestinationRef `json:"destination"`
	Profile        *ProfileRef    `json:"profile"`
	PersonID       string         `json:"person_id"`
	StartValidity  string         `json:"start_validity"`
	ExpireValidity string         `json:"expire_validity"`
}

// NewPayload builds the announcement of channel, owned by fr, for dest.
func NewPayload(dest models.Destination, fr *models.FlowRequest, channel *models.Channel) Payload {
	p := Payload{
		ChannelID: channel.ID,
		SourceID:  channel.SourceID,
		Destination: DestinationRef{
			DestinationID:  dest.ID,
			KafkaPublicKey: dest.KafkaPublicKey,
		},
		PersonID:       fr.SubjectID,
		StartValidity:  fr.StartValidity.Format(time.RFC3339),
		ExpireValidity: fr.ExpireValidity.Format(time.RFC3339),
	}
	if fr.Profile != nil {
		p.Profile = &ProfileRef{Code: fr.Profile.Code, Version: fr.Profile.Version, Payload: fr.Profile.Payload}
	}
	return p
}

func newEntry(topic string, payload Payload, now time.Time) (*Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal announcement: %w", err)
	}
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateChannel,
		AggregateID:   payload.ChannelID,
		EventType:     eventChannelActivated,
		Topic:         topic,
		Key:           payload.ChannelID,
		Payload:       raw,
		CreatedAt:     now,
	}, nil
}
