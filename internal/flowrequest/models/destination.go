package models

// Destination is an application that receives data through active channels.
type Destination struct {
	ID             string
	Name           string
	KafkaPublicKey string
}

// Message is one entry of a destination's log. ID is the partition offset.
type Message struct {
	ID        int64
	ChannelID string
	Data      []byte
}

// Source is a data source known to the source registry.
type Source struct {
	SourceID string   `json:"source_id"`
	Name     string   `json:"name"`
	URL      string   `json:"url,omitempty"`
	Profile  *Profile `json:"profile,omitempty"`
}
