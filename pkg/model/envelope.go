package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event envelope for everything the exporter
// publishes to NATS.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// ExportedEvent is the flattened record the optional Postgres sink stores for
// each Expander event that has been published downstream.
type ExportedEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	EventTime    string          `json:"event_time"`
	BusinessUnit string          `json:"business_unit"`
	Payload      json.RawMessage `json:"payload"`
	Source       string          `json:"source"`
}
