package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for published events.
const (
	EventTypeEntriesImported = "entries.imported"
	EventTypeEntriesFetched  = "entries.fetched"
)

// Event is an envelope published to the event bus.
type Event struct {
	EventID      string    `json:"event_id"`
	EventVersion int       `json:"event_version"`
	EventType    string    `json:"event_type"`
	Payload      []byte    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewEvent creates a new event with the given type.
// The payload is JSON-serialized automatically.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:      uuid.New().String(),
		EventVersion: 1,
		EventType:    eventType,
		Payload:      payloadBytes,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// EntriesImportedPayload is the payload for entries.imported events.
type EntriesImportedPayload struct {
	Source     string   `json:"source"`
	EntryCount int      `json:"entry_count"`
	Files      []string `json:"files,omitempty"`
}

// EntriesFetchedPayload is the payload for entries.fetched events.
type EntriesFetchedPayload struct {
	Fetcher    string `json:"fetcher"`
	Query      string `json:"query"`
	PageNumber int    `json:"page_number"`
	EntryCount int    `json:"entry_count"`
}
