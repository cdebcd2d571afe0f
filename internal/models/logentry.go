package models

import "time"

// Log outcome values.
const (
	LogSuccess = "success"
	LogFailure = "failure"
)

// SystemFile labels log entries that are not tied to a single media file.
const SystemFile = "System"

// LogEntry is one append-only audit record. Entries are never mutated or
// deleted; they are the sole durable trail of ingestion and lifecycle
// operations.
type LogEntry struct {
	ID           int64     `json:"id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	FileName     string    `json:"file_name"`
	Action       string    `json:"action"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}
