package models

import "fmt"

// Status is the publication state of a media file.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// transitions lists the permitted status changes. Published and Failed are
// terminal here; Failed is re-entered to Pending only through the explicit
// retry operation, never through a plain status update.
var transitions = map[Status][]Status{
	StatusPending:   {StatusUploading, StatusPublished},
	StatusUploading: {StatusPublished, StatusFailed},
}

// CanTransition reports whether from -> to is a permitted status change.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ParseStatus validates a status string from user input.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusUploading, StatusPublished, StatusFailed:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}
