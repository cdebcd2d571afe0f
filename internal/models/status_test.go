package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusUploading},
		{StatusPending, StatusPublished},
		{StatusUploading, StatusPublished},
		{StatusUploading, StatusFailed},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to Status }{
		{StatusPublished, StatusPending},
		{StatusPublished, StatusUploading},
		{StatusPublished, StatusFailed},
		{StatusFailed, StatusPending}, // retry is a separate operation
		{StatusFailed, StatusPublished},
		{StatusPending, StatusFailed},
		{StatusPending, StatusPending},
		{StatusUploading, StatusPending},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "uploading", "published", "failed"} {
		got, err := ParseStatus(s)
		assert.NoError(t, err)
		assert.Equal(t, Status(s), got)
	}

	_, err := ParseStatus("archived")
	assert.Error(t, err)

	// Case-sensitive on purpose: the store writes lowercase.
	_, err = ParseStatus("Pending")
	assert.Error(t, err)
}
