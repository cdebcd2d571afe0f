package store

import (
	"context"
	"errors"
	"time"

	"github.com/drivecast/drivecast/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines persistence for channels, media files, audit logs, stats,
// and free-form settings.
type Store interface {
	// CreateChannel inserts a channel and returns its id.
	CreateChannel(ctx context.Context, ch *models.Channel) (int64, error)
	// ListChannels returns all channels, newest first.
	ListChannels(ctx context.Context) ([]models.Channel, error)
	// GetChannelByID returns a single channel by id.
	GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error)

	// InsertDiscovered inserts a media row for a discovered file unless its
	// external_file_id has been seen before; a repeat is a silent no-op.
	// Returns whether a new row was created.
	InsertDiscovered(ctx context.Context, channelID int64, f models.DiscoveredFile) (bool, error)
	// GetMedia returns a single media file by id.
	GetMedia(ctx context.Context, mediaID int64) (*models.MediaFile, error)
	// ListMedia returns media matching the filter, newest first (created_at
	// desc, id desc), and the total count before limit/offset.
	ListMedia(ctx context.Context, filter MediaFilter) ([]models.MediaFile, int, error)
	// UpdateMedia applies only the non-nil fields; omitted fields are left
	// untouched. The store does not validate status transitions.
	UpdateMedia(ctx context.Context, mediaID int64, fields MediaUpdate) error

	// ClaimForPublish moves a media row from pending to uploading, counting
	// the channel's in-flight uploads and today's publishes against
	// dailyLimit in the same atomic step. Exactly one concurrent caller can
	// claim a row, and a claim never takes the channel past its limit.
	ClaimForPublish(ctx context.Context, mediaID, channelID int64, dailyLimit int) (ClaimOutcome, error)
	// MarkPublished completes a claimed publish: sets published status, link,
	// and published_at, guarded on the row still being in uploading.
	MarkPublished(ctx context.Context, mediaID int64, link string) (bool, error)
	// MarkFailed moves a media row to failed and clears any published link.
	MarkFailed(ctx context.Context, mediaID int64) error
	// ResetToPending moves a failed media row back to pending (operator
	// retry). Returns false when the row is not in failed.
	ResetToPending(ctx context.Context, mediaID int64) (bool, error)
	// ListDuePublishes returns pending media whose scheduled_time is at or
	// before now, oldest schedule first.
	ListDuePublishes(ctx context.Context, now time.Time) ([]models.MediaFile, error)

	// AppendLog appends an audit entry; timestamp and id are assigned by the
	// store and written back to e.
	AppendLog(ctx context.Context, e *models.LogEntry) error
	// ListLogs returns the newest limit entries, newest first.
	ListLogs(ctx context.Context, limit int) ([]models.LogEntry, error)

	// GetStats recomputes the dashboard aggregates from the media table.
	GetStats(ctx context.Context) (*models.Stats, error)

	// GetSetting returns the value for key, or ErrNotFound.
	GetSetting(ctx context.Context, key string) (string, error)
	// SetSetting inserts or replaces the value for key.
	SetSetting(ctx context.Context, key, value string) error
}

// ClaimOutcome reports how a publish claim resolved.
type ClaimOutcome int

const (
	// ClaimNotPending: the row was not in pending, so another caller owns it
	// or it already left the publish path.
	ClaimNotPending ClaimOutcome = iota
	// ClaimGranted: the row is now uploading and the caller owns the publish.
	ClaimGranted
	// ClaimQuotaExceeded: the channel has no publish slot left today; the row
	// is untouched.
	ClaimQuotaExceeded
)

// MediaFilter holds optional filters for listing media.
type MediaFilter struct {
	ChannelID *int64
	Status    *models.Status
	Limit     int // default 50, max 200
	Offset    int
}

// MediaUpdate holds mutable fields for PATCH /media/{id}.
// Pointer fields: nil = don't change, non-nil = set.
type MediaUpdate struct {
	Caption       *string
	ScheduledTime *time.Time
	Status        *models.Status
}
