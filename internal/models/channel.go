package models

import "time"

// Channel connection states.
const (
	ChannelConnected = "connected"
	ChannelExpired   = "expired"
)

// DefaultDailyLimit applies when a channel is registered without one.
const DefaultDailyLimit = 10

// Channel is a configured publish destination plus the drive folder that
// scopes which discovered files belong to it.
type Channel struct {
	ID            int64     `json:"id,omitempty"`
	Name          string    `json:"name"`
	ProfileID     string    `json:"profile_id"`
	Avatar        *string   `json:"avatar,omitempty"`
	Status        string    `json:"status"`
	DriveFolderID string    `json:"drive_folder_id"`
	DailyLimit    int       `json:"daily_limit"`
	CreatedAt     time.Time `json:"created_at"`
}
