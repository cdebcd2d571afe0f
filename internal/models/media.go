package models

import "time"

// Media kind values.
const (
	KindImage = "image"
	KindVideo = "video"
)

// MediaFile is one asset discovered on the drive source and tracked through
// its publication lifecycle.
type MediaFile struct {
	ID             int64      `json:"id,omitempty"`
	ExternalFileID string     `json:"external_file_id"`
	ChannelID      int64      `json:"channel_id"`
	FileName       string     `json:"file_name"`
	Kind           string     `json:"kind"`
	SizeBytes      int64      `json:"size_bytes"`
	AspectRatio    string     `json:"aspect_ratio,omitempty"`
	Status         Status     `json:"status"`
	Caption        *string    `json:"caption,omitempty"`
	ScheduledTime  *time.Time `json:"scheduled_time,omitempty"`
	PublishedLink  *string    `json:"published_link,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DiscoveredFile is one entry returned by the drive collaborator. ExternalID
// is the stable identifier assigned by the drive source and is the dedup key
// for ingestion.
type DiscoveredFile struct {
	ExternalID  string `json:"external_id"`
	FileName    string `json:"file_name"`
	Kind        string `json:"kind"`
	SizeBytes   int64  `json:"size_bytes"`
	AspectRatio string `json:"aspect_ratio"`
}
