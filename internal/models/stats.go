package models

// Stats is the dashboard aggregate view, recomputed from the media table on
// every query rather than maintained as running counters.
type Stats struct {
	TotalMedia     int         `json:"total_media"`
	Pending        int         `json:"pending"`
	PublishedToday int         `json:"published_today"`
	Failed         int         `json:"failed"`
	RecentActivity []MediaFile `json:"recent_activity"`
}
