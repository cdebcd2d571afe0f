package drive

import (
	"context"

	"github.com/drivecast/drivecast/internal/models"
)

// Fixed returns the same small listing for every folder. It is selected when
// no drive API is configured, so the rest of the pipeline can be exercised
// end to end without drive credentials.
type Fixed struct{}

// DiscoverFiles returns a deterministic three-file listing scoped to folderID.
func (Fixed) DiscoverFiles(_ context.Context, folderID string) ([]models.DiscoveredFile, error) {
	prefix := folderID
	if prefix == "" {
		prefix = "drive"
	}
	return []models.DiscoveredFile{
		{ExternalID: prefix + "_1", FileName: "clip_morning.jpg", Kind: models.KindImage, SizeBytes: 812_340, AspectRatio: "9:16"},
		{ExternalID: prefix + "_2", FileName: "clip_evening.mp4", Kind: models.KindVideo, SizeBytes: 10_485_760, AspectRatio: "9:16"},
		{ExternalID: prefix + "_3", FileName: "cover_art.jpg", Kind: models.KindImage, SizeBytes: 402_133, AspectRatio: "1:1"},
	}, nil
}

// String identifies the stub in startup logs.
func (Fixed) String() string { return "fixed drive listing (3 files)" }
