package publisher

import (
	"context"

	"github.com/drivecast/drivecast/internal/models"
)

// Fixed mints a deterministic link instead of calling a real publishing API.
// Selected when no publish API is configured.
type Fixed struct{}

// PublishMedia returns a stable link derived from the external file id.
func (Fixed) PublishMedia(_ context.Context, m *models.MediaFile) (string, error) {
	return "https://social.example/p/" + m.ExternalFileID, nil
}

// String identifies the stub in startup logs.
func (Fixed) String() string { return "fixed publisher (no external API)" }
