package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/drivecast/drivecast/internal/drive"
	"github.com/drivecast/drivecast/internal/models"
	"github.com/drivecast/drivecast/internal/store"
)

// ActionDriveScan is the audit action name for a batch scan.
const ActionDriveScan = "Drive Scan"

// Ingest pulls discovered files from the drive collaborator and dedups them
// into the media store. Re-scanning an unchanged folder is a no-op because
// external_file_id carries the uniqueness constraint, so Scan is safe to call
// on a timer or on demand.
type Ingest struct {
	store   store.Store
	drive   drive.Lister
	timeout time.Duration
}

// NewIngest creates an ingestion service. timeout bounds the drive call.
func NewIngest(s store.Store, d drive.Lister, timeout time.Duration) *Ingest {
	return &Ingest{store: s, drive: d, timeout: timeout}
}

// Scan lists the channel's drive folder, inserts every previously-unseen file
// as a pending media row, and returns how many rows were genuinely new.
// Exactly one audit entry is written per batch: Success even when nothing new
// was found (scanning is the success condition, not discovery count), Failure
// with the error detail when the drive call or a store write fails. Rows
// inserted before a failure point stay committed.
func (g *Ingest) Scan(ctx context.Context, channelID int64) (int, error) {
	ch, err := g.store.GetChannelByID(ctx, channelID)
	if err != nil {
		return 0, err
	}

	dctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	files, err := g.drive.DiscoverFiles(dctx, ch.DriveFolderID)
	if err != nil {
		g.logFailure(ctx, models.SystemFile, err)
		return 0, fmt.Errorf("%w: discover files for channel %q: %v", ErrIngestionFailed, ch.Name, err)
	}

	newCount := 0
	for i := range files {
		// Cancellation check between iterations so a shutdown mid-batch
		// stops cleanly; committed rows are kept.
		if err := ctx.Err(); err != nil {
			g.logFailure(ctx, models.SystemFile, err)
			return newCount, fmt.Errorf("%w: scan cancelled: %v", ErrIngestionFailed, err)
		}
		created, err := g.store.InsertDiscovered(ctx, ch.ID, files[i])
		if err != nil {
			g.logFailure(ctx, files[i].FileName, err)
			return newCount, fmt.Errorf("%w: insert %q: %v", ErrIngestionFailed, files[i].ExternalID, err)
		}
		if created {
			newCount++
		}
	}

	g.appendLog(ctx, &models.LogEntry{
		FileName: models.SystemFile,
		Action:   ActionDriveScan,
		Status:   models.LogSuccess,
	})
	return newCount, nil
}

func (g *Ingest) logFailure(ctx context.Context, fileName string, cause error) {
	msg := cause.Error()
	g.appendLog(ctx, &models.LogEntry{
		FileName:     fileName,
		Action:       ActionDriveScan,
		Status:       models.LogFailure,
		ErrorMessage: &msg,
	})
}

func (g *Ingest) appendLog(ctx context.Context, e *models.LogEntry) {
	if err := g.store.AppendLog(ctx, e); err != nil {
		log.Printf("ingest: append log: %v", err)
	}
}
