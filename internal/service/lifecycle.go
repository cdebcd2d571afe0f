package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/drivecast/drivecast/internal/models"
	"github.com/drivecast/drivecast/internal/publisher"
	"github.com/drivecast/drivecast/internal/store"
)

// Audit action names for lifecycle operations.
const (
	ActionPublish      = "Publish"
	ActionStatusUpdate = "Status Update"
	ActionRetry        = "Retry"
)

// Lifecycle applies validated status, caption, and schedule updates to single
// media records and drives the external publish side effect.
type Lifecycle struct {
	store   store.Store
	pub     publisher.Publisher
	timeout time.Duration
}

// NewLifecycle creates a lifecycle service. timeout bounds the publish call.
func NewLifecycle(s store.Store, p publisher.Publisher, timeout time.Duration) *Lifecycle {
	return &Lifecycle{store: s, pub: p, timeout: timeout}
}

// Update applies caption, schedule, and status changes as one patch. All
// validation runs before any write, so a rejected patch mutates nothing:
// a scheduled time in the past fails with ErrValidation, a status outside
// the transition table with ErrInvalidTransition, and entering uploading
// from pending counts against the channel's daily limit like a publish.
func (l *Lifecycle) Update(ctx context.Context, mediaID int64, caption *string, scheduledTime *time.Time, status *models.Status) (*models.MediaFile, error) {
	rec, err := l.store.GetMedia(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if scheduledTime != nil && scheduledTime.Before(time.Now()) {
		return nil, fmt.Errorf("%w: scheduled_time %s is in the past", ErrValidation, scheduledTime.Format(time.RFC3339))
	}
	statusChanged := false
	if status != nil {
		if *status == models.StatusPublished {
			return nil, fmt.Errorf("%w: publishing must go through the publish operation", ErrValidation)
		}
		if !models.CanTransition(rec.Status, *status) {
			err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, *status)
			l.logFailure(ctx, rec.FileName, ActionStatusUpdate, err)
			return nil, err
		}
		if rec.Status == models.StatusPending && *status == models.StatusUploading {
			// Entering the claim state occupies a publish slot; go through the
			// same guarded claim as PublishNow so the limit holds.
			if err := l.claim(ctx, rec, ActionStatusUpdate); err != nil {
				return nil, err
			}
			status = nil // the claim already wrote it
		}
		statusChanged = true
	}

	if caption != nil || scheduledTime != nil || status != nil {
		err := l.store.UpdateMedia(ctx, mediaID, store.MediaUpdate{
			Caption:       caption,
			ScheduledTime: scheduledTime,
			Status:        status,
		})
		if err != nil {
			return nil, err
		}
	}
	if statusChanged {
		l.appendLog(ctx, &models.LogEntry{
			FileName: rec.FileName,
			Action:   ActionStatusUpdate,
			Status:   models.LogSuccess,
		})
	}
	return l.store.GetMedia(ctx, mediaID)
}

// SetSchedule updates caption and/or scheduled time without touching status.
func (l *Lifecycle) SetSchedule(ctx context.Context, mediaID int64, caption *string, scheduledTime *time.Time) (*models.MediaFile, error) {
	return l.Update(ctx, mediaID, caption, scheduledTime, nil)
}

// UpdateStatus applies a direct status write, honoring the transition table.
// Published is refused because reaching it must run the external publish side
// effect; use PublishNow.
func (l *Lifecycle) UpdateStatus(ctx context.Context, mediaID int64, to models.Status) (*models.MediaFile, error) {
	return l.Update(ctx, mediaID, nil, nil, &to)
}

// claim moves rec from pending to uploading through the store's guarded
// claim, translating the outcome into the error taxonomy and logging the
// failure paths under the given audit action.
func (l *Lifecycle) claim(ctx context.Context, rec *models.MediaFile, action string) error {
	ch, err := l.store.GetChannelByID(ctx, rec.ChannelID)
	if err != nil {
		return fmt.Errorf("load channel %d: %w", rec.ChannelID, err)
	}
	outcome, err := l.store.ClaimForPublish(ctx, rec.ID, ch.ID, ch.DailyLimit)
	if err != nil {
		return err
	}
	switch outcome {
	case store.ClaimGranted:
		return nil
	case store.ClaimQuotaExceeded:
		err := fmt.Errorf("%w: channel %q is at its daily limit of %d", ErrQuotaExceeded, ch.Name, ch.DailyLimit)
		l.logFailure(ctx, rec.FileName, action, err)
		return err
	default:
		// Lost a concurrent claim, or the row moved since the read above.
		err := fmt.Errorf("%w: media %d is no longer pending", ErrInvalidTransition, rec.ID)
		l.logFailure(ctx, rec.FileName, action, err)
		return err
	}
}

// PublishNow publishes a single media record. The pending row is claimed with
// a guarded single-row update that also counts the claim against the
// channel's daily limit, so exactly one of any concurrent callers proceeds
// and a full channel rejects with ErrQuotaExceeded before any claim is made.
// A failed external call moves the record to failed (not back to its prior
// state) and always leaves a Failure audit entry.
func (l *Lifecycle) PublishNow(ctx context.Context, mediaID int64) (*models.MediaFile, error) {
	rec, err := l.store.GetMedia(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(rec.Status, models.StatusPublished) {
		err := fmt.Errorf("%w: cannot publish from %q", ErrInvalidTransition, rec.Status)
		l.logFailure(ctx, rec.FileName, ActionPublish, err)
		return nil, err
	}
	if err := l.claim(ctx, rec, ActionPublish); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	link, err := l.pub.PublishMedia(pctx, rec)
	if err != nil {
		if ferr := l.store.MarkFailed(ctx, mediaID); ferr != nil {
			log.Printf("lifecycle: mark failed %d: %v", mediaID, ferr)
		}
		l.logFailure(ctx, rec.FileName, ActionPublish, err)
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	ok, err := l.store.MarkPublished(ctx, mediaID, link)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The claim is ours, so the row should still be uploading.
		err := fmt.Errorf("%w: media %d left uploading before completion", ErrInvalidTransition, mediaID)
		l.logFailure(ctx, rec.FileName, ActionPublish, err)
		return nil, err
	}

	l.appendLog(ctx, &models.LogEntry{
		FileName: rec.FileName,
		Action:   ActionPublish,
		Status:   models.LogSuccess,
	})
	return l.store.GetMedia(ctx, mediaID)
}

// Retry moves a failed record back to pending so an operator can re-attempt
// the publish. Any other starting status fails with ErrInvalidTransition.
func (l *Lifecycle) Retry(ctx context.Context, mediaID int64) (*models.MediaFile, error) {
	rec, err := l.store.GetMedia(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	ok, err := l.store.ResetToPending(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: retry requires status %q, media %d is %q",
			ErrInvalidTransition, models.StatusFailed, mediaID, rec.Status)
	}
	l.appendLog(ctx, &models.LogEntry{
		FileName: rec.FileName,
		Action:   ActionRetry,
		Status:   models.LogSuccess,
	})
	return l.store.GetMedia(ctx, mediaID)
}

// PublishDue publishes pending records whose scheduled time has arrived and
// returns how many went out. Once a channel trips its daily limit the rest
// of its due items are left for a later run, so a full channel produces one
// quota rejection per run instead of one per item.
func (l *Lifecycle) PublishDue(ctx context.Context, now time.Time) (int, error) {
	due, err := l.store.ListDuePublishes(ctx, now)
	if err != nil {
		return 0, err
	}
	published := 0
	atLimit := make(map[int64]bool)
	for _, m := range due {
		if atLimit[m.ChannelID] {
			continue
		}
		if _, err := l.PublishNow(ctx, m.ID); err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				atLimit[m.ChannelID] = true
			}
			log.Printf("lifecycle: publish due %d (%s): %v", m.ID, m.FileName, err)
			continue
		}
		published++
	}
	return published, nil
}

func (l *Lifecycle) logFailure(ctx context.Context, fileName, action string, cause error) {
	msg := cause.Error()
	l.appendLog(ctx, &models.LogEntry{
		FileName:     fileName,
		Action:       action,
		Status:       models.LogFailure,
		ErrorMessage: &msg,
	})
}

func (l *Lifecycle) appendLog(ctx context.Context, e *models.LogEntry) {
	if err := l.store.AppendLog(ctx, e); err != nil {
		log.Printf("lifecycle: append log: %v", err)
	}
}
