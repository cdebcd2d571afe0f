package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivecast/drivecast/internal/models"
	"github.com/drivecast/drivecast/internal/store"
	"github.com/drivecast/drivecast/internal/testsupport"
)

// fakePublisher returns a canned link or a canned error.
type fakePublisher struct {
	link  string
	err   error
	mu    sync.Mutex
	calls int
}

func (f *fakePublisher) PublishMedia(_ context.Context, m *models.MediaFile) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.link != "" {
		return f.link, nil
	}
	return "https://social.example/p/" + m.ExternalFileID, nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// seedPending ingests the fixed three files and returns the seeded channel.
func seedPending(t *testing.T, s *testsupport.Store) *models.Channel {
	t.Helper()
	ch := newTestChannel(t, s)
	ing := NewIngest(s, &fakeLister{files: threeFiles()}, time.Second)
	_, err := ing.Scan(context.Background(), ch.ID)
	require.NoError(t, err)
	return ch
}

func TestPublishNowSuccess(t *testing.T) {
	s := testsupport.NewStore()
	seedPending(t, s)
	lc := NewLifecycle(s, &fakePublisher{}, time.Second)

	m, err := lc.PublishNow(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, m.Status)
	require.NotNil(t, m.PublishedLink)
	assert.Equal(t, "https://social.example/p/drive_1", *m.PublishedLink)
	assert.NotNil(t, m.PublishedAt)

	logs := s.Logs()
	last := logs[len(logs)-1]
	assert.Equal(t, ActionPublish, last.Action)
	assert.Equal(t, models.LogSuccess, last.Status)
}

func TestPublishedLinkIffPublished(t *testing.T) {
	s := testsupport.NewStore()
	seedPending(t, s)
	lc := NewLifecycle(s, &fakePublisher{}, time.Second)

	_, err := lc.PublishNow(context.Background(), 2)
	require.NoError(t, err)

	media, _, err := s.ListMedia(context.Background(), store.MediaFilter{})
	require.NoError(t, err)
	for _, m := range media {
		if m.Status == models.StatusPublished {
			assert.NotNil(t, m.PublishedLink, "media %d", m.ID)
		} else {
			assert.Nil(t, m.PublishedLink, "media %d", m.ID)
		}
	}
}

func TestPublishNowRejectsTerminalStates(t *testing.T) {
	s := testsupport.NewStore()
	seedPending(t, s)
	pub := &fakePublisher{}
	lc := NewLifecycle(s, pub, time.Second)

	_, err := lc.PublishNow(context.Background(), 2)
	require.NoError(t, err)

	// Already published.
	before, err := s.GetMedia(context.Background(), 2)
	require.NoError(t, err)
	_, err = lc.PublishNow(context.Background(), 2)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	after, err := s.GetMedia(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, before, after, "rejected publish leaves the record unchanged")

	// Failed is terminal for publish too.
	require.NoError(t, s.MarkFailed(context.Background(), 3))
	_, err = lc.PublishNow(context.Background(), 3)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	got, err := s.GetMedia(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)

	assert.Equal(t, 1, pub.callCount(), "no external call for rejected publishes")
}

func TestPublishNowConcurrentSingleWinner(t *testing.T) {
	s := testsupport.NewStore()
	seedPending(t, s)
	pub := &fakePublisher{}
	lc := NewLifecycle(s, pub, time.Second)

	const callers = 2
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lc.PublishNow(context.Background(), 2)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes, rejections int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInvalidTransition):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one publish wins")
	assert.Equal(t, callers-1, rejections)
	assert.Equal(t, 1, pub.callCount(), "the loser never reaches the external API")

	m, err := s.GetMedia(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, m.Status)
}

func TestPublishNowQuotaExceeded(t *testing.T) {
	s := testsupport.NewStore()
	ch := &models.Channel{
		Name:          "limited",
		ProfileID:     "profile-q",
		Status:        models.ChannelConnected,
		DriveFolderID: "folder-q",
		DailyLimit:    1,
	}
	_, err := s.CreateChannel(context.Background(), ch)
	require.NoError(t, err)
	ing := NewIngest(s, &fakeLister{files: threeFiles()}, time.Second)
	_, err = ing.Scan(context.Background(), ch.ID)
	require.NoError(t, err)

	lc := NewLifecycle(s, &fakePublisher{}, time.Second)

	_, err = lc.PublishNow(context.Background(), 2)
	require.NoError(t, err)

	_, err = lc.PublishNow(context.Background(), 3)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	m, err := s.GetMedia(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, m.Status, "quota rejection keeps the record pending")

	logs := s.Logs()
	last := logs[len(logs)-1]
	assert.Equal(t, models.LogFailure, last.Status, "quota rejections are visible in the audit log")
}

func TestPublishNowConcurrentQuotaOneSlot(t *testing.T) {
	s := testsupport.NewStore()
	ch := &models.Channel{
		Name:          "one-slot",
		ProfileID:     "profile-c",
		Status:        models.ChannelConnected,
		DriveFolderID: "folder-c",
		DailyLimit:    1,
	}
	_, err := s.CreateChannel(context.Background(), ch)
	require.NoError(t, err)
	ing := NewIngest(s, &fakeLister{files: threeFiles()}, time.Second)
	_, err = ing.Scan(context.Background(), ch.ID)
	require.NoError(t, err)

	pub := &fakePublisher{}
	lc := NewLifecycle(s, pub, time.Second)

	// Two different pending records race for the channel's single slot.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []int64{2, 3} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lc.PublishNow(context.Background(), id)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes, quotaHits int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrQuotaExceeded):
			quotaHits++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "one slot admits exactly one publish")
	assert.Equal(t, 1, quotaHits)
	assert.Equal(t, 1, pub.callCount())

	published, pending := 0, 0
	media, _, err := s.ListMedia(context.Background(), store.MediaFilter{})
	require.NoError(t, err)
	for _, m := range media {
		switch m.Status {
		case models.StatusPublished:
			published++
		case models.StatusPending:
			pending++
		}
	}
	assert.Equal(t, 1, published)
	assert.Equal(t, 2, pending, "the loser stays pending")
}

func TestPublishNowExternalFailure(t *testing.T) {
	s := testsupport.NewStore()
	seedPending(t, s)
	lc := NewLifecycle(s, &fakePublisher{err: errors.New("upstream 503")}, time.Second)

	_, err := lc.PublishNow(context.Background(), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPublishFailed)

	m, err := s.GetMedia(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, m.Status)
	assert.Nil(t, m.PublishedLink)

	logs := s.Logs()
	last := logs[len(logs)-1]
	assert.Equal(t, ActionPublish, last.Action)
	assert.Equal(t, models.LogFailure, last.Status)
	require.NotNil(t, last.ErrorMessage)
	assert.NotEmpty(t, *last.ErrorMessage)
}

func TestSetSchedulePastTimeRejected(t *testing.T) {
	s := testsupport.NewStore()
	seedPending(t, s)
	lc := NewLifecycle(s, &fakePublisher{}, time.Second)

	before, err := s.GetMedia(context.Background(), 2)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	_, err = lc.SetSchedule(context.Background(), 2, nil, &past)
	assert.ErrorIs(t, err, ErrValidation)

	after, err := s.GetMedia(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed validation mutates nothing")
}

func TestSetScheduleFutureTime(t *testing.T) {
	s := testsupport.NewStore()
	seedPending(t, s)
	lc := NewLifecycle(s, &fakePublisher{}, time.Second)

	caption := "morning drop"
	future := time.Now().Add(2 * time.Hour)
	m, err := lc.SetSchedule(context.Background(), 2, &caption, &future)
	require.NoError(t, err)
	require.NotNil(t, m.Caption)
	assert.Equal(t, caption, *m.Caption)
	require.NotNil(t, m.ScheduledTime)
	assert.True(t, m.ScheduledTime.Equal(future))
	assert.Equal(t, models.StatusPending, m.Status, "schedule update never touches status")
}

func TestUpdateStatusHonorsTransitionTable(t *testing.T) {
	s := testsupport.NewStore()
	seedPending(t, s)
	lc := NewLifecycle(s, &fakePublisher{}, time.Second)

	m, err := lc.UpdateStatus(context.Background(), 2, models.StatusUploading)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, m.Status)

	// Uploading -> pending is not in the table.
	_, err = lc.UpdateStatus(context.Background(), 2, models.StatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Published can only be reached through PublishNow.
	_, err = lc.UpdateStatus(context.Background(), 3, models.StatusPublished)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStatusUploadingCountsAgainstQuota(t *testing.T) {
	s := testsupport.NewStore()
	ch := &models.Channel{
		Name:          "limited",
		ProfileID:     "profile-u",
		Status:        models.ChannelConnected,
		DriveFolderID: "folder-u",
		DailyLimit:    1,
	}
	_, err := s.CreateChannel(context.Background(), ch)
	require.NoError(t, err)
	ing := NewIngest(s, &fakeLister{files: threeFiles()}, time.Second)
	_, err = ing.Scan(context.Background(), ch.ID)
	require.NoError(t, err)

	lc := NewLifecycle(s, &fakePublisher{}, time.Second)

	_, err = lc.PublishNow(context.Background(), 2)
	require.NoError(t, err)

	// The direct pending -> uploading write occupies a publish slot, so a
	// full channel rejects it just like a publish.
	_, err = lc.UpdateStatus(context.Background(), 3, models.StatusUploading)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	m, err := s.GetMedia(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, m.Status)

	logs := s.Logs()
	last := logs[len(logs)-1]
	assert.Equal(t, ActionStatusUpdate, last.Action)
	assert.Equal(t, models.LogFailure, last.Status)
}

func TestPublishDueSkipsChannelAtLimit(t *testing.T) {
	s := testsupport.NewStore()
	ch := &models.Channel{
		Name:          "scheduled",
		ProfileID:     "profile-s",
		Status:        models.ChannelConnected,
		DriveFolderID: "folder-s",
		DailyLimit:    1,
	}
	_, err := s.CreateChannel(context.Background(), ch)
	require.NoError(t, err)
	ing := NewIngest(s, &fakeLister{files: threeFiles()}, time.Second)
	_, err = ing.Scan(context.Background(), ch.ID)
	require.NoError(t, err)

	// Backdate schedules through the store; the validation lives in the
	// lifecycle, which is why a due item can already be in the past.
	now := time.Now()
	for i, id := range []int64{2, 3, 4} {
		when := now.Add(time.Duration(i-10) * time.Minute)
		require.NoError(t, s.UpdateMedia(context.Background(), id, store.MediaUpdate{ScheduledTime: &when}))
	}

	pub := &fakePublisher{}
	lc := NewLifecycle(s, pub, time.Second)

	n, err := lc.PublishDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one slot, one publish")
	assert.Equal(t, 1, pub.callCount(), "remaining due items are skipped, not attempted")

	// One quota rejection is logged per run, not one per due item.
	failures := 0
	for _, e := range s.Logs() {
		if e.Status == models.LogFailure {
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	m, err := s.GetMedia(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, m.Status)
	assert.NotNil(t, m.ScheduledTime, "skipped items keep their schedule for the next run")

	// The next run trips the quota once more and publishes nothing new.
	n, err = lc.PublishDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, pub.callCount())
}

func TestRetryResetsFailedToPending(t *testing.T) {
	s := testsupport.NewStore()
	seedPending(t, s)
	lc := NewLifecycle(s, &fakePublisher{err: errors.New("boom")}, time.Second)

	_, err := lc.PublishNow(context.Background(), 2)
	require.ErrorIs(t, err, ErrPublishFailed)

	m, err := lc.Retry(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, m.Status)
	assert.Nil(t, m.PublishedLink)

	// Retry on a non-failed record is rejected.
	_, err = lc.Retry(context.Background(), 3)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
