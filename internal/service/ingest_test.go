package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivecast/drivecast/internal/models"
	"github.com/drivecast/drivecast/internal/store"
	"github.com/drivecast/drivecast/internal/testsupport"
)

// fakeLister returns a canned listing or a canned error.
type fakeLister struct {
	files []models.DiscoveredFile
	err   error
	calls int
}

func (f *fakeLister) DiscoverFiles(_ context.Context, _ string) ([]models.DiscoveredFile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.files, nil
}

func threeFiles() []models.DiscoveredFile {
	return []models.DiscoveredFile{
		{ExternalID: "drive_1", FileName: "a.jpg", Kind: models.KindImage, SizeBytes: 100, AspectRatio: "9:16"},
		{ExternalID: "drive_2", FileName: "b.mp4", Kind: models.KindVideo, SizeBytes: 2000, AspectRatio: "9:16"},
		{ExternalID: "drive_3", FileName: "c.jpg", Kind: models.KindImage, SizeBytes: 300, AspectRatio: "1:1"},
	}
}

func newTestChannel(t *testing.T, s *testsupport.Store) *models.Channel {
	t.Helper()
	ch := &models.Channel{
		Name:          "main",
		ProfileID:     "profile-1",
		Status:        models.ChannelConnected,
		DriveFolderID: "folder-1",
		DailyLimit:    models.DefaultDailyLimit,
	}
	_, err := s.CreateChannel(context.Background(), ch)
	require.NoError(t, err)
	return ch
}

func TestScanCreatesOneRecordPerUnseenFile(t *testing.T) {
	s := testsupport.NewStore()
	ch := newTestChannel(t, s)
	ing := NewIngest(s, &fakeLister{files: threeFiles()}, time.Second)

	newCount, err := ing.Scan(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, newCount)

	stats, err := s.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalMedia)
	assert.Equal(t, 3, stats.Pending)
}

func TestScanIsIdempotent(t *testing.T) {
	s := testsupport.NewStore()
	ch := newTestChannel(t, s)
	ing := NewIngest(s, &fakeLister{files: threeFiles()}, time.Second)

	first, err := ing.Scan(context.Background(), ch.ID)
	require.NoError(t, err)
	require.Equal(t, 3, first)

	second, err := ing.Scan(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second, "re-scan of an unchanged listing creates nothing")

	stats, err := s.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalMedia, "no duplicate rows")
}

func TestScanWritesOneSuccessLogPerBatch(t *testing.T) {
	s := testsupport.NewStore()
	ch := newTestChannel(t, s)
	ing := NewIngest(s, &fakeLister{files: nil}, time.Second)

	newCount, err := ing.Scan(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, newCount)

	logs := s.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, ActionDriveScan, logs[0].Action)
	// Scanning is the success condition, not discovery count.
	assert.Equal(t, models.LogSuccess, logs[0].Status)
	assert.Equal(t, models.SystemFile, logs[0].FileName)
	assert.Nil(t, logs[0].ErrorMessage)
}

func TestScanDriveFailureLogsAndPropagates(t *testing.T) {
	s := testsupport.NewStore()
	ch := newTestChannel(t, s)
	ing := NewIngest(s, &fakeLister{err: errors.New("drive: token expired")}, time.Second)

	_, err := ing.Scan(context.Background(), ch.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIngestionFailed)

	logs := s.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogFailure, logs[0].Status)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Contains(t, *logs[0].ErrorMessage, "token expired")
}

func TestScanUnknownChannel(t *testing.T) {
	s := testsupport.NewStore()
	ing := NewIngest(s, &fakeLister{files: threeFiles()}, time.Second)

	_, err := ing.Scan(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, s.Logs(), "nothing to audit before the channel check")
}
