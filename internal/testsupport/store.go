// Package testsupport provides an in-memory store.Store for service and
// server tests. Conditional updates are atomic under a single mutex, so the
// publish-claim race behaves like the database's single-row updates.
package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/drivecast/drivecast/internal/models"
	"github.com/drivecast/drivecast/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu       sync.Mutex
	channels map[int64]*models.Channel
	media    map[int64]*models.MediaFile
	byExtID  map[string]int64
	logs     []models.LogEntry
	settings map[string]string
	nextID   int64

	// Now lets tests pin the clock; defaults to time.Now.
	Now func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		channels: make(map[int64]*models.Channel),
		media:    make(map[int64]*models.MediaFile),
		byExtID:  make(map[string]int64),
		settings: make(map[string]string),
		Now:      time.Now,
	}
}

func (s *Store) nextSerial() int64 {
	s.nextID++
	return s.nextID
}

// --- channels ---

func (s *Store) CreateChannel(_ context.Context, ch *models.Channel) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch.ID = s.nextSerial()
	ch.CreatedAt = s.Now()
	cp := *ch
	s.channels[ch.ID] = &cp
	return ch.ID, nil
}

func (s *Store) ListChannels(_ context.Context) ([]models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Channel
	for _, ch := range s.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) GetChannelByID(_ context.Context, channelID int64) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

// --- media ---

func (s *Store) InsertDiscovered(_ context.Context, channelID int64, f models.DiscoveredFile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.byExtID[f.ExternalID]; seen {
		return false, nil
	}
	m := &models.MediaFile{
		ID:             s.nextSerial(),
		ExternalFileID: f.ExternalID,
		ChannelID:      channelID,
		FileName:       f.FileName,
		Kind:           f.Kind,
		SizeBytes:      f.SizeBytes,
		AspectRatio:    f.AspectRatio,
		Status:         models.StatusPending,
		CreatedAt:      s.Now(),
	}
	s.media[m.ID] = m
	s.byExtID[f.ExternalID] = m.ID
	return true, nil
}

func (s *Store) GetMedia(_ context.Context, mediaID int64) (*models.MediaFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[mediaID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMedia(_ context.Context, filter store.MediaFilter) ([]models.MediaFile, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.MediaFile
	for _, m := range s.media {
		if filter.ChannelID != nil && m.ChannelID != *filter.ChannelID {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		all = append(all, *m)
	}
	sortMedia(all)
	total := len(all)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if filter.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[filter.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func sortMedia(ms []models.MediaFile) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.After(ms[j].CreatedAt)
		}
		return ms[i].ID > ms[j].ID
	})
}

func (s *Store) UpdateMedia(_ context.Context, mediaID int64, fields store.MediaUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[mediaID]
	if !ok {
		return store.ErrNotFound
	}
	if fields.Caption != nil {
		v := *fields.Caption
		m.Caption = &v
	}
	if fields.ScheduledTime != nil {
		v := *fields.ScheduledTime
		m.ScheduledTime = &v
	}
	if fields.Status != nil {
		m.Status = *fields.Status
	}
	return nil
}

func (s *Store) ClaimForPublish(_ context.Context, mediaID, channelID int64, dailyLimit int) (store.ClaimOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := s.Now()
	used := 0
	for _, m := range s.media {
		if m.ChannelID != channelID {
			continue
		}
		switch {
		case m.Status == models.StatusUploading:
			used++
		case m.Status == models.StatusPublished && m.PublishedAt != nil && sameDay(*m.PublishedAt, today):
			used++
		}
	}
	if used >= dailyLimit {
		return store.ClaimQuotaExceeded, nil
	}
	m, ok := s.media[mediaID]
	if !ok || m.Status != models.StatusPending {
		return store.ClaimNotPending, nil
	}
	m.Status = models.StatusUploading
	return store.ClaimGranted, nil
}

func (s *Store) MarkPublished(_ context.Context, mediaID int64, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[mediaID]
	if !ok || m.Status != models.StatusUploading {
		return false, nil
	}
	now := s.Now()
	m.Status = models.StatusPublished
	m.PublishedLink = &link
	m.PublishedAt = &now
	return true, nil
}

func (s *Store) MarkFailed(_ context.Context, mediaID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[mediaID]
	if !ok {
		return store.ErrNotFound
	}
	m.Status = models.StatusFailed
	m.PublishedLink = nil
	m.PublishedAt = nil
	return nil
}

func (s *Store) ResetToPending(_ context.Context, mediaID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[mediaID]
	if !ok || m.Status != models.StatusFailed {
		return false, nil
	}
	m.Status = models.StatusPending
	m.PublishedLink = nil
	m.PublishedAt = nil
	return true, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (s *Store) ListDuePublishes(_ context.Context, now time.Time) ([]models.MediaFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.MediaFile
	for _, m := range s.media {
		if m.Status == models.StatusPending && m.ScheduledTime != nil && !m.ScheduledTime.After(now) {
			due = append(due, *m)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledTime.Equal(*due[j].ScheduledTime) {
			return due[i].ScheduledTime.Before(*due[j].ScheduledTime)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

// --- logs ---

func (s *Store) AppendLog(_ context.Context, e *models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextSerial()
	e.Timestamp = s.Now()
	s.logs = append(s.logs, *e)
	return nil
}

func (s *Store) ListLogs(_ context.Context, limit int) ([]models.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LogEntry, len(s.logs))
	copy(out, s.logs)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Logs returns every appended entry in insertion order, for assertions.
func (s *Store) Logs() []models.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// --- stats ---

func (s *Store) GetStats(_ context.Context) (*models.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats models.Stats
	today := s.Now()
	var all []models.MediaFile
	for _, m := range s.media {
		stats.TotalMedia++
		switch m.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusFailed:
			stats.Failed++
		case models.StatusPublished:
			if sameDay(m.CreatedAt, today) {
				stats.PublishedToday++
			}
		}
		all = append(all, *m)
	}
	sortMedia(all)
	if len(all) > 5 {
		all = all[:5]
	}
	stats.RecentActivity = all
	return &stats, nil
}

// --- settings ---

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}
