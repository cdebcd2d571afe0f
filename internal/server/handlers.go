package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/drivecast/drivecast/internal/cache"
	"github.com/drivecast/drivecast/internal/models"
	"github.com/drivecast/drivecast/internal/service"
	"github.com/drivecast/drivecast/internal/store"
)

// writeServiceErr maps the core error taxonomy onto HTTP statuses.
func writeServiceErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrValidation):
		writeErr(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrInvalidTransition):
		writeErr(w, http.StatusConflict, err)
	case errors.Is(err, service.ErrQuotaExceeded):
		writeErr(w, http.StatusTooManyRequests, err)
	case errors.Is(err, service.ErrIngestionFailed), errors.Is(err, service.ErrPublishFailed):
		writeErr(w, http.StatusBadGateway, err)
	default:
		writeErr(w, http.StatusInternalServerError, err)
	}
}

// --- channel handlers ---

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.ListChannels(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

type createChannelRequest struct {
	Name          string  `json:"name"`
	ProfileID     string  `json:"profile_id"`
	Avatar        *string `json:"avatar"`
	DriveFolderID string  `json:"drive_folder_id"`
	DailyLimit    *int    `json:"daily_limit"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Name == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}
	if req.ProfileID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("profile_id is required"))
		return
	}
	if req.DriveFolderID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("drive_folder_id is required"))
		return
	}
	limit := models.DefaultDailyLimit
	if req.DailyLimit != nil {
		if *req.DailyLimit <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("daily_limit must be positive"))
			return
		}
		limit = *req.DailyLimit
	}

	ch := models.Channel{
		Name:          req.Name,
		ProfileID:     req.ProfileID,
		Avatar:        req.Avatar,
		Status:        models.ChannelConnected,
		DriveFolderID: req.DriveFolderID,
		DailyLimit:    limit,
	}
	if _, err := s.store.CreateChannel(r.Context(), &ch); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	ch, err := s.store.GetChannelByID(r.Context(), channelID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleScanChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	// Async mode hands the scan to the queue worker; needs Redis.
	if r.URL.Query().Get("async") == "true" {
		if s.rds == nil {
			writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("async scans need Redis (REDIS_URL not set)"))
			return
		}
		ch, err := s.store.GetChannelByID(r.Context(), channelID)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		job := cache.ScanJob{ChannelID: ch.ID, ChannelName: ch.Name}
		if err := cache.Enqueue(r.Context(), s.rds, cache.ScanQueue, job); err != nil {
			writeErr(w, http.StatusInternalServerError, fmt.Errorf("enqueue scan: %w", err))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"channel_id": ch.ID,
			"queued":     true,
		})
		return
	}

	newCount, err := s.ingest.Scan(r.Context(), channelID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id": channelID,
		"new_files":  newCount,
		"scanned":    true,
	})
}

// --- media handlers ---

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter store.MediaFilter
	if v := q.Get("status"); v != "" {
		st, err := models.ParseStatus(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		filter.Status = &st
	}
	if v := q.Get("channel_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid channel_id: %s", v))
			return
		}
		filter.ChannelID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", v))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid offset: %s", v))
			return
		}
		filter.Offset = n
	}

	// Apply defaults so the response reflects actual values used.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	media, total, err := s.store.ListMedia(r.Context(), filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if media == nil {
		media = []models.MediaFile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"media":  media,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	m, err := s.store.GetMedia(r.Context(), mediaID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type updateMediaRequest struct {
	Caption       *string    `json:"caption"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	Status        *string    `json:"status"`
}

// handleUpdateMedia applies a patch through a single lifecycle call, which
// validates every field before writing any, so a rejected patch is
// all-or-nothing and a direct status write cannot bypass the transition table.
func (s *Server) handleUpdateMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var req updateMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Caption == nil && req.ScheduledTime == nil && req.Status == nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("nothing to update"))
		return
	}

	var status *models.Status
	if req.Status != nil {
		st, perr := models.ParseStatus(*req.Status)
		if perr != nil {
			writeErr(w, http.StatusBadRequest, perr)
			return
		}
		status = &st
	}

	m, err := s.lifecycle.Update(r.Context(), mediaID, req.Caption, req.ScheduledTime, status)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePublishMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	m, err := s.lifecycle.PublishNow(r.Context(), mediaID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleRetryMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	m, err := s.lifecycle.Retry(r.Context(), mediaID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// --- log & stats handlers ---

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", v))
			return
		}
		limit = n
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	entries, err := s.store.ListLogs(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  entries,
		"limit": limit,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Snapshot(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if stats.RecentActivity == nil {
		stats.RecentActivity = []models.MediaFile{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- settings handlers ---

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, err := s.store.GetSetting(r.Context(), key)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

type putSettingRequest struct {
	Value string `json:"value"`
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req putSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if err := s.store.SetSetting(r.Context(), key, req.Value); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}
