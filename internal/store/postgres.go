package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drivecast/drivecast/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// --- channels ---

// CreateChannel inserts a channel and returns its id.
func (p *Postgres) CreateChannel(ctx context.Context, ch *models.Channel) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO channels (name, profile_id, avatar, status, drive_folder_id, daily_limit)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		ch.Name, ch.ProfileID, ch.Avatar, ch.Status, ch.DriveFolderID, ch.DailyLimit,
	).Scan(&id, &ch.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("CreateChannel: %w", err)
	}
	ch.ID = id
	return id, nil
}

const channelColumns = `id, name, profile_id, avatar, status, drive_folder_id, daily_limit, created_at`

func scanChannel(row pgx.Row) (*models.Channel, error) {
	var ch models.Channel
	err := row.Scan(&ch.ID, &ch.Name, &ch.ProfileID, &ch.Avatar, &ch.Status,
		&ch.DriveFolderID, &ch.DailyLimit, &ch.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListChannels returns all channels, newest first.
func (p *Postgres) ListChannels(ctx context.Context) ([]models.Channel, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("ListChannels scan: %w", err)
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// GetChannelByID returns a single channel by id.
func (p *Postgres) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	ch, err := scanChannel(p.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, channelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelByID: %w", err)
	}
	return ch, nil
}

// --- media ---

// InsertDiscovered inserts a media row unless the external_file_id exists.
// The unique constraint makes a repeat scan a no-op, so ingestion is
// idempotent and concurrent scans of the same folder cannot conflict.
func (p *Postgres) InsertDiscovered(ctx context.Context, channelID int64, f models.DiscoveredFile) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO media (external_file_id, channel_id, file_name, kind, size_bytes, aspect_ratio, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (external_file_id) DO NOTHING`,
		f.ExternalID, channelID, f.FileName, f.Kind, f.SizeBytes, f.AspectRatio, models.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("InsertDiscovered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const mediaColumns = `id, external_file_id, channel_id, file_name, kind, size_bytes,
	aspect_ratio, status, caption, scheduled_time, published_link, published_at, created_at`

func scanMedia(row pgx.Row) (*models.MediaFile, error) {
	var m models.MediaFile
	err := row.Scan(&m.ID, &m.ExternalFileID, &m.ChannelID, &m.FileName, &m.Kind,
		&m.SizeBytes, &m.AspectRatio, &m.Status, &m.Caption, &m.ScheduledTime,
		&m.PublishedLink, &m.PublishedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMedia returns a single media file by id.
func (p *Postgres) GetMedia(ctx context.Context, mediaID int64) (*models.MediaFile, error) {
	m, err := scanMedia(p.pool.QueryRow(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE id = $1`, mediaID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetMedia: %w", err)
	}
	return m, nil
}

// ListMedia returns media matching the filter, newest first, plus the total
// count before limit/offset.
func (p *Postgres) ListMedia(ctx context.Context, filter MediaFilter) ([]models.MediaFile, int, error) {
	var conds []string
	var args []any
	if filter.ChannelID != nil {
		args = append(args, *filter.ChannelID)
		conds = append(conds, fmt.Sprintf("channel_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit, filter.Offset)

	query := `SELECT ` + mediaColumns + `, COUNT(*) OVER() AS total FROM media` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListMedia: %w", err)
	}
	defer rows.Close()

	var media []models.MediaFile
	total := 0
	for rows.Next() {
		var m models.MediaFile
		err := rows.Scan(&m.ID, &m.ExternalFileID, &m.ChannelID, &m.FileName, &m.Kind,
			&m.SizeBytes, &m.AspectRatio, &m.Status, &m.Caption, &m.ScheduledTime,
			&m.PublishedLink, &m.PublishedAt, &m.CreatedAt, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("ListMedia scan: %w", err)
		}
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if total == 0 && filter.Offset > 0 {
		// Offset past the end returns no rows; re-count so total stays accurate.
		countQuery := `SELECT COUNT(*) FROM media` + where
		if err := p.pool.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("ListMedia count: %w", err)
		}
	}
	return media, total, nil
}

// UpdateMedia applies only the non-nil fields of the update.
func (p *Postgres) UpdateMedia(ctx context.Context, mediaID int64, fields MediaUpdate) error {
	var sets []string
	var args []any
	if fields.Caption != nil {
		args = append(args, *fields.Caption)
		sets = append(sets, fmt.Sprintf("caption = $%d", len(args)))
	}
	if fields.ScheduledTime != nil {
		args = append(args, *fields.ScheduledTime)
		sets = append(sets, fmt.Sprintf("scheduled_time = $%d", len(args)))
	}
	if fields.Status != nil {
		args = append(args, *fields.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(sets) == 0 {
		// Nothing to change; still report NotFound for a bad id.
		_, err := p.GetMedia(ctx, mediaID)
		return err
	}
	args = append(args, mediaID)
	query := fmt.Sprintf(`UPDATE media SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("UpdateMedia: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimForPublish wins the publish race inside one transaction. The channel
// row is locked first, so concurrent claims for the same channel serialize
// and the quota count cannot be read stale: in-flight uploads occupy a slot
// until they finish (published keeps it for the day, failed frees it).
func (p *Postgres) ClaimForPublish(ctx context.Context, mediaID, channelID int64, dailyLimit int) (ClaimOutcome, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return ClaimNotPending, fmt.Errorf("ClaimForPublish begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM channels WHERE id = $1 FOR UPDATE`, channelID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClaimNotPending, ErrNotFound
	}
	if err != nil {
		return ClaimNotPending, fmt.Errorf("ClaimForPublish lock: %w", err)
	}

	var used int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM media
		 WHERE channel_id = $1
		   AND (status = $2 OR (status = $3 AND published_at::date = CURRENT_DATE))`,
		channelID, models.StatusUploading, models.StatusPublished).Scan(&used)
	if err != nil {
		return ClaimNotPending, fmt.Errorf("ClaimForPublish count: %w", err)
	}
	if used >= dailyLimit {
		return ClaimQuotaExceeded, nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE media SET status = $2 WHERE id = $1 AND status = $3`,
		mediaID, models.StatusUploading, models.StatusPending)
	if err != nil {
		return ClaimNotPending, fmt.Errorf("ClaimForPublish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ClaimNotPending, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return ClaimNotPending, fmt.Errorf("ClaimForPublish commit: %w", err)
	}
	return ClaimGranted, nil
}

// MarkPublished completes a claimed publish.
func (p *Postgres) MarkPublished(ctx context.Context, mediaID int64, link string) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE media SET status = $2, published_link = $3, published_at = NOW()
		 WHERE id = $1 AND status = $4`,
		mediaID, models.StatusPublished, link, models.StatusUploading)
	if err != nil {
		return false, fmt.Errorf("MarkPublished: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed moves a media row to failed and clears any published link.
func (p *Postgres) MarkFailed(ctx context.Context, mediaID int64) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE media SET status = $2, published_link = NULL, published_at = NULL WHERE id = $1`,
		mediaID, models.StatusFailed)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetToPending moves a failed media row back to pending.
func (p *Postgres) ResetToPending(ctx context.Context, mediaID int64) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE media SET status = $2, published_link = NULL, published_at = NULL
		 WHERE id = $1 AND status = $3`,
		mediaID, models.StatusPending, models.StatusFailed)
	if err != nil {
		return false, fmt.Errorf("ResetToPending: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListDuePublishes returns pending media whose scheduled_time has arrived.
func (p *Postgres) ListDuePublishes(ctx context.Context, now time.Time) ([]models.MediaFile, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+mediaColumns+` FROM media
		 WHERE status = $1 AND scheduled_time IS NOT NULL AND scheduled_time <= $2
		 ORDER BY scheduled_time ASC, id ASC`,
		models.StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("ListDuePublishes: %w", err)
	}
	defer rows.Close()

	var media []models.MediaFile
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("ListDuePublishes scan: %w", err)
		}
		media = append(media, *m)
	}
	return media, rows.Err()
}

// --- logs ---

// AppendLog appends an audit entry. Timestamp and id come from the database
// so ordering is decided by a single writer.
func (p *Postgres) AppendLog(ctx context.Context, e *models.LogEntry) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO logs (file_name, action, status, error_message)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, timestamp`,
		e.FileName, e.Action, e.Status, e.ErrorMessage,
	).Scan(&e.ID, &e.Timestamp)
	if err != nil {
		return fmt.Errorf("AppendLog: %w", err)
	}
	return nil
}

// ListLogs returns the newest limit entries, newest first.
func (p *Postgres) ListLogs(ctx context.Context, limit int) ([]models.LogEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, timestamp, file_name, action, status, error_message
		 FROM logs ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListLogs: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.FileName, &e.Action, &e.Status, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("ListLogs scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- stats ---

// GetStats recomputes the dashboard aggregates in two passes: one filtered
// count query and one fetch of the five most recent files.
func (p *Postgres) GetStats(ctx context.Context) (*models.Stats, error) {
	var s models.Stats
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $1),
		        COUNT(*) FILTER (WHERE status = $2 AND created_at::date = CURRENT_DATE),
		        COUNT(*) FILTER (WHERE status = $3)
		 FROM media`,
		models.StatusPending, models.StatusPublished, models.StatusFailed,
	).Scan(&s.TotalMedia, &s.Pending, &s.PublishedToday, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("GetStats: %w", err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+mediaColumns+` FROM media ORDER BY created_at DESC, id DESC LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("GetStats recent: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("GetStats scan: %w", err)
		}
		s.RecentActivity = append(s.RecentActivity, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- settings ---

// GetSetting returns the value for key, or ErrNotFound.
func (p *Postgres) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("GetSetting: %w", err)
	}
	return value, nil
}

// SetSetting inserts or replaces the value for key.
func (p *Postgres) SetSetting(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("SetSetting: %w", err)
	}
	return nil
}
