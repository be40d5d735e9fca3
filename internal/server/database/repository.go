package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var (
	ErrSessionNotFound = errors.New("upload session not found")
)

const videoUploadColumns = `video_id, object_key, upload_id, total_size, mime_type, folder,
	   chunk_size, chunk_count, is_complete, url, duration, created_at, completed_at`

// Repository provides CRUD operations for video upload sessions.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new upload session record.
func (r *Repository) Create(ctx context.Context, v *VideoUpload) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO video_uploads (
			video_id, object_key, upload_id, total_size, mime_type, folder,
			chunk_size, chunk_count, is_complete, url, duration, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		v.VideoID,
		v.ObjectKey,
		v.UploadID,
		v.TotalSize,
		v.MimeType,
		v.Folder,
		v.ChunkSize,
		v.ChunkCount,
		v.IsComplete,
		v.URL,
		v.Duration,
		v.CreatedAt,
		v.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload session: %w", err)
	}
	return nil
}

// GetByVideoID retrieves an upload session by its video ID.
func (r *Repository) GetByVideoID(ctx context.Context, videoID string) (*VideoUpload, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+videoUploadColumns+` FROM video_uploads WHERE video_id = $1`, videoID)
	v, err := scanVideoUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}
	return v, nil
}

// MarkComplete flips a session to complete and records its public URL and
// completion time. Returns ErrSessionNotFound if no row matched.
func (r *Repository) MarkComplete(ctx context.Context, videoID, url string, completedAt time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE video_uploads
		SET is_complete = TRUE, url = $2, completed_at = $3
		WHERE video_id = $1
	`, videoID, url, completedAt)
	if err != nil {
		return fmt.Errorf("failed to mark session complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetDuration records the extracted playback duration for a session.
func (r *Repository) SetDuration(ctx context.Context, videoID string, seconds int) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE video_uploads SET duration = $2 WHERE video_id = $1", videoID, seconds)
	if err != nil {
		return fmt.Errorf("failed to set duration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes an upload session record by video ID.
func (r *Repository) Delete(ctx context.Context, videoID string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM video_uploads WHERE video_id = $1", videoID)
	if err != nil {
		return fmt.Errorf("failed to delete upload session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetStale returns incomplete sessions created before the cutoff, oldest
// first. These are candidates for janitor reclamation.
func (r *Repository) GetStale(ctx context.Context, cutoff time.Time) ([]*VideoUpload, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+videoUploadColumns+`
		FROM video_uploads
		WHERE NOT is_complete AND created_at < $1
		ORDER BY created_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*VideoUpload
	for rows.Next() {
		v, err := scanVideoUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale session: %w", err)
		}
		sessions = append(sessions, v)
	}
	return sessions, rows.Err()
}

// GetStats returns aggregate service statistics.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_complete),
			COALESCE(SUM(total_size) FILTER (WHERE is_complete), 0),
			COALESCE(SUM(duration) FILTER (WHERE is_complete), 0)
		FROM video_uploads
	`).Scan(
		&stats.TotalVideos,
		&stats.CompletedVideos,
		&stats.StoredBytes,
		&stats.TotalDuration,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func scanVideoUpload(row pgx.Row) (*VideoUpload, error) {
	v := &VideoUpload{}
	err := row.Scan(
		&v.VideoID,
		&v.ObjectKey,
		&v.UploadID,
		&v.TotalSize,
		&v.MimeType,
		&v.Folder,
		&v.ChunkSize,
		&v.ChunkCount,
		&v.IsComplete,
		&v.URL,
		&v.Duration,
		&v.CreatedAt,
		&v.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}
