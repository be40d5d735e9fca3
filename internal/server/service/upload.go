package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"reel/internal/core"
	"reel/internal/server/config"
	"reel/internal/server/database"
	"reel/internal/server/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// allowedMimeTypes are the video formats accepted for ingest.
var allowedMimeTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-msvideo":  true,
	"video/x-matroska": true,
}

// SessionStore is the slice of the repository the upload and streaming
// services depend on.
type SessionStore interface {
	Create(ctx context.Context, v *database.VideoUpload) error
	GetByVideoID(ctx context.Context, videoID string) (*database.VideoUpload, error)
	MarkComplete(ctx context.Context, videoID, url string, completedAt time.Time) error
	SetDuration(ctx context.Context, videoID string, seconds int) error
	Delete(ctx context.Context, videoID string) error
	GetStats(ctx context.Context) (*database.Stats, error)
}

var _ SessionStore = (*database.Repository)(nil)

// UploadMeta describes an incoming video file.
type UploadMeta struct {
	Filename string
	MimeType string
	Folder   string
}

// UploadResult is returned after a successful ingest.
type UploadResult struct {
	VideoID   string `json:"videoId"`
	ObjectKey string `json:"objectKey"`
	PublicURL string `json:"publicUrl"`
	Duration  int    `json:"duration"`
}

// UploadService coordinates video ingest: whole-object puts below the
// multipart threshold, and the multipart protocol (create, batched
// concurrent part uploads with retry, ordered completion) above it. The
// session record is persisted before the first part so that a crash at any
// point leaves a row the janitor can use to abort the remote transaction.
type UploadService struct {
	sessions SessionStore
	store    storage.ObjectStore
	cfg      *config.Config
	probe    *core.DurationProbe
}

// NewUploadService creates a new upload service.
func NewUploadService(sessions SessionStore, store storage.ObjectStore, cfg *config.Config) *UploadService {
	return &UploadService{
		sessions: sessions,
		store:    store,
		cfg:      cfg,
		probe:    core.NewDurationProbe(),
	}
}

// Ingest validates and stores a whole video buffer, routing to a single-shot
// put or the multipart protocol based on size.
func (s *UploadService) Ingest(ctx context.Context, data []byte, meta UploadMeta) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, ErrFileRequired
	}
	if !allowedMimeTypes[strings.ToLower(meta.MimeType)] {
		return nil, ErrUnsupportedType
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, ErrFileTooLarge
	}

	if int64(len(data)) >= s.cfg.MultipartThreshold {
		return s.uploadMultipart(ctx, data, meta)
	}
	return s.uploadSingle(ctx, data, meta)
}

// uploadSingle stores the whole buffer with one put and records the session
// as already complete.
func (s *UploadService) uploadSingle(ctx context.Context, data []byte, meta UploadMeta) (*UploadResult, error) {
	key := s.deriveObjectKey(meta)
	videoID := uuid.NewString()

	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), meta.MimeType); err != nil {
		slog.Error("single-shot put failed", "object_key", key, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	now := time.Now().UTC()
	url := s.publicURL(videoID)
	session := &database.VideoUpload{
		VideoID:     videoID,
		ObjectKey:   key,
		TotalSize:   int64(len(data)),
		MimeType:    meta.MimeType,
		Folder:      meta.Folder,
		IsComplete:  true,
		URL:         &url,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// The object is orphaned without a record; remove it.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			slog.Error("failed to remove orphaned object", "object_key", key, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	duration := s.extractDuration(ctx, videoID, data, meta)

	slog.Info("video ingested",
		"video_id", videoID,
		"object_key", key,
		"size", len(data),
		"duration", duration,
		"multipart", false,
	)
	return &UploadResult{VideoID: videoID, ObjectKey: key, PublicURL: url, Duration: duration}, nil
}

// uploadMultipart drives the multipart protocol for large buffers.
func (s *UploadService) uploadMultipart(ctx context.Context, data []byte, meta UploadMeta) (*UploadResult, error) {
	key := s.deriveObjectKey(meta)
	videoID := uuid.NewString()
	size := int64(len(data))

	uploadID, err := s.store.CreateMultipart(ctx, key, meta.MimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	// Persist before the first part upload: the row is the only holder of
	// uploadID, and the janitor needs it to abort after a crash.
	session := &database.VideoUpload{
		VideoID:   videoID,
		ObjectKey: key,
		UploadID:  uploadID,
		TotalSize: size,
		MimeType:  meta.MimeType,
		Folder:    meta.Folder,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.abort(ctx, key, uploadID)
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	chunks := core.PartitionChunks(size, s.cfg.ChunkSize)
	parts, err := s.uploadParts(ctx, key, uploadID, data, chunks)
	if err != nil {
		s.abort(ctx, key, uploadID)
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	// Parts may finish out of order; the completion manifest must be
	// ascending by part number with no gaps.
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })

	if err := s.store.CompleteMultipart(ctx, key, uploadID, parts); err != nil {
		s.abort(ctx, key, uploadID)
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	now := time.Now().UTC()
	url := s.publicURL(videoID)
	if err := s.sessions.MarkComplete(ctx, videoID, url, now); err != nil {
		// The remote transaction already committed, so there is nothing to
		// abort; the record stays incomplete until corrected.
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	duration := s.extractDuration(ctx, videoID, data, meta)

	slog.Info("video ingested",
		"video_id", videoID,
		"object_key", key,
		"size", size,
		"parts", len(parts),
		"duration", duration,
		"multipart", true,
	)
	return &UploadResult{VideoID: videoID, ObjectKey: key, PublicURL: url, Duration: duration}, nil
}

// uploadParts uploads chunks in strictly sequential batches; uploads within
// a batch run concurrently, bounding peak outstanding requests to the
// configured concurrency without serializing the whole transfer.
func (s *UploadService) uploadParts(ctx context.Context, key, uploadID string, data []byte, chunks []core.Chunk) ([]storage.Part, error) {
	concurrency := s.cfg.UploadConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	parts := make([]storage.Part, len(chunks))
	for start := 0; start < len(chunks); start += concurrency {
		end := start + concurrency
		if end > len(chunks) {
			end = len(chunks)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, chunk := range chunks[start:end] {
			chunk := chunk
			g.Go(func() error {
				part, err := s.uploadPartWithRetry(gctx, key, uploadID, data, chunk)
				if err != nil {
					return err
				}
				parts[chunk.Number-1] = part
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// uploadPartWithRetry uploads one chunk, retrying transient failures with
// exponential backoff. A fresh reader over the chunk's view is built per
// attempt so retries never observe a partially consumed buffer.
func (s *UploadService) uploadPartWithRetry(ctx context.Context, key, uploadID string, data []byte, chunk core.Chunk) (storage.Part, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.UploadMaxRetries; attempt++ {
		reader := bytes.NewReader(data[chunk.Offset : chunk.Offset+chunk.Length])
		part, err := s.store.UploadPart(ctx, key, uploadID, chunk.Number, reader, chunk.Length)
		if err == nil {
			return part, nil
		}
		lastErr = err

		if attempt == s.cfg.UploadMaxRetries {
			break
		}
		delay := s.cfg.UploadRetryBase << (attempt - 1)
		slog.Warn("part upload failed, retrying",
			"object_key", key,
			"part", chunk.Number,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return storage.Part{}, ctx.Err()
		}
	}
	return storage.Part{}, fmt.Errorf("part %d failed after %d attempts: %w", chunk.Number, s.cfg.UploadMaxRetries, lastErr)
}

// Cancel aborts an incomplete upload session and deletes its record. It is
// idempotent: a missing session counts as already cancelled. Cancelling a
// completed session is rejected with ErrInvalidState.
func (s *UploadService) Cancel(ctx context.Context, videoID string) error {
	session, err := s.sessions.GetByVideoID(ctx, videoID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if session.IsComplete {
		return ErrInvalidState
	}

	// Best-effort remote cleanup; the janitor backstops failures.
	if session.Chunked() {
		for i := 0; i < session.ChunkCount; i++ {
			chunkKey := storage.ChunkKey(session.ObjectKey, i)
			if err := s.store.Delete(ctx, chunkKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
				slog.Error("failed to delete chunk on cancel", "object_key", chunkKey, "error", err)
			}
		}
	} else if session.UploadID != "" {
		s.abort(ctx, session.ObjectKey, session.UploadID)
	}

	if err := s.sessions.Delete(ctx, videoID); err != nil && !errors.Is(err, database.ErrSessionNotFound) {
		return err
	}
	slog.Info("upload session cancelled", "video_id", videoID, "object_key", session.ObjectKey)
	return nil
}

// GetStats returns aggregate service statistics.
func (s *UploadService) GetStats(ctx context.Context) (*database.Stats, error) {
	return s.sessions.GetStats(ctx)
}

// abort is a best-effort remote abort; failures are logged, not escalated,
// since the janitor provides a backstop.
func (s *UploadService) abort(ctx context.Context, key, uploadID string) {
	if err := s.store.AbortMultipart(ctx, key, uploadID); err != nil {
		slog.Error("failed to abort multipart upload", "object_key", key, "error", err)
	}
}

// extractDuration is best-effort: failure degrades duration to whatever the
// fallback chain produced, never the upload itself.
func (s *UploadService) extractDuration(ctx context.Context, videoID string, data []byte, meta UploadMeta) int {
	buf := data
	if int64(len(buf)) > s.cfg.ProbeBytes {
		buf = buf[:s.cfg.ProbeBytes]
	}
	result := s.probe.Extract(buf, core.MediaHints{
		MimeType:  meta.MimeType,
		Filename:  meta.Filename,
		TotalSize: int64(len(data)),
	})
	if result.Suspicious {
		slog.Warn("implausible parsed duration",
			"video_id", videoID,
			"duration", result.Seconds,
			"method", result.Method,
		)
	}
	if err := s.sessions.SetDuration(ctx, videoID, result.Seconds); err != nil {
		slog.Error("failed to store duration", "video_id", videoID, "error", err)
	}
	return result.Seconds
}

// publicURL is where a finished video can be played back from.
func (s *UploadService) publicURL(videoID string) string {
	return fmt.Sprintf("%s/video/%s", strings.TrimRight(s.cfg.BaseURL, "/"), videoID)
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// deriveObjectKey builds a collision-resistant destination path from the
// original filename, a millisecond timestamp, and a random suffix, sanitized
// to a safe character set.
func (s *UploadService) deriveObjectKey(meta UploadMeta) string {
	name := strings.ReplaceAll(meta.Filename, "\\", "/")
	name = filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))

	base = unsafeKeyChars.ReplaceAllString(base, "_")
	if base == "" || base == "_" {
		base = "video"
	}
	if unsafeKeyChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}

	folder := strings.Trim(meta.Folder, "/")
	if folder == "" {
		folder = "videos"
	}

	suffix, err := randomSuffix(8)
	if err != nil {
		// crypto/rand failure is effectively fatal elsewhere; fall back to
		// the uuid package rather than lose collision resistance.
		suffix = uuid.NewString()[:8]
	}
	return fmt.Sprintf("%s/%s_%d_%s%s", folder, base, time.Now().UnixMilli(), suffix, ext)
}

// randomSuffix produces a cryptographically random alphanumeric string.
func randomSuffix(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure: %w", err)
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
