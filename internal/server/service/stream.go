package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"reel/internal/core"
	"reel/internal/server/database"
	"reel/internal/server/storage"
)

// StreamService serves stored videos over HTTP with byte-range support. A
// request is either a full 200 or a 206 whose span is clamped to maxSpan,
// bounding per-request buffering no matter what the client asked for; a
// client wanting more issues follow-up range requests per normal range
// semantics. Requests never share state, so concurrent reads of the same
// video are fully independent.
type StreamService struct {
	sessions SessionStore
	store    storage.ObjectStore
	maxSpan  int64
}

// NewStreamService creates a new streaming service.
func NewStreamService(sessions SessionStore, store storage.ObjectStore, maxSpan int64) *StreamService {
	return &StreamService{sessions: sessions, store: store, maxSpan: maxSpan}
}

// Stream writes the response for one playback request. Errors returned from
// here occurred before any header was written and can still be rendered as
// structured error bodies; once headers are out, read failures only truncate
// the body and are logged.
func (s *StreamService) Stream(ctx context.Context, videoID, rangeHeader string, w http.ResponseWriter) error {
	session, err := s.sessions.GetByVideoID(ctx, videoID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !session.IsComplete {
		return ErrNotFound
	}

	totalSize, mimeType, err := s.resolveMeta(ctx, session)
	if err != nil {
		return err
	}

	if rangeHeader == "" {
		return s.streamFull(ctx, session, totalSize, mimeType, w)
	}

	r, err := core.ParseByteRange(rangeHeader, totalSize)
	if err != nil {
		return err
	}
	// Clamp the span: the client gets a short partial response and follows up.
	end := r.End
	if max := r.Start + s.maxSpan - 1; end > max {
		end = max
	}

	h := w.Header()
	h.Set("Content-Type", mimeType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", r.Start, end, totalSize))
	h.Set("Content-Length", strconv.FormatInt(end-r.Start+1, 10))
	w.WriteHeader(http.StatusPartialContent)

	if session.Chunked() {
		s.writeChunkedRange(ctx, session, r.Start, end, w)
		return nil
	}
	s.writeObjectRange(ctx, session.ObjectKey, r.Start, end, w)
	return nil
}

// resolveMeta prefers a live head-object call for contiguous objects and
// falls back to the stored record; chunked sessions only have the record.
func (s *StreamService) resolveMeta(ctx context.Context, session *database.VideoUpload) (int64, string, error) {
	if session.Chunked() {
		return session.TotalSize, session.MimeType, nil
	}

	info, err := s.store.Stat(ctx, session.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return 0, "", ErrNotFound
		}
		slog.Warn("head-object failed, using session record",
			"video_id", session.VideoID,
			"error", err,
		)
		return session.TotalSize, session.MimeType, nil
	}

	mimeType := info.ContentType
	if mimeType == "" {
		mimeType = session.MimeType
	}
	return info.Size, mimeType, nil
}

func (s *StreamService) streamFull(ctx context.Context, session *database.VideoUpload, totalSize int64, mimeType string, w http.ResponseWriter) error {
	h := w.Header()
	h.Set("Content-Type", mimeType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Length", strconv.FormatInt(totalSize, 10))
	w.WriteHeader(http.StatusOK)

	if session.Chunked() {
		s.writeChunkedRange(ctx, session, 0, totalSize-1, w)
		return nil
	}

	rc, err := s.store.Get(ctx, session.ObjectKey)
	if err != nil {
		slog.Error("full stream open failed", "video_id", session.VideoID, "error", err)
		return nil
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("full stream aborted", "video_id", session.VideoID, "error", err)
	}
	return nil
}

// writeObjectRange streams one contiguous byte span. Headers are already
// written; the only failure mode left is a short body.
func (s *StreamService) writeObjectRange(ctx context.Context, key string, start, end int64, w http.ResponseWriter) {
	rc, err := s.store.GetRange(ctx, key, start, end)
	if err != nil {
		slog.Error("range read failed", "object_key", key, "start", start, "end", end, "error", err)
		return
	}
	defer rc.Close()

	if _, err := io.CopyN(w, rc, end-start+1); err != nil && !errors.Is(err, io.EOF) {
		slog.Error("range stream aborted", "object_key", key, "error", err)
	}
}

// writeChunkedRange maps the byte span onto the session's chunk objects and
// writes each chunk's overlapping slice in chunk order. Total bytes written
// never exceed the advertised content length; a chunk that fails to read is
// logged and skipped since headers are already out.
func (s *StreamService) writeChunkedRange(ctx context.Context, session *database.VideoUpload, start, end int64, w http.ResponseWriter) {
	first := core.ChunkIndex(start, session.ChunkSize)
	last := core.ChunkIndex(end, session.ChunkSize)

	remaining := end - start + 1
	for idx := first; idx <= last && remaining > 0; idx++ {
		length := chunkLength(session, idx)
		lo, hi := core.ChunkSlice(idx, session.ChunkSize, length, start, end)
		if hi <= lo {
			continue
		}
		span := hi - lo
		if span > remaining {
			span = remaining
		}

		key := storage.ChunkKey(session.ObjectKey, idx)
		rc, err := s.store.GetRange(ctx, key, lo, lo+span-1)
		if err != nil {
			slog.Error("chunk read failed", "object_key", key, "chunk", idx, "error", err)
			continue
		}

		n, err := io.CopyN(w, rc, span)
		rc.Close()
		remaining -= n
		if err != nil && !errors.Is(err, io.EOF) {
			slog.Error("chunk stream aborted", "object_key", key, "chunk", idx, "error", err)
			return
		}
	}
}
