package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"reel/internal/core"
	"reel/internal/server/database"
	"reel/internal/server/storage"

	"github.com/google/uuid"
)

// Chunked sessions let a client drive the upload itself: it announces the
// file up front, sends each chunk as its own request, and finalizes when all
// chunks are in. Each chunk lands as an independent object; the streaming
// engine reassembles them on read. Sessions live in the same durable store
// as coordinator-driven uploads, so a client that disappears mid-upload is
// reclaimed by the janitor like any other stale session.

// ChunkSessionMeta describes a file a client intends to upload in chunks.
type ChunkSessionMeta struct {
	Filename  string
	MimeType  string
	TotalSize int64
	Folder    string
}

// ChunkSessionInfo tells the client how to slice the file.
type ChunkSessionInfo struct {
	VideoID    string `json:"videoId"`
	ChunkSize  int64  `json:"chunkSize"`
	ChunkCount int    `json:"chunkCount"`
}

// CreateChunkSession validates the announced file and persists a session
// record before any chunk is accepted.
func (s *UploadService) CreateChunkSession(ctx context.Context, meta ChunkSessionMeta) (*ChunkSessionInfo, error) {
	if meta.TotalSize <= 0 {
		return nil, ErrFileRequired
	}
	if !allowedMimeTypes[strings.ToLower(meta.MimeType)] {
		return nil, ErrUnsupportedType
	}
	if meta.TotalSize > s.cfg.MaxFileSize {
		return nil, ErrFileTooLarge
	}

	session := &database.VideoUpload{
		VideoID:    uuid.NewString(),
		ObjectKey:  s.deriveObjectKey(UploadMeta{Filename: meta.Filename, MimeType: meta.MimeType, Folder: meta.Folder}),
		TotalSize:  meta.TotalSize,
		MimeType:   meta.MimeType,
		Folder:     meta.Folder,
		ChunkSize:  s.cfg.ChunkSize,
		ChunkCount: core.ChunkCount(meta.TotalSize, s.cfg.ChunkSize),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	slog.Info("chunked session created",
		"video_id", session.VideoID,
		"object_key", session.ObjectKey,
		"total_size", session.TotalSize,
		"chunk_count", session.ChunkCount,
	)
	return &ChunkSessionInfo{
		VideoID:    session.VideoID,
		ChunkSize:  session.ChunkSize,
		ChunkCount: session.ChunkCount,
	}, nil
}

// PutChunk stores one chunk of a chunked session. index is 0-based; all
// chunks except the last must be exactly chunkSize long.
func (s *UploadService) PutChunk(ctx context.Context, videoID string, index int, data []byte) error {
	session, err := s.lookupChunked(ctx, videoID)
	if err != nil {
		return err
	}
	if index < 0 || index >= session.ChunkCount {
		return ErrChunkIndex
	}
	if int64(len(data)) != chunkLength(session, index) {
		return ErrChunkSize
	}

	key := storage.ChunkKey(session.ObjectKey, index)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), session.MimeType); err != nil {
		slog.Error("chunk put failed", "object_key", key, "error", err)
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

// CompleteChunkSession verifies every chunk is present and the byte total
// matches, then finalizes the session.
func (s *UploadService) CompleteChunkSession(ctx context.Context, videoID string) (*UploadResult, error) {
	session, err := s.lookupChunked(ctx, videoID)
	if err != nil {
		return nil, err
	}

	var stored int64
	for i := 0; i < session.ChunkCount; i++ {
		info, err := s.store.Stat(ctx, storage.ChunkKey(session.ObjectKey, i))
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, fmt.Errorf("%w: chunk %d", ErrChunkMissing, i)
			}
			return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		stored += info.Size
	}
	if stored != session.TotalSize {
		return nil, fmt.Errorf("%w: stored %d of %d bytes", ErrChunkMissing, stored, session.TotalSize)
	}

	now := time.Now().UTC()
	url := s.publicURL(videoID)
	if err := s.sessions.MarkComplete(ctx, videoID, url, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	duration := s.extractChunkedDuration(ctx, session)

	slog.Info("chunked session completed",
		"video_id", videoID,
		"object_key", session.ObjectKey,
		"chunks", session.ChunkCount,
		"duration", duration,
	)
	return &UploadResult{
		VideoID:   videoID,
		ObjectKey: session.ObjectKey,
		PublicURL: url,
		Duration:  duration,
	}, nil
}

func (s *UploadService) lookupChunked(ctx context.Context, videoID string) (*database.VideoUpload, error) {
	session, err := s.sessions.GetByVideoID(ctx, videoID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if session.IsComplete {
		return nil, ErrInvalidState
	}
	if !session.Chunked() {
		return nil, ErrInvalidState
	}
	return session, nil
}

// extractChunkedDuration probes the first chunk only; container headers sit
// at the front of the file.
func (s *UploadService) extractChunkedDuration(ctx context.Context, session *database.VideoUpload) int {
	probeLen := chunkLength(session, 0)
	if probeLen > s.cfg.ProbeBytes {
		probeLen = s.cfg.ProbeBytes
	}

	var buf []byte
	rc, err := s.store.GetRange(ctx, storage.ChunkKey(session.ObjectKey, 0), 0, probeLen-1)
	if err != nil {
		slog.Error("failed to read chunk for duration probe", "video_id", session.VideoID, "error", err)
	} else {
		buf, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			slog.Error("failed to read chunk for duration probe", "video_id", session.VideoID, "error", err)
			buf = nil
		}
	}

	result := s.probe.Extract(buf, core.MediaHints{
		MimeType:  session.MimeType,
		TotalSize: session.TotalSize,
	})
	if err := s.sessions.SetDuration(ctx, session.VideoID, result.Seconds); err != nil {
		slog.Error("failed to store duration", "video_id", session.VideoID, "error", err)
	}
	return result.Seconds
}

// chunkLength is the expected stored length of chunk index within a session.
func chunkLength(session *database.VideoUpload, index int) int64 {
	offset := int64(index) * session.ChunkSize
	remaining := session.TotalSize - offset
	if remaining > session.ChunkSize {
		return session.ChunkSize
	}
	return remaining
}
