package service

import (
	"context"
	"errors"
	"testing"

	"reel/internal/server/storage"
)

func TestChunkSessions(t *testing.T) {
	ctx := context.Background()
	meta := ChunkSessionMeta{Filename: "lecture.mp4", MimeType: "video/mp4", TotalSize: 10}

	t.Run("create computes the chunk layout", func(t *testing.T) {
		svc, sessions, _ := newUploadFixture(t)

		info, err := svc.CreateChunkSession(ctx, meta)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.ChunkSize != 4 {
			t.Errorf("chunk size = %d, want 4", info.ChunkSize)
		}
		if info.ChunkCount != 3 {
			t.Errorf("chunk count = %d, want 3", info.ChunkCount)
		}

		session := sessions.get(info.VideoID)
		if session == nil {
			t.Fatal("session record missing")
		}
		if session.IsComplete {
			t.Error("new session must start incomplete")
		}
		if !session.Chunked() {
			t.Error("session must be marked as chunked")
		}
	})

	t.Run("create validates the announced file", func(t *testing.T) {
		svc, _, _ := newUploadFixture(t)

		if _, err := svc.CreateChunkSession(ctx, ChunkSessionMeta{MimeType: "video/mp4"}); !errors.Is(err, ErrFileRequired) {
			t.Errorf("expected ErrFileRequired for zero size, got: %v", err)
		}
		if _, err := svc.CreateChunkSession(ctx, ChunkSessionMeta{MimeType: "text/plain", TotalSize: 10}); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("expected ErrUnsupportedType, got: %v", err)
		}
		if _, err := svc.CreateChunkSession(ctx, ChunkSessionMeta{MimeType: "video/mp4", TotalSize: 1 << 30}); !errors.Is(err, ErrFileTooLarge) {
			t.Errorf("expected ErrFileTooLarge, got: %v", err)
		}
	})

	t.Run("full chunk round trip", func(t *testing.T) {
		svc, sessions, store := newUploadFixture(t)
		data := patternBytes(10)

		info, err := svc.CreateChunkSession(ctx, meta)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for i := 0; i < info.ChunkCount; i++ {
			start := int64(i) * info.ChunkSize
			end := start + info.ChunkSize
			if end > int64(len(data)) {
				end = int64(len(data))
			}
			if err := svc.PutChunk(ctx, info.VideoID, i, data[start:end]); err != nil {
				t.Fatalf("chunk %d: unexpected error: %v", i, err)
			}
		}

		result, err := svc.CompleteChunkSession(ctx, info.VideoID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.VideoID != info.VideoID {
			t.Errorf("video id mismatch: %s vs %s", result.VideoID, info.VideoID)
		}

		session := sessions.get(info.VideoID)
		if session == nil || !session.IsComplete {
			t.Fatal("expected a completed session record")
		}
		if session.Duration == 0 {
			t.Error("duration should be filled by the fallback chain")
		}

		// Each chunk landed as its own object.
		for i := 0; i < info.ChunkCount; i++ {
			if store.object(storage.ChunkKey(session.ObjectKey, i)) == nil {
				t.Errorf("chunk object %d missing", i)
			}
		}
	})

	t.Run("chunk validation", func(t *testing.T) {
		svc, _, _ := newUploadFixture(t)
		info, err := svc.CreateChunkSession(ctx, meta)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := svc.PutChunk(ctx, "no-such-video", 0, patternBytes(4)); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if err := svc.PutChunk(ctx, info.VideoID, 3, patternBytes(4)); !errors.Is(err, ErrChunkIndex) {
			t.Errorf("expected ErrChunkIndex, got: %v", err)
		}
		if err := svc.PutChunk(ctx, info.VideoID, -1, patternBytes(4)); !errors.Is(err, ErrChunkIndex) {
			t.Errorf("expected ErrChunkIndex for negative index, got: %v", err)
		}
		// Chunk 0 must be a full chunk; chunk 2 is the 2-byte tail.
		if err := svc.PutChunk(ctx, info.VideoID, 0, patternBytes(3)); !errors.Is(err, ErrChunkSize) {
			t.Errorf("expected ErrChunkSize, got: %v", err)
		}
		if err := svc.PutChunk(ctx, info.VideoID, 2, patternBytes(4)); !errors.Is(err, ErrChunkSize) {
			t.Errorf("expected ErrChunkSize for oversized tail, got: %v", err)
		}
	})

	t.Run("complete with missing chunks is rejected", func(t *testing.T) {
		svc, _, _ := newUploadFixture(t)
		info, err := svc.CreateChunkSession(ctx, meta)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := svc.PutChunk(ctx, info.VideoID, 0, patternBytes(4)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.CompleteChunkSession(ctx, info.VideoID); !errors.Is(err, ErrChunkMissing) {
			t.Errorf("expected ErrChunkMissing, got: %v", err)
		}
	})

	t.Run("operations on a completed session are rejected", func(t *testing.T) {
		svc, _, _ := newUploadFixture(t)
		data := patternBytes(10)

		info, err := svc.CreateChunkSession(ctx, meta)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 0; i < info.ChunkCount; i++ {
			start := int64(i) * info.ChunkSize
			end := start + info.ChunkSize
			if end > int64(len(data)) {
				end = int64(len(data))
			}
			if err := svc.PutChunk(ctx, info.VideoID, i, data[start:end]); err != nil {
				t.Fatalf("chunk %d: unexpected error: %v", i, err)
			}
		}
		if _, err := svc.CompleteChunkSession(ctx, info.VideoID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := svc.PutChunk(ctx, info.VideoID, 0, patternBytes(4)); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got: %v", err)
		}
		if _, err := svc.CompleteChunkSession(ctx, info.VideoID); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState on repeat completion, got: %v", err)
		}
	})
}
