package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"reel/internal/server/database"
)

// staleSessions is the slice of the repository the janitor needs.
type staleSessions interface {
	GetStale(ctx context.Context, cutoff time.Time) ([]*database.VideoUpload, error)
	Delete(ctx context.Context, videoID string) error
}

// CleanupService periodically reclaims incomplete upload sessions: it aborts
// the orphaned multipart transaction (or deletes orphaned chunk objects) and
// then removes the session record. A session whose remote cleanup fails is
// kept for the next sweep, since the record is the only holder of the
// transaction ID.
type CleanupService struct {
	repo     staleSessions
	store    ObjectStore
	staleAge time.Duration
	interval time.Duration
	done     chan struct{}
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(repo staleSessions, store ObjectStore, staleAge, interval time.Duration) *CleanupService {
	return &CleanupService{
		repo:     repo,
		store:    store,
		staleAge: staleAge,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (cs *CleanupService) Start(ctx context.Context) {
	slog.Info("cleanup service started", "interval", cs.interval, "stale_age", cs.staleAge)

	go func() {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		// Run once immediately on start
		cs.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				cs.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("cleanup service stopping")
				close(cs.done)
				return
			}
		}
	}()
}

// Wait blocks until the cleanup service has fully stopped.
func (cs *CleanupService) Wait() {
	<-cs.done
}

func (cs *CleanupService) runSweep(ctx context.Context) {
	reclaimed, err := cs.Sweep(ctx)
	if err != nil {
		slog.Error("cleanup sweep failed", "error", err)
		return
	}
	slog.Info("cleanup sweep complete", "reclaimed", reclaimed)
}

// Sweep reclaims all incomplete sessions older than the stale age and
// returns how many were removed. Individual failures are logged and skipped
// rather than retried within the same sweep.
func (cs *CleanupService) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-cs.staleAge)

	stale, err := cs.repo.GetStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	var reclaimed int
	for _, session := range stale {
		if err := cs.reclaimRemote(ctx, session); err != nil {
			// Keep the record so the next sweep can retry the abort.
			slog.Error("failed to reclaim remote upload",
				"video_id", session.VideoID,
				"object_key", session.ObjectKey,
				"error", err,
			)
			continue
		}

		if err := cs.repo.Delete(ctx, session.VideoID); err != nil {
			slog.Error("failed to delete stale session record",
				"video_id", session.VideoID,
				"error", err,
			)
			continue
		}

		reclaimed++
		slog.Info("reclaimed stale upload session",
			"video_id", session.VideoID,
			"object_key", session.ObjectKey,
			"created_at", session.CreatedAt,
		)
	}

	return reclaimed, nil
}

func (cs *CleanupService) reclaimRemote(ctx context.Context, session *database.VideoUpload) error {
	if session.Chunked() {
		// Client-driven chunked sessions have no multipart transaction;
		// remove whatever chunk objects made it to the store.
		for i := 0; i < session.ChunkCount; i++ {
			key := ChunkKey(session.ObjectKey, i)
			if err := cs.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrObjectNotFound) {
				return err
			}
		}
		return nil
	}
	if err := cs.store.AbortMultipart(ctx, session.ObjectKey, session.UploadID); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return err
	}
	return nil
}
