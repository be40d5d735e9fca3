package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"reel/internal/core"
	"reel/internal/server/database"
	"reel/internal/server/service"
	"reel/internal/server/storage"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the reel API.
type Handler struct {
	uploads *service.UploadService
	streams *service.StreamService
	cleanup *storage.CleanupService
	db      *database.DB
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(uploads *service.UploadService, streams *service.StreamService, cleanup *storage.CleanupService, db *database.DB) *Handler {
	return &Handler{uploads: uploads, streams: streams, cleanup: cleanup, db: db}
}

// ok wraps a payload in the success envelope.
func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

// fail renders a structured error body. Clients depend on always getting a
// body, even on internal failures, to decide whether to retry.
func fail(c echo.Context, status int, message string, err error) error {
	body := echo.Map{"success": false, "message": message}
	if err != nil {
		body["error"] = err.Error()
	}
	return c.JSON(status, body)
}

// HandleUpload handles POST /upload.
// Accepts a multipart form with a "file" field and optional "folder" field.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "file is required (use form field 'file')", service.ErrFileRequired)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to read uploaded file", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to read uploaded file", err)
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = core.MimeTypeForFilename(fileHeader.Filename)
	}

	result, err := h.uploads.Ingest(c.Request().Context(), data, service.UploadMeta{
		Filename: fileHeader.Filename,
		MimeType: mimeType,
		Folder:   c.FormValue("folder"),
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return ok(c, http.StatusCreated, result)
}

// HandleCancel handles DELETE /upload/:videoId.
// Cancels an incomplete upload session; repeated calls are harmless.
func (h *Handler) HandleCancel(c echo.Context) error {
	videoID := c.Param("videoId")

	if err := h.uploads.Cancel(c.Request().Context(), videoID); err != nil {
		return mapServiceError(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"videoId": videoID, "cancelled": true})
}

// HandleCleanup handles POST /upload/cleanup.
// Triggers an immediate janitor sweep and reports how many sessions it
// reclaimed.
func (h *Handler) HandleCleanup(c echo.Context) error {
	reclaimed, err := h.cleanup.Sweep(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "cleanup sweep failed", err)
	}
	return ok(c, http.StatusOK, echo.Map{"reclaimed": reclaimed})
}

type createSessionRequest struct {
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	TotalSize int64  `json:"totalSize"`
	Folder    string `json:"folder"`
}

// HandleCreateSession handles POST /upload/sessions.
// Opens a client-driven chunked upload session.
func (h *Handler) HandleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", err)
	}

	info, err := h.uploads.CreateChunkSession(c.Request().Context(), service.ChunkSessionMeta{
		Filename:  req.FileName,
		MimeType:  req.MimeType,
		TotalSize: req.TotalSize,
		Folder:    req.Folder,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return ok(c, http.StatusCreated, info)
}

// HandleUploadChunk handles PUT /upload/sessions/:videoId/chunks/:index.
// The request body is the raw chunk bytes.
func (h *Handler) HandleUploadChunk(c echo.Context) error {
	videoID := c.Param("videoId")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "chunk index must be an integer", err)
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "failed to read chunk body", err)
	}

	if err := h.uploads.PutChunk(c.Request().Context(), videoID, index, data); err != nil {
		return mapServiceError(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"videoId": videoID, "chunkIndex": index})
}

// HandleCompleteSession handles POST /upload/sessions/:videoId/complete.
func (h *Handler) HandleCompleteSession(c echo.Context) error {
	videoID := c.Param("videoId")

	result, err := h.uploads.CompleteChunkSession(c.Request().Context(), videoID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return ok(c, http.StatusOK, result)
}

// HandleStream handles GET /video/:id, honoring the Range request header.
// The streaming service writes directly to the response; errors returned
// here happened before headers went out and still get a structured body.
func (h *Handler) HandleStream(c echo.Context) error {
	err := h.streams.Stream(
		c.Request().Context(),
		c.Param("id"),
		c.Request().Header.Get("Range"),
		c.Response(),
	)
	if err != nil {
		return mapServiceError(c, err)
	}
	return nil
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.uploads.GetStats(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to retrieve stats", err)
	}

	return ok(c, http.StatusOK, echo.Map{
		"total_videos":        stats.TotalVideos,
		"completed_videos":    stats.CompletedVideos,
		"stored_bytes":        stats.StoredBytes,
		"stored_human":        humanizeBytes(stats.StoredBytes),
		"total_duration_secs": stats.TotalDuration,
	})
}

// mapServiceError translates service-layer errors into HTTP responses with
// the structured error envelope.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrFileRequired):
		return fail(c, http.StatusBadRequest, "video file is required", err)
	case errors.Is(err, service.ErrUnsupportedType):
		return fail(c, http.StatusUnsupportedMediaType, "unsupported video format", err)
	case errors.Is(err, service.ErrFileTooLarge):
		return fail(c, http.StatusRequestEntityTooLarge, "file exceeds maximum allowed size", err)
	case errors.Is(err, service.ErrNotFound):
		return fail(c, http.StatusNotFound, "video not found", err)
	case errors.Is(err, service.ErrInvalidState):
		return fail(c, http.StatusBadRequest, "operation not valid for session state", err)
	case errors.Is(err, service.ErrChunkIndex), errors.Is(err, service.ErrChunkSize), errors.Is(err, service.ErrChunkMissing):
		return fail(c, http.StatusBadRequest, "invalid chunk upload", err)
	case errors.Is(err, core.ErrBadRange):
		return fail(c, http.StatusBadRequest, "malformed range header", err)
	case errors.Is(err, core.ErrUnsatisfiableRange):
		return fail(c, http.StatusRequestedRangeNotSatisfiable, "requested range not satisfiable", err)
	case errors.Is(err, service.ErrUploadFailed):
		return fail(c, http.StatusInternalServerError, "upload failed", err)
	default:
		return fail(c, http.StatusInternalServerError, "internal server error", nil)
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
