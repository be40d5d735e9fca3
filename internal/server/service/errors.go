package service

import "errors"

// Sentinel errors for the service layer. Everything the object store or the
// session store throws is translated into one of these at the service
// boundary; nothing below it reaches HTTP clients verbatim.
var (
	ErrFileRequired    = errors.New("video file is required")
	ErrUnsupportedType = errors.New("unsupported video format")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrUploadFailed    = errors.New("upload failed")
	ErrNotFound        = errors.New("video not found")
	ErrInvalidState    = errors.New("operation not valid for session state")
	ErrChunkIndex      = errors.New("chunk index out of range")
	ErrChunkSize       = errors.New("chunk size does not match session layout")
	ErrChunkMissing    = errors.New("session is missing uploaded chunks")
)
