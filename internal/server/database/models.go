package database

import "time"

// VideoUpload is the durable record of one video upload session. It is the
// only authoritative holder of the object store's multipart UploadID: losing
// the row orphans the remote transaction.
type VideoUpload struct {
	VideoID   string
	ObjectKey string
	UploadID  string // multipart transaction ID; meaningless once completed or aborted
	TotalSize int64
	MimeType  string
	Folder    string

	// ChunkSize/ChunkCount are set only for sessions stored as independent
	// chunk objects (client-driven chunked uploads). Zero for whole or
	// multipart-assembled objects.
	ChunkSize  int64
	ChunkCount int

	IsComplete  bool
	URL         *string // set iff IsComplete
	Duration    int     // seconds, 0 until extracted
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Chunked reports whether the backing object is stored as discrete chunk
// objects rather than one contiguous object.
func (v *VideoUpload) Chunked() bool {
	return v.ChunkCount > 0 && v.ChunkSize > 0
}

// Stats holds aggregate service statistics.
type Stats struct {
	TotalVideos     int64
	CompletedVideos int64
	StoredBytes     int64
	TotalDuration   int64 // seconds across completed videos
}
