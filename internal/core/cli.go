package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// videoMimeTypes maps recognized video file extensions to their mime types.
var videoMimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
}

// VideoFile is a validated local video file ready for upload.
type VideoFile struct {
	Path     string
	Name     string
	Size     int64
	MimeType string
}

// MimeTypeForFilename returns the video mime type for a filename based on
// its extension, or "" when the extension is not a recognized video format.
func MimeTypeForFilename(name string) string {
	return videoMimeTypes[strings.ToLower(filepath.Ext(name))]
}

// ParseArgs validates command-line file arguments: each must exist, be a
// regular file, and carry a recognized video extension.
func ParseArgs(args []string) ([]VideoFile, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no video files provided"}
	}

	var out []VideoFile

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}
		if info.IsDir() {
			return nil, &ValidationError{Arg: raw, Cause: "is a directory, expected a video file"}
		}

		mimeType := MimeTypeForFilename(p)
		if mimeType == "" {
			return nil, &ValidationError{Arg: raw, Cause: "unrecognized video format"}
		}

		out = append(out, VideoFile{
			Path:     p,
			Name:     filepath.Base(p),
			Size:     info.Size(),
			MimeType: mimeType,
		})
	}

	return out, nil
}
