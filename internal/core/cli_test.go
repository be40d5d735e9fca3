package core

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempVideo(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestMimeTypeForFilename(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"clip.mp4", "video/mp4"},
		{"CLIP.MP4", "video/mp4"},
		{"movie.mov", "video/quicktime"},
		{"talk.webm", "video/webm"},
		{"old.avi", "video/x-msvideo"},
		{"rip.mkv", "video/x-matroska"},
		{"notes.txt", ""},
		{"noext", ""},
	}
	for _, tt := range tests {
		if got := MimeTypeForFilename(tt.name); got != tt.expected {
			t.Errorf("MimeTypeForFilename(%q) = %q, want %q", tt.name, got, tt.expected)
		}
	}
}

func TestParseArgs(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid video file", func(t *testing.T) {
		path := writeTempVideo(t, dir, "lecture.mp4", 1024)

		files, err := ParseArgs([]string{path})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 1 {
			t.Fatalf("expected 1 file, got %d", len(files))
		}
		f := files[0]
		if f.Name != "lecture.mp4" {
			t.Errorf("name = %q, want lecture.mp4", f.Name)
		}
		if f.Size != 1024 {
			t.Errorf("size = %d, want 1024", f.Size)
		}
		if f.MimeType != "video/mp4" {
			t.Errorf("mime type = %q, want video/mp4", f.MimeType)
		}
	})

	t.Run("no arguments", func(t *testing.T) {
		if _, err := ParseArgs(nil); err == nil {
			t.Error("expected error for empty args")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := ParseArgs([]string{filepath.Join(dir, "nope.mp4")}); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("directory rejected", func(t *testing.T) {
		if _, err := ParseArgs([]string{dir}); err == nil {
			t.Error("expected error for directory argument")
		}
	})

	t.Run("unrecognized format rejected", func(t *testing.T) {
		path := writeTempVideo(t, dir, "notes.txt", 10)
		if _, err := ParseArgs([]string{path}); err == nil {
			t.Error("expected error for non-video file")
		}
	})
}
