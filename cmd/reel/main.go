package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"

	"reel/internal/core"
)

// reel is a small uploader client: it validates local video files and posts
// them to a running server.

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		VideoID   string `json:"videoId"`
		ObjectKey string `json:"objectKey"`
		PublicURL string `json:"publicUrl"`
		Duration  int    `json:"duration"`
	} `json:"data"`
}

func main() {
	serverURL := os.Getenv("REEL_SERVER")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	files, err := core.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, f := range files {
		result, err := uploadFile(serverURL, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error uploading %s: %v\n", f.Name, err)
			os.Exit(1)
		}
		fmt.Printf("✓ %s (%d bytes)\n", f.Name, f.Size)
		fmt.Printf("  video id: %s\n", result.Data.VideoID)
		fmt.Printf("  playback: %s (%ds)\n", result.Data.PublicURL, result.Data.Duration)
	}
}

func uploadFile(serverURL string, f core.VideoFile) (*uploadResponse, error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// Stream the multipart body through a pipe so the file is never fully
	// buffered client-side.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
		header.Set("Content-Type", f.MimeType)

		part, err := mw.CreatePart(header)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	resp, err := http.Post(serverURL+"/upload", mw.FormDataContentType(), pr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("server rejected upload (status %d): %s", resp.StatusCode, result.Message)
	}
	return &result, nil
}
