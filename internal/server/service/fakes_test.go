package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"reel/internal/server/config"
	"reel/internal/server/database"
	"reel/internal/server/storage"
)

// --- In-memory SessionStore ---

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*database.VideoUpload
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*database.VideoUpload)}
}

func (f *fakeSessions) Create(_ context.Context, v *database.VideoUpload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.sessions[v.VideoID]; exists {
		return fmt.Errorf("duplicate video id %s", v.VideoID)
	}
	clone := *v
	f.sessions[v.VideoID] = &clone
	return nil
}

func (f *fakeSessions) GetByVideoID(_ context.Context, videoID string) (*database.VideoUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sessions[videoID]
	if !ok {
		return nil, database.ErrSessionNotFound
	}
	clone := *v
	return &clone, nil
}

func (f *fakeSessions) MarkComplete(_ context.Context, videoID, url string, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sessions[videoID]
	if !ok {
		return database.ErrSessionNotFound
	}
	v.IsComplete = true
	v.URL = &url
	v.CompletedAt = &completedAt
	return nil
}

func (f *fakeSessions) SetDuration(_ context.Context, videoID string, seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sessions[videoID]
	if !ok {
		return database.ErrSessionNotFound
	}
	v.Duration = seconds
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[videoID]; !ok {
		return database.ErrSessionNotFound
	}
	delete(f.sessions, videoID)
	return nil
}

func (f *fakeSessions) GetStats(_ context.Context) (*database.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &database.Stats{}
	for _, v := range f.sessions {
		stats.TotalVideos++
		if v.IsComplete {
			stats.CompletedVideos++
			stats.StoredBytes += v.TotalSize
			stats.TotalDuration += int64(v.Duration)
		}
	}
	return stats, nil
}

func (f *fakeSessions) get(videoID string) *database.VideoUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[videoID]
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// --- In-memory ObjectStore ---

type fakeMultipart struct {
	key         string
	contentType string
	parts       map[int][]byte
	etags       map[int]string
	attempts    map[int]int
}

type fakeStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	multiparts   map[string]*fakeMultipart
	nextUploadID int

	// partFailures[n] makes the next N attempts at part n fail.
	partFailures map[int]int
	// uploadPartHook runs at the start of every part upload.
	uploadPartHook func(partNumber int)

	aborted    []string
	completed  []string
	attemptLog map[int]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
		multiparts:   make(map[string]*fakeMultipart),
		partFailures: make(map[int]int),
		attemptLog:   make(map[int]int),
	}
}

func (f *fakeStore) Put(_ context.Context, key string, data io.Reader, _ int64, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = buf
	f.contentTypes[key] = contentType
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj)), nil
}

func (f *fakeStore) GetRange(_ context.Context, key string, start, end int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	if start < 0 || start >= int64(len(obj)) {
		return nil, fmt.Errorf("range start %d out of bounds for %s", start, key)
	}
	if end >= int64(len(obj)) {
		end = int64(len(obj)) - 1
	}
	return io.NopCloser(bytes.NewReader(obj[start : end+1])), nil
}

func (f *fakeStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Size: int64(len(obj)), ContentType: f.contentTypes[key]}, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	delete(f.contentTypes, key)
	return nil
}

func (f *fakeStore) CreateMultipart(_ context.Context, key, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUploadID++
	uploadID := fmt.Sprintf("upload-%d", f.nextUploadID)
	f.multiparts[uploadID] = &fakeMultipart{
		key:         key,
		contentType: contentType,
		parts:       make(map[int][]byte),
		etags:       make(map[int]string),
		attempts:    make(map[int]int),
	}
	return uploadID, nil
}

func (f *fakeStore) UploadPart(_ context.Context, key, uploadID string, partNumber int, data io.Reader, _ int64) (storage.Part, error) {
	if hook := f.uploadPartHook; hook != nil {
		hook(partNumber)
	}

	f.mu.Lock()
	mp, ok := f.multiparts[uploadID]
	if !ok {
		f.mu.Unlock()
		return storage.Part{}, fmt.Errorf("no such upload %s", uploadID)
	}
	mp.attempts[partNumber]++
	f.attemptLog[partNumber]++
	if f.partFailures[partNumber] > 0 {
		f.partFailures[partNumber]--
		f.mu.Unlock()
		return storage.Part{}, errors.New("simulated transient store error")
	}
	f.mu.Unlock()

	buf, err := io.ReadAll(data)
	if err != nil {
		return storage.Part{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	etag := fmt.Sprintf("etag-%s-%d", uploadID, partNumber)
	mp.parts[partNumber] = buf
	mp.etags[partNumber] = etag
	return storage.Part{Number: partNumber, ETag: etag}, nil
}

// CompleteMultipart enforces the object-store contract: the manifest must be
// ascending, gap-free from 1, with ETags matching the uploaded parts.
func (f *fakeStore) CompleteMultipart(_ context.Context, key, uploadID string, parts []storage.Part) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mp, ok := f.multiparts[uploadID]
	if !ok {
		return fmt.Errorf("no such upload %s", uploadID)
	}
	if !sort.SliceIsSorted(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number }) {
		return errors.New("completion manifest not sorted by part number")
	}
	var assembled []byte
	for i, p := range parts {
		if p.Number != i+1 {
			return fmt.Errorf("manifest gap: position %d holds part %d", i, p.Number)
		}
		if mp.etags[p.Number] != p.ETag {
			return fmt.Errorf("etag mismatch for part %d", p.Number)
		}
		assembled = append(assembled, mp.parts[p.Number]...)
	}
	f.objects[key] = assembled
	f.contentTypes[key] = mp.contentType
	f.completed = append(f.completed, uploadID)
	delete(f.multiparts, uploadID)
	return nil
}

func (f *fakeStore) AbortMultipart(_ context.Context, _, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, uploadID)
	delete(f.multiparts, uploadID)
	return nil
}

func (f *fakeStore) object(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key]
}

func (f *fakeStore) attempts(partNumber int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attemptLog[partNumber]
}

// --- Shared fixture ---

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:            "http://test",
		MaxFileSize:        1 << 20,
		ChunkSize:          4,
		MultipartThreshold: 8,
		UploadConcurrency:  2,
		UploadMaxRetries:   3,
		UploadRetryBase:    time.Millisecond,
		ProbeBytes:         1 << 20,
		MaxRangeSpan:       8,
	}
}

func patternBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}
