package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo is the subset of object metadata the service needs.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// Part identifies one uploaded part of a multipart transaction. The ETag is
// an opaque token from the object store and must be passed back verbatim at
// completion time.
type Part struct {
	Number int // 1-based
	ETag   string
}

// ObjectStore defines the object-store operations the service consumes.
// This allows swapping the S3-compatible backend for another implementation
// and keeps the upload and streaming logic testable without a live store.
type ObjectStore interface {
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// GetRange reads the inclusive byte range [start, end] of an object.
	GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error

	CreateMultipart(ctx context.Context, key, contentType string) (uploadID string, err error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, data io.Reader, size int64) (Part, error)
	// CompleteMultipart requires parts sorted ascending by Number with no
	// gaps in the sequence.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) error
	AbortMultipart(ctx context.Context, key, uploadID string) error
}

// MinioStore is an ObjectStore backed by any S3-compatible endpoint via the
// minio client. The low-level Core API exposes the raw multipart protocol.
type MinioStore struct {
	core   *minio.Core
	bucket string
}

// NewMinioStore connects to an S3-compatible endpoint.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	core, err := minio.NewCore(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &MinioStore{core: core, bucket: bucket}, nil
}

// EnsureBucket creates the configured bucket if it doesn't exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.core.Client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.core.Client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	_, err := s.core.Client.PutObject(ctx, s.bucket, key, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.core.Client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, mapMinioErr(err))
	}
	return obj, nil
}

func (s *MinioStore) GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return nil, fmt.Errorf("invalid range for object %s: %w", key, err)
	}
	obj, err := s.core.Client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get object range %s: %w", key, mapMinioErr(err))
	}
	return obj, nil
}

func (s *MinioStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.core.Client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to stat object %s: %w", key, mapMinioErr(err))
	}
	return ObjectInfo{Size: info.Size, ContentType: info.ContentType}, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.core.Client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload for %s: %w", key, err)
	}
	return uploadID, nil
}

func (s *MinioStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data io.Reader, size int64) (Part, error) {
	part, err := s.core.PutObjectPart(ctx, s.bucket, key, uploadID, partNumber, data, size, minio.PutObjectPartOptions{})
	if err != nil {
		return Part{}, fmt.Errorf("failed to upload part %d of %s: %w", partNumber, key, err)
	}
	return Part{Number: part.PartNumber, ETag: part.ETag}, nil
}

func (s *MinioStore) CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) error {
	completeParts := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completeParts = append(completeParts, minio.CompletePart{
			PartNumber: p.Number,
			ETag:       p.ETag,
		})
	}
	_, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, uploadID, completeParts, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload for %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) AbortMultipart(ctx context.Context, key, uploadID string) error {
	if err := s.core.AbortMultipartUpload(ctx, s.bucket, key, uploadID); err != nil {
		// The coordinator aborts eagerly on failure, so the janitor often
		// re-aborts a transaction that is already gone. That must read as
		// already-reclaimed, not as a sweep failure.
		return fmt.Errorf("failed to abort multipart upload for %s: %w", key, mapMinioErr(err))
	}
	return nil
}

// ChunkKey names the object holding one chunk of a video stored as
// discrete chunk objects. index is 0-based.
func ChunkKey(baseKey string, index int) string {
	return fmt.Sprintf("%s.part%05d", baseKey, index)
}

func mapMinioErr(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.Code == "NoSuchUpload" {
		return ErrObjectNotFound
	}
	return err
}
