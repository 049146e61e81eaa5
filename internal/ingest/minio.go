package ingest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/genbridge/genbridge/internal/config"
)

// MinioStore implements ObjectStore on an S3-compatible backend.
type MinioStore struct {
	core   *minio.Core
	bucket string
}

func NewMinioStore(cfg config.StorageConfig) (*MinioStore, error) {
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &MinioStore{core: core, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist. Called once at
// startup.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.core.Client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.core.Client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.core.Client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("putting object %q: %w", key, err)
	}
	return nil
}

func (s *MinioStore) NewMultipart(ctx context.Context, key, contentType string) (MultipartUpload, error) {
	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("starting multipart upload for %q: %w", key, err)
	}
	return &minioMultipart{store: s, key: key, uploadID: uploadID}, nil
}

type minioMultipart struct {
	store    *MinioStore
	key      string
	uploadID string

	mu    sync.Mutex
	parts []minio.CompletePart
}

func (u *minioMultipart) PutPart(ctx context.Context, partNumber int, body io.Reader, size int64) error {
	part, err := u.store.core.PutObjectPart(ctx, u.store.bucket, u.key, u.uploadID, partNumber, body, size, minio.PutObjectPartOptions{})
	if err != nil {
		return fmt.Errorf("uploading part %d of %q: %w", partNumber, u.key, err)
	}

	u.mu.Lock()
	u.parts = append(u.parts, minio.CompletePart{PartNumber: part.PartNumber, ETag: part.ETag})
	u.mu.Unlock()
	return nil
}

func (u *minioMultipart) Complete(ctx context.Context) error {
	u.mu.Lock()
	parts := u.parts
	u.mu.Unlock()

	_, err := u.store.core.CompleteMultipartUpload(ctx, u.store.bucket, u.key, u.uploadID, parts, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("completing multipart upload for %q: %w", u.key, err)
	}
	return nil
}

func (u *minioMultipart) Abort(ctx context.Context) error {
	if err := u.store.core.AbortMultipartUpload(ctx, u.store.bucket, u.key, u.uploadID); err != nil {
		return fmt.Errorf("aborting multipart upload for %q: %w", u.key, err)
	}
	return nil
}

var _ ObjectStore = (*MinioStore)(nil)
