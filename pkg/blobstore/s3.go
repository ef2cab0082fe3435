package blobstore

import (
	"bytes"
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/quantumlayerhq/sbom-enrich/pkg/config"
	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

// S3Blobstore is the object-storage Blobstore implementation, backed by any
// S3-compatible endpoint (MinIO, AWS S3, etc) via minio-go.
type S3Blobstore struct {
	client *minio.Client
	bucket string
}

// NewS3Blobstore connects to cfg.Endpoint and ensures cfg.Bucket exists.
func NewS3Blobstore(ctx context.Context, cfg config.BlobstoreConfig) (*S3Blobstore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, models.NewError(models.KindStorage, "blobstore.NewS3Blobstore", cfg.Endpoint, err)
	}

	s := &S3Blobstore{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *S3Blobstore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return models.NewError(models.KindStorage, "blobstore.S3Blobstore.ensureBucket", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return models.NewError(models.KindStorage, "blobstore.S3Blobstore.ensureBucket", s.bucket, err)
	}
	return nil
}

// Put uploads raw bytes under key with metadata attached as S3 user metadata.
func (s *S3Blobstore) Put(ctx context.Context, key string, raw []byte, metadata map[string]string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: metadata,
	})
	if err != nil {
		return "", models.NewError(models.KindStorage, "blobstore.S3Blobstore.Put", key, err)
	}
	return key, nil
}

// Delete removes the object identified by key.
func (s *S3Blobstore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return models.NewError(models.KindStorage, "blobstore.S3Blobstore.Delete", key, err)
	}
	return nil
}

var _ Blobstore = (*S3Blobstore)(nil)

// New constructs the Blobstore implementation selected by cfg.Debug: the
// filesystem implementation for local development and tests, or the
// object-storage implementation otherwise. The CLI's --debug flag sets
// cfg.Debug; it selects only the blob store, and the document store is
// the configured database either way.
func New(ctx context.Context, cfg config.BlobstoreConfig) (Blobstore, error) {
	if cfg.Debug {
		return NewFSBlobstore(cfg.LocalDir)
	}
	return NewS3Blobstore(ctx, cfg)
}
