package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements ObjectStore against any S3-compatible endpoint
type MinioStore struct {
	client *minio.Client
}

// MinioConfig holds the connection settings for an S3-compatible store
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewMinioStore creates an ObjectStore backed by an S3-compatible endpoint
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

// List returns all object keys under prefix whose names end in suffix,
// in listing order.
func (s *MinioStore) List(ctx context.Context, bucket, prefix, suffix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s/%s: %w", bucket, prefix, obj.Err)
		}
		if suffix == "" || HasSuffixFold(obj.Key, suffix) {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}

// Fetch downloads one object to localPath
func (s *MinioStore) Fetch(ctx context.Context, bucket, key, localPath string) error {
	if err := s.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to fetch %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Store uploads localPath as one object at key
func (s *MinioStore) Store(ctx context.Context, bucket, key, localPath string) error {
	contentType := "application/octet-stream"
	if HasSuffixFold(key, ".svg") {
		contentType = "image/svg+xml"
	} else if HasSuffixFold(key, ".jpg") || HasSuffixFold(key, ".jpeg") {
		contentType = "image/jpeg"
	}
	if _, err := s.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("failed to store %s/%s: %w", bucket, key, err)
	}
	return nil
}
