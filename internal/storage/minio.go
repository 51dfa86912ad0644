package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/testforge/casegen/internal/config"
)

// ErrObjectNotFound is returned by Get for a missing key
var ErrObjectNotFound = errors.New("object not found")

// Bucket is one S3-compatible bucket reached through minio-go
type Bucket struct {
	client *minio.Client
	name   string
}

// OpenBucket connects to the bucket described by cfg. It does not contact
// the server; call EnsureExists for that.
func OpenBucket(cfg config.StorageConfig) (*Bucket, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: bucket name is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connecting to %s: %w", cfg.Endpoint, err)
	}
	return &Bucket{client: client, name: cfg.Bucket}, nil
}

// Name returns the bucket name
func (b *Bucket) Name() string { return b.name }

// EnsureExists creates the bucket on first use
func (b *Bucket) EnsureExists(ctx context.Context) error {
	found, err := b.client.BucketExists(ctx, b.name)
	if err != nil {
		return fmt.Errorf("storage: probing bucket %s: %w", b.name, err)
	}
	if found {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage: creating bucket %s: %w", b.name, err)
	}
	return nil
}

// Put stores data under key and returns the s3:// URI of the object.
// meta is attached as user metadata.
func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: contentType, UserMetadata: meta}
	if _, err := b.client.PutObject(ctx, b.name, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}
	return b.uri(key), nil
}

// Get reads the object at key. A missing key yields ErrObjectNotFound.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("storage: get %s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return data, nil
}

func (b *Bucket) uri(key string) string {
	return "s3://" + b.name + "/" + key
}
