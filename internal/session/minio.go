package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures the object storage connection.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// MinioStore keeps each key as one JSON object in a bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore wraps an existing client.
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// DialMinio connects and makes sure the bucket exists.
func DialMinio(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	if opts.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}
	return NewMinioStore(client, opts.Bucket), nil
}

func objectName(key string) string {
	return key + ".json"
}

// Get downloads the object for key.
func (m *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioError(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapMinioError(key, err)
	}
	return data, nil
}

// Set uploads the object, replacing any previous version.
func (m *MinioStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectName(key), bytes.NewReader(value), int64(len(value)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("minio put %s: %w", key, err)
	}
	return nil
}

// Delete removes the object. Missing objects are not an error.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	err := m.client.RemoveObject(ctx, m.bucket, objectName(key), minio.RemoveObjectOptions{})
	if err != nil && !errors.Is(mapMinioError(key, err), ErrNotFound) {
		return mapMinioError(key, err)
	}
	return nil
}

func mapMinioError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("minio object %s: %w", key, err)
}
