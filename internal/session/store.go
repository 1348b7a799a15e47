package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"transcription-studio/internal/domain"
)

// ErrNotFound is returned by blob stores when the key holds no value.
var ErrNotFound = errors.New("blob not found")

// BlobStore is a key-value slot for opaque snapshot payloads.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend names accepted in settings.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMinio  = "minio"
	BackendMemory = "memory"
)

// Open builds the blob store selected by settings.
func Open(ctx context.Context, settings domain.Settings) (BlobStore, error) {
	switch strings.ToLower(strings.TrimSpace(settings.Persistence)) {
	case "", BackendFile:
		return NewFileStore(settings.DataDir)
	case BackendRedis:
		return DialRedis(ctx, settings.RedisAddr, settings.RedisPassword, settings.RedisDB)
	case BackendMinio:
		return DialMinio(ctx, MinioOptions{
			Endpoint:  settings.MinioEndpoint,
			AccessKey: settings.MinioAccessKey,
			SecretKey: settings.MinioSecretKey,
			Bucket:    settings.MinioBucket,
			UseSSL:    settings.MinioUseSSL,
		})
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", settings.Persistence)
	}
}
