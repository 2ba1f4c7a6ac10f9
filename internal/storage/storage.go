package storage

import (
	"context"
	"errors"
	"time"
)

// ObjectStore is the subset of an S3-compatible bucket the service needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

var (
	ErrNotConfigured = errors.New("storage_not_configured")
	ErrInvalidObject = errors.New("invalid_object")
)

const DefaultPresignTTL = time.Hour
