// Package storage abstracts the object bucket that holds bridge photos.
package storage

import (
	"context"
	"time"
)

// Object is a listed key with its metadata.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is a flat key/value bucket. Missing keys yield common.ErrNotFound.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
}
