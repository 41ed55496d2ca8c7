package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record exists under a key.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps transient I/O failures reaching the store.
	ErrUnavailable = errors.New("store unavailable")
)

// RecordStore is the durable key-value store backing the dashboard. Values
// are opaque JSON blobs; list-valued records support atomic appends but no
// transactions or compare-and-swap across keys.
type RecordStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Append atomically appends one element to a list-valued record,
	// creating the list if absent.
	Append(ctx context.Context, key string, element []byte) error
	// GetList returns all elements of a list-valued record in insertion
	// order. An absent key yields an empty list, not ErrNotFound.
	GetList(ctx context.Context, key string) ([][]byte, error)
	Ping(ctx context.Context) error
	Close() error
}
