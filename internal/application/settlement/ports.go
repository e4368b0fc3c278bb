package settlement

import (
	"context"
	"time"
)

// StatementStorage persists exported settlement statements
type StatementStorage interface {
	// Put stores data under key, replacing any existing object
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// DownloadURL returns a time-limited URL for key
	DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)
}
