package storage

import (
	"context"
	"net/url"
	"sync"
	"time"

	settlementapp "github.com/propledger/backend/internal/application/settlement"
)

// MemoryObject is one stored statement
type MemoryObject struct {
	Data        []byte
	ContentType string
	StoredAt    time.Time
}

// MemoryStatementStorage keeps statements in process memory. It is used
// when no bucket is configured and in tests. URLs point at BaseURL and are
// not served by anything.
type MemoryStatementStorage struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]MemoryObject
}

// NewMemoryStatementStorage creates an empty store
func NewMemoryStatementStorage() *MemoryStatementStorage {
	return &MemoryStatementStorage{
		BaseURL: "memory://statements",
		objects: make(map[string]MemoryObject),
	}
}

// Put stores a copy of data under key
func (s *MemoryStatementStorage) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = MemoryObject{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
		StoredAt:    time.Now(),
	}
	return nil
}

// DownloadURL returns a placeholder URL for key
func (s *MemoryStatementStorage) DownloadURL(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errEmptyKey
	}
	if expiresIn <= 0 {
		expiresIn = defaultPresignExpiration
	}
	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/" + key + "?expires=" + url.QueryEscape(expiresAt.UTC().Format(time.RFC3339)), expiresAt, nil
}

// Exists reports whether key was stored
func (s *MemoryStatementStorage) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Get returns the object stored under key
func (s *MemoryStatementStorage) Get(key string) (MemoryObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Len returns the number of stored objects
func (s *MemoryStatementStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ settlementapp.StatementStorage = (*MemoryStatementStorage)(nil)
