package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/propledger/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeS3 answers the handful of path-style S3 calls the storage makes
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	buckets map[string]bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		buckets: make(map[string]bool),
	}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, _, hasKey := strings.Cut(path, "/")

	switch {
	case !hasKey && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case !hasKey && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[path] = body
		f.types[path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead:
		if _, ok := f.objects[path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Storage(t *testing.T, endpoint string) *S3StatementStorage {
	t.Helper()
	s, err := NewS3StatementStorage(context.Background(), &config.StorageConfig{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		Bucket:          "statements",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return s
}

func TestNewS3StatementStorage_Validation(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewS3StatementStorage(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := NewS3StatementStorage(context.Background(), &config.StorageConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("options apply", func(t *testing.T) {
		s, err := NewS3StatementStorage(context.Background(), &config.StorageConfig{
			Bucket:          "b",
			AccessKeyID:     "k",
			SecretAccessKey: "s",
		}, WithPresignExpiration(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "b", s.Bucket())
		assert.Equal(t, time.Hour, s.presignExpiration)
	})
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "", normalizeEndpoint(""))
	assert.Equal(t, "http://localhost:9000", normalizeEndpoint("http://localhost:9000"))
	assert.Equal(t, "https://minio.internal:9000", normalizeEndpoint("minio.internal:9000"))
}

func TestS3StatementStorage_PutAndExists(t *testing.T) {
	fake := newFakeS3()
	server := httptest.NewServer(fake)
	defer server.Close()

	s := newTestS3Storage(t, server.URL)
	ctx := context.Background()

	require.NoError(t, s.EnsureBucket(ctx))
	assert.True(t, fake.buckets["statements"])

	key := "statements/tenant/2024-01.csv"
	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Put(ctx, key, []byte("from,to,amount\n"), "text/csv"))
	assert.Equal(t, "from,to,amount\n", string(fake.objects["statements/"+key]))
	assert.Equal(t, "text/csv", fake.types["statements/"+key])

	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestS3StatementStorage_DownloadURL(t *testing.T) {
	s := newTestS3Storage(t, "http://localhost:9000")

	url, expiresAt, err := s.DownloadURL(context.Background(), "statements/a.csv", 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "localhost:9000/statements/statements/a.csv")
	assert.Contains(t, url, "X-Amz-Signature")
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)
}

func TestS3StatementStorage_EmptyKey(t *testing.T) {
	s := newTestS3Storage(t, "http://localhost:9000")
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "", nil, "text/csv"), errEmptyKey)
	_, err := s.Exists(ctx, "")
	assert.ErrorIs(t, err, errEmptyKey)
	_, _, err = s.DownloadURL(ctx, "", 0)
	assert.ErrorIs(t, err, errEmptyKey)
}

func TestMemoryStatementStorage(t *testing.T) {
	s := NewMemoryStatementStorage()
	ctx := context.Background()

	data := []byte("a,b\n")
	require.NoError(t, s.Put(ctx, "k.csv", data, "text/csv"))
	data[0] = 'z'

	obj, ok := s.Get("k.csv")
	require.True(t, ok)
	assert.Equal(t, "a,b\n", string(obj.Data))
	assert.Equal(t, "text/csv", obj.ContentType)
	assert.Equal(t, 1, s.Len())

	exists, err := s.Exists(ctx, "k.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	url, _, err := s.DownloadURL(ctx, "k.csv", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "memory://statements/k.csv?expires="))

	assert.ErrorIs(t, s.Put(ctx, "", nil, ""), errEmptyKey)
}
