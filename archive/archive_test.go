package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineflow/config"
)

// fakeS3 accepts bucket and object requests and records them.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodHead && key == "":
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
	case r.Method == http.MethodPut && key == "":
		f.buckets[bucket] = true
	case r.Method == http.MethodPut:
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) seen(req string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == req {
			return true
		}
	}
	return false
}

func newTestUploader(t *testing.T) (*Uploader, *fakeS3) {
	t.Helper()
	fake := &fakeS3{buckets: make(map[string]bool)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	u, err := New(&config.ArchiveConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		Bucket:    "reports",
		Prefix:    "orders",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	return u, fake
}

func TestEnsureBucketAndPut(t *testing.T) {
	u, fake := newTestUploader(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, u.EnsureBucket(ctx))
	assert.True(t, fake.seen("PUT /reports/") || fake.seen("PUT /reports"))

	key, err := u.Put(ctx, "L1/2026/03/10/o-1.xlsx", []byte("xlsx"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "orders/L1/2026/03/10/o-1.xlsx", key)
	assert.True(t, fake.seen("PUT /reports/orders/L1/2026/03/10/o-1.xlsx"))
}

func TestOrderReportName(t *testing.T) {
	at := time.Date(2026, 3, 10, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	assert.Equal(t, "L1/2026/03/11/o-7.xlsx", OrderReportName("L1", "o-7", at))
}
