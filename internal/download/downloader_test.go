package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satwatch/internal/catalog"
)

// fakeTokens hands out token-1, token-2, ... and counts refreshes.
type fakeTokens struct {
	issued    atomic.Int64
	refreshes atomic.Int64
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) {
	if f.issued.Load() == 0 {
		f.issued.Store(1)
	}
	return token(f.issued.Load()), nil
}

func (f *fakeTokens) Refresh(ctx context.Context, stale string) (string, error) {
	f.refreshes.Add(1)
	f.issued.Add(1)
	return token(f.issued.Load()), nil
}

func token(n int64) string {
	return "token-" + string(rune('0'+n))
}

func TestFetchWritesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Write([]byte("raster-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "Sentinel2_X", "2025_01.tiff")
	d := New(&fakeTokens{})

	err := d.Fetch(context.Background(), catalog.Asset{Method: http.MethodGet, URL: srv.URL}, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "raster-bytes", string(data))

	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err), "part file must not linger")
}

func TestFetchRefreshesOnceOnExpiredAuth(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer token-2", r.Header.Get("Authorization"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	dest := filepath.Join(t.TempDir(), "out.tiff")
	d := New(tokens)

	err := d.Fetch(context.Background(), catalog.Asset{Method: http.MethodGet, URL: srv.URL}, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(2), attempts.Load())
	assert.Equal(t, int64(1), tokens.refreshes.Load())
}

func TestFetchAuthExhaustedAfterSecondRejection(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	dest := filepath.Join(t.TempDir(), "out.tiff")
	d := New(tokens)

	err := d.Fetch(context.Background(), catalog.Asset{Method: http.MethodGet, URL: srv.URL}, dest)
	require.ErrorIs(t, err, ErrAuthExhausted)

	// exactly two attempts, never a third
	assert.Equal(t, int64(2), attempts.Load())
	assert.Equal(t, int64(1), tokens.refreshes.Load())

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchNonAuthErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	d := New(tokens)

	err := d.Fetch(context.Background(), catalog.Asset{Method: http.MethodGet, URL: srv.URL},
		filepath.Join(t.TempDir(), "out.tiff"))

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, http.StatusNotFound, dlErr.Status)
	assert.Equal(t, int64(1), attempts.Load())
	assert.Equal(t, int64(0), tokens.refreshes.Load())
}

func TestFetchTruncatedBodyLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// promise more bytes than are sent
		w.Header().Set("Content-Length", "1024")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("short"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// connection closes with 5 of 1024 bytes written
		conn, _, _ := w.(http.Hijacker).Hijack()
		conn.Close()
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.tiff")
	d := New(&fakeTokens{})

	err := d.Fetch(context.Background(), catalog.Asset{Method: http.MethodGet, URL: srv.URL}, dest)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no byte-count mismatched file may remain")
	_, statErr = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(statErr), "partial file must be removed")
}

func TestFetchPostsAssetBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte("composite"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.tiff")
	d := New(&fakeTokens{})

	asset := catalog.Asset{
		Method:      http.MethodPost,
		URL:         srv.URL,
		Body:        []byte(`{"process_graph":{}}`),
		ContentType: "application/json",
	}
	require.NoError(t, d.Fetch(context.Background(), asset, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "composite", string(data))
}
