// Package download fetches catalog assets with bearer authentication and
// streams them to the raster store.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"satwatch/internal/catalog"
)

// ErrAuthExhausted is returned when a request still fails authorization after
// one token refresh. The download is not retried further.
var ErrAuthExhausted = errors.New("authorization exhausted after token refresh")

// DownloadError reports a non-auth HTTP failure. Not retried automatically.
type DownloadError struct {
	Status int
	URL    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed with status: %d", e.URL, e.Status)
}

// copyChunkSize bounds memory while streaming response bodies to disk.
const copyChunkSize = 64 * 1024

// TokenProvider supplies bearer tokens and refreshes rejected ones.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context, stale string) (string, error)
}

// Downloader executes catalog assets and persists their bodies.
type Downloader struct {
	tokens     TokenProvider
	httpClient *http.Client
}

// New creates a downloader. The transport timeout is generous because
// processing-graph assets compute the composite server-side before streaming.
func New(tokens TokenProvider) *Downloader {
	return &Downloader{
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		},
	}
}

// Fetch executes the asset request and streams the body to destPath. On an
// authorization-expired response the token is refreshed exactly once and the
// request retried; a second rejection fails with ErrAuthExhausted. A partial
// file is never left at destPath: bytes stream into a side file that is
// renamed over the target only after a verified, complete write.
func (d *Downloader) Fetch(ctx context.Context, asset catalog.Asset, destPath string) error {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}

	resp, err := d.do(ctx, asset, token)
	if err != nil {
		return err
	}

	if authRejected(resp.StatusCode) {
		resp.Body.Close()

		token, err = d.tokens.Refresh(ctx, token)
		if err != nil {
			return fmt.Errorf("token refresh failed: %w", err)
		}
		resp, err = d.do(ctx, asset, token)
		if err != nil {
			return err
		}
		if authRejected(resp.StatusCode) {
			resp.Body.Close()
			return fmt.Errorf("%w: %s", ErrAuthExhausted, asset.URL)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{Status: resp.StatusCode, URL: asset.URL}
	}

	return writeStream(resp, destPath)
}

func (d *Downloader) do(ctx context.Context, asset catalog.Asset, token string) (*http.Response, error) {
	var body io.Reader
	if len(asset.Body) > 0 {
		body = bytes.NewReader(asset.Body)
	}

	req, err := http.NewRequestWithContext(ctx, asset.Method, asset.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", catalog.UserAgent)
	if asset.ContentType != "" {
		req.Header.Set("Content-Type", asset.ContentType)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	return resp, nil
}

// writeStream copies the body to a .part file in bounded chunks, verifies the
// byte count against Content-Length when present, then renames into place.
func writeStream(resp *http.Response, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	partPath := destPath + ".part"
	f, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}

	written, err := io.CopyBuffer(f, resp.Body, make([]byte, copyChunkSize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && resp.ContentLength >= 0 && written != resp.ContentLength {
		err = fmt.Errorf("short body: wrote %d of %d bytes", written, resp.ContentLength)
	}
	if err != nil {
		if rmErr := os.Remove(partPath); rmErr != nil {
			slog.Warn("failed to remove partial download", "path", partPath, "error", rmErr)
		}
		return fmt.Errorf("failed to stream download: %w", err)
	}

	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("failed to finalize download: %w", err)
	}
	return nil
}

func authRejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
