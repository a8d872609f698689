package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lyssadev/MarkPEWeb/core/infra/logging"
	"github.com/lyssadev/MarkPEWeb/core/infra/metrics"
)

const (
	defaultMaxRetries = 3
	defaultTimeout    = 160 * time.Second
	defaultRetryDelay = 5 * time.Second
	fetchUserAgent    = "libhttpclient/1.0.0.0"
	copyChunkSize     = 8192
)

// ProgressFunc receives cumulative downloaded bytes and the declared
// total, or -1 when the remote did not send a content length.
type ProgressFunc func(downloaded, total int64)

// Fetcher downloads remote archives with bounded retries on transient
// network failure. Each call writes into a fresh uniquely named subfolder
// so concurrent fetches of the same run never collide.
type Fetcher struct {
	Client     *http.Client
	MaxRetries int
	RetryDelay time.Duration
	Progress   ProgressFunc
	Metrics    metrics.PipelineMetrics
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:     &http.Client{Timeout: defaultTimeout},
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
		Metrics:    metrics.Noop{},
	}
}

// terminalError wraps a failure that must not be retried.
type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Fetch downloads url into a new subfolder of destDir and returns the
// downloaded file path. Transient errors are retried with a fixed delay;
// HTTP error statuses are terminal.
func (f *Fetcher) Fetch(ctx context.Context, url, destDir string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= f.MaxRetries; attempt++ {
		f.Metrics.IncFetchAttempt("archive")
		path, err := f.fetchOnce(ctx, url, destDir)
		if err == nil {
			return path, nil
		}
		var terminal *terminalError
		if errors.As(err, &terminal) {
			return "", terminal.err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		logging.Warn("fetcher", "download failed", "url", url, "attempt", attempt, "error", err)
		if attempt < f.MaxRetries {
			f.Metrics.IncFetchRetry("archive")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(f.RetryDelay):
			}
		}
	}
	return "", fmt.Errorf("exceeded %d retries: %w", f.MaxRetries, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &terminalError{fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &terminalError{fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)}
	}

	total := int64(-1)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if parsed, err := strconv.ParseInt(cl, 10, 64); err == nil {
			total = parsed
		}
	}

	runFolder := filepath.Join(destDir, strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err := os.MkdirAll(runFolder, 0o755); err != nil {
		return "", &terminalError{fmt.Errorf("create fetch folder: %w", err)}
	}

	filePath := filepath.Join(runFolder, fileNameFromURL(url))
	out, err := os.Create(filePath)
	if err != nil {
		return "", &terminalError{fmt.Errorf("create download file: %w", err)}
	}

	var downloaded int64
	buf := make([]byte, copyChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				return "", &terminalError{fmt.Errorf("write download: %w", writeErr)}
			}
			downloaded += int64(n)
			if f.Progress != nil {
				f.Progress(downloaded, total)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			out.Close()
			os.RemoveAll(runFolder)
			return "", fmt.Errorf("read body: %w", readErr)
		}
	}
	if err := out.Close(); err != nil {
		return "", &terminalError{fmt.Errorf("close download: %w", err)}
	}
	if total >= 0 && downloaded < total {
		os.RemoveAll(runFolder)
		return "", fmt.Errorf("incomplete read: got %d of %d bytes", downloaded, total)
	}
	return filePath, nil
}

func fileNameFromURL(url string) string {
	parts := strings.Split(url, "/")
	name := parts[len(parts)-1]
	if idx := strings.IndexAny(name, "?#"); idx >= 0 {
		name = name[:idx]
	}
	if name == "" {
		name = "content.zip"
	}
	return name
}
