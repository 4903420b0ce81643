package bili_archiver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	DefaultFetchAttempts = 3
	DefaultFetchDelay    = 10 * time.Second
)

// ProgressFunc receives byte-level progress of a single fetch. expected is -1
// when the server did not report a content length.
type ProgressFunc func(downloaded int, expected int)

// Fetcher is a retrying network-to-file downloader, shared by the video,
// audio and image stages of the pipeline.
type Fetcher struct {
	client   *http.Client
	header   http.Header
	attempts uint
	delay    time.Duration
	progress ProgressFunc
}

type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the http.Client used for stream requests.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithHeader sets headers added to every stream request (the platform CDN
// requires Referer and User-Agent).
func WithHeader(h http.Header) FetcherOption {
	return func(f *Fetcher) { f.header = h }
}

// WithRetryPolicy overrides the attempt count and fixed inter-attempt delay.
func WithRetryPolicy(attempts uint, delay time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.attempts = attempts
		f.delay = delay
	}
}

// WithProgress sets a callback for byte-level download progress.
func WithProgress(p ProgressFunc) FetcherOption {
	return func(f *Fetcher) { f.progress = p }
}

func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   http.DefaultClient,
		attempts: DefaultFetchAttempts,
		delay:    DefaultFetchDelay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch streams the response body of url into the file at path, overwriting
// any existing content. Each failed attempt is retried after a fixed delay,
// up to the configured attempt count; a later attempt's write truncates
// whatever a failed attempt left behind. The outcome is reported as a
// boolean and logged; errors never propagate to the caller.
func (f *Fetcher) Fetch(ctx context.Context, url string, path string) bool {
	log := Logger(ctx).Sugar().Named("fetcher")
	err := retry.Do(
		func() error { return f.fetchOnce(ctx, url, path) },
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Warnf("fetch attempt %d of %s failed: %v", n+1, url, err)
		}),
	)
	if err != nil {
		log.Errorf("fetch of %s to %s failed after %d attempts: %v", url, path, f.attempts, err)
		return false
	}
	return true
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range f.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0775); err != nil {
		return fmt.Errorf("failed to create target dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open target file: %w", err)
	}
	defer file.Close()

	expected := int(resp.ContentLength)
	var w io.Writer = file
	if f.progress != nil {
		f.progress(0, expected)
		w = io.MultiWriter(file, &progressWriter{progress: f.progress, expected: expected})
	}
	if _, err := io.Copy(w, &readerContext{ctx: ctx, r: resp.Body}); err != nil {
		return fmt.Errorf("failed to save stream: %w", err)
	}
	return nil
}

// progressWriter ignores the data but forwards the cumulative byte count to
// the progress callback; keep it last in an io.MultiWriter so failed writes
// are not counted.
type progressWriter struct {
	progress   ProgressFunc
	expected   int
	downloaded int
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.downloaded += len(p)
	w.progress(w.downloaded, w.expected)
	return len(p), nil
}

// A context-aware io.Reader wrapper, so an io.Copy from a response body stops
// when the context is cancelled.
type readerContext struct {
	ctx context.Context
	r   io.Reader
}

func (r *readerContext) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
