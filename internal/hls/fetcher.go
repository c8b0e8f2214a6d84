package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmylchreest/streampulse/internal/httpclient"
)

// FetchError is the retrieval error kind: it covers transport failures,
// non-2xx responses, and parse failures, carrying the HTTP status when one
// was received.
type FetchError struct {
	URL        string
	StatusCode *int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != nil {
		return fmt.Sprintf("fetching playlist %s: %v (status %d)", e.URL, e.Err, *e.StatusCode)
	}
	return fmt.Sprintf("fetching playlist %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves and parses HLS playlists over HTTP.
type Fetcher struct {
	client  *httpclient.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher. The timeout bounds the whole fetch including
// body read; zero means the client default.
func NewFetcher(client *httpclient.Client, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, timeout: timeout, logger: logger}
}

// Fetch retrieves the playlist at url and parses it. All failure modes
// return a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Manifest, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		fetchErr := &FetchError{URL: url, Err: err}
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			code := statusErr.StatusCode
			fetchErr.StatusCode = &code
		}
		return nil, fetchErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}

	manifest, err := Parse(data)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	f.logger.Debug("playlist fetched",
		slog.String("url", url),
		slog.Bool("master", manifest.IsMaster),
		slog.Int("segments", len(manifest.Segments)),
		slog.Int64("media_sequence", manifest.MediaSequence),
	)

	return manifest, nil
}
