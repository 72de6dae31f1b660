package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"pinscraper/pkg/config"
	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/retry"
)

// maxMediaSize bounds a single response body
const maxMediaSize int64 = 200 << 20

// HTTPFetcher downloads media over HTTP with retries
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	attempts  int
	backoff   retry.BackoffStrategy
	maxSize   int64
	logger    logger.Logger
}

// NewHTTPFetcher creates a fetcher from the download configuration
func NewHTTPFetcher(cfg config.DownloadConfig, log logger.Logger) *HTTPFetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		attempts:  attempts,
		backoff:   retry.NewKindBackoff(),
		maxSize:   maxMediaSize,
		logger:    log.WithField("component", "fetcher"),
	}
}

// WithBackoff replaces the retry backoff strategy
func (f *HTTPFetcher) WithBackoff(b retry.BackoffStrategy) *HTTPFetcher {
	f.backoff = b
	return f
}

// WithMaxSize replaces the largest accepted response body
func (f *HTTPFetcher) WithMaxSize(n int64) *HTTPFetcher {
	f.maxSize = n
	return f
}

// Fetch downloads url, retrying network errors, 429 and 5xx responses
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return retry.DoWithResult(func() ([]byte, error) {
		return f.fetchOnce(ctx, url)
	}, &retry.Config{
		MaxAttempts: f.attempts,
		Backoff:     f.backoff,
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      f.logger.WithField("url", url),
	})
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindInputValidation, "fetch", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, "fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errs.Error{
			Kind:    errs.KindHTTPStatus,
			Op:      "fetch",
			Message: fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, url),
			Code:    resp.StatusCode,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, "fetch", fmt.Errorf("read body: %w", err))
	}
	if int64(len(data)) > f.maxSize {
		return nil, errs.New(errs.KindInputValidation, "fetch",
			fmt.Sprintf("media at %s exceeds %d bytes", url, f.maxSize))
	}
	return data, nil
}
