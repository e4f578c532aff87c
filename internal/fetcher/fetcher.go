// Package fetcher retrieves cited source documents so their text can feed
// evidence grounding and recency extraction. Fetching is best-effort: a
// source that cannot be retrieved keeps its citation but carries no full
// text.
package fetcher

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a source document is read.
const maxBodyBytes = 2 << 20

// Options configures the source fetcher.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// PerHostRate limits requests per second against any single host.
	// Default 2.
	PerHostRate rate.Limit
}

// Document is a fetched source document reduced to plain text.
type Document struct {
	URL         string
	ContentType string
	Text        string
}

// Fetcher retrieves source documents with per-host rate limiting and retry.
type Fetcher struct {
	client *http.Client
	opts   Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Fetcher with the given options.
func New(opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "verify-cli/1.0"
	}
	if opts.PerHostRate == 0 {
		opts.PerHostRate = 2
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: map[string]*rate.Limiter{},
	}
}

func (f *Fetcher) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.PerHostRate, 1)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch retrieves one source document and reduces it to plain text. HTML
// bodies are decoded per their declared charset and stripped of markup;
// anything else is returned as-is up to the size cap.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, eris.Errorf("fetcher: unsupported URL scheme: %s", rawURL)
	}

	if err := f.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: build request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html, text/plain, application/xhtml+xml")

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("fetcher: %s returned status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read body")
	}

	contentType := resp.Header.Get("Content-Type")
	text, err := ExtractText(body, contentType)
	if err != nil {
		return nil, err
	}

	return &Document{
		URL:         rawURL,
		ContentType: contentType,
		Text:        text,
	}, nil
}

func (f *Fetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if attempt > 0 {
			f.backoff(ctx, attempt)
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			zap.L().Warn("fetcher: request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("fetcher: status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}
	return nil, eris.Wrapf(lastErr, "fetcher: %s failed after %d attempts", req.URL.String(), f.opts.MaxRetries)
}

func (f *Fetcher) backoff(ctx context.Context, attempt int) {
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}
