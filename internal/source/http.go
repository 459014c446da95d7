package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/JonMunkholm/vitibrasil/internal/core"
)

// HTTPOptions configures an HTTP provider. Zero values use defaults.
type HTTPOptions struct {
	BaseURL         string        // Download prefix, e.g. http://vitibrasil.cnpuv.embrapa.br/download
	Client          *http.Client  // Default: a client with Timeout
	Timeout         time.Duration // Per-attempt limit (default: 60s)
	MaxRetries      int           // Attempts per file (default: 3)
	InitialInterval time.Duration // First retry delay (default: 500ms)
	MaxInterval     time.Duration // Retry delay cap (default: 10s)
	Logger          *slog.Logger
}

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// HTTP downloads dataset files from a base URL, retrying transient failures.
type HTTP struct {
	base   *url.URL
	client *http.Client
	lookup Lookup
	opts   HTTPOptions
	log    *slog.Logger
}

// NewHTTP returns a provider downloading from opts.BaseURL.
func NewHTTP(opts HTTPOptions, lookup Lookup) (*HTTP, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 10 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &HTTP{base: base, client: client, lookup: lookup, opts: opts, log: log}, nil
}

// URL returns the download URL of a dataset file.
func (p *HTTP) URL(def core.DatasetDefinition) string {
	return p.base.JoinPath(def.FileName).String()
}

// Open implements core.SourceProvider. Server errors, 429 and transport
// failures are retried with exponential backoff; other statuses fail at once.
func (p *HTTP) Open(ctx context.Context, id core.DatasetID) (io.ReadCloser, error) {
	def, ok := p.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownDataset, id)
	}
	target := p.URL(def)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.InitialInterval
	b.MaxInterval = p.opts.MaxInterval

	attempt := 0
	body, err := backoff.Retry(ctx, func() (io.ReadCloser, error) {
		attempt++
		return p.get(ctx, target)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.opts.MaxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.log.Warn("dataset download failed, retrying",
				"dataset", id,
				"attempt", attempt,
				"retry_in", next.String(),
				"error", err,
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}
	return body, nil
}

func (p *HTTP) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	statusErr := &StatusError{URL: target, StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, statusErr
	case resp.StatusCode >= 500:
		return nil, statusErr
	default:
		return nil, backoff.Permanent(statusErr)
	}
}
