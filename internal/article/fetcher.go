package article

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

// ErrFetch indicates the raw document could not be retrieved.
var ErrFetch = eris.New("failure fetching article document")

const (
	defaultFetchTimeout  = 10 * time.Second
	defaultMaxBodyBytes  = 10 * 1024 * 1024
	defaultFetchAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultAcceptHeaders = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Fetcher retrieves the raw markup for an article address.
type Fetcher interface {
	Fetch(ctx context.Context, address string) (string, error)
}

// FetcherOptions configures the HTTP-backed fetcher.
type FetcherOptions struct {
	HTTPClient   *http.Client
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
	Logger       *logrus.Logger
}

// HTTPFetcher downloads documents with a single bounded GET request. It never retries.
type HTTPFetcher struct {
	client       *http.Client
	maxBodyBytes int64
	userAgent    string
	logger       *logrus.Logger
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewFetcher constructs an HTTPFetcher, applying defaults for unset options.
func NewFetcher(opts FetcherOptions) *HTTPFetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	maxBytes := opts.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}

	agent := strings.TrimSpace(opts.UserAgent)
	if agent == "" {
		agent = defaultFetchAgent
	}

	return &HTTPFetcher{
		client:       client,
		maxBodyBytes: maxBytes,
		userAgent:    agent,
		logger:       opts.Logger,
	}
}

// Fetch returns the document body decoded to UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, address string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, http.NoBody)
	if err != nil {
		return "", eris.Wrapf(ErrFetch, "building request for %s: %v", address, err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", defaultAcceptHeaders)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.logError(logrus.Fields{"address": address}, err, "requesting article document")
		return "", eris.Wrapf(ErrFetch, "requesting %s: %v", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := eris.Wrapf(ErrFetch, "unexpected status %d for %s", resp.StatusCode, address)
		f.logError(logrus.Fields{"address": address, "status": resp.StatusCode}, err, "article document rejected")
		return "", err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		f.logError(logrus.Fields{"address": address}, err, "reading article document")
		return "", eris.Wrapf(ErrFetch, "reading body of %s: %v", address, err)
	}
	if int64(len(raw)) > f.maxBodyBytes {
		err := eris.Wrapf(ErrFetch, "body of %s exceeds %d bytes", address, f.maxBodyBytes)
		f.logError(logrus.Fields{"address": address, "limit": f.maxBodyBytes}, err, "article document too large")
		return "", err
	}

	reader, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", eris.Wrapf(ErrFetch, "decoding body of %s: %v", address, err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", eris.Wrapf(ErrFetch, "decoding body of %s: %v", address, err)
	}

	if f.logger != nil {
		f.logger.WithFields(logrus.Fields{
			"address":     address,
			"bytes":       len(body),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
		}).Debug("fetched article document")
	}

	return string(body), nil
}

func (f *HTTPFetcher) logError(fields logrus.Fields, err error, message string) {
	if f.logger == nil || err == nil {
		return
	}

	entry := f.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
