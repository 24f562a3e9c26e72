package detect

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Abhaythakor/fingerprintweb/model"
)

const (
	DefaultUserAgent   = "fingerprintweb/1.0"
	DefaultMaxBodySize = 5 << 20
)

// Fetcher performs a single HTTP round trip. It must not follow redirects itself.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*model.RawResponse, error)
}

// HTTPFetcher fetches over the network.
type HTTPFetcher struct {
	Client      *http.Client
	UserAgent   string
	MaxBodySize int64
}

// FetcherOptions configures NewHTTPFetcher.
type FetcherOptions struct {
	UserAgent   string
	MaxBodySize int64
	Insecure    bool
}

// NewTransport creates a transport tuned for many short-lived requests across hosts.
func NewTransport(insecure bool) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: insecure}, //nolint:gosec // opt-in via --insecure
	}
}

// NewHTTPFetcher creates a fetcher whose client never follows redirects, the Detector does.
func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	return &HTTPFetcher{
		Client: &http.Client{
			Transport: NewTransport(opts.Insecure),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		UserAgent:   opts.UserAgent,
		MaxBodySize: opts.MaxBodySize,
	}
}

// Fetch issues a GET for url. Non-2xx statuses are not errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*model.RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	limit := f.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}

	raw := &model.RawResponse{
		URL:    url,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}
	if isRedirect(resp.StatusCode) {
		raw.Location = resp.Header.Get("Location")
		raw.Redirected = raw.Location != ""
	}
	return raw, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

var errNoStoredResponse = errors.New("no stored response")

// OfflineFetcher serves previously captured responses keyed by URL.
type OfflineFetcher struct {
	Responses map[string]*model.RawResponse
}

// NewOfflineFetcher indexes responses by their URL. Later duplicates win.
func NewOfflineFetcher(responses []*model.RawResponse) *OfflineFetcher {
	f := &OfflineFetcher{Responses: make(map[string]*model.RawResponse, len(responses))}
	for _, r := range responses {
		f.Responses[r.URL] = r
	}
	return f
}

// Fetch returns a copy of the stored response for url.
func (f *OfflineFetcher) Fetch(ctx context.Context, url string) (*model.RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := f.Responses[url]
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, errNoStoredResponse)
	}
	clone := *r
	clone.Header = r.Header.Clone()
	if clone.Location == "" && isRedirect(clone.Status) {
		clone.Location = clone.Header.Get("Location")
	}
	clone.Redirected = clone.Location != "" && isRedirect(clone.Status)
	return &clone, nil
}
