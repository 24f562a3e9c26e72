// Package detect fetches target URLs, follows redirects under mask policy and attributes
// technologies to each page.
package detect

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Abhaythakor/fingerprintweb/extract"
	"github.com/Abhaythakor/fingerprintweb/metrics"
	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

const (
	DefaultTimeout      = 3 * time.Second
	DefaultConcurrency  = 10
	DefaultMaxRedirects = 10
)

// State is a step of the per-URL detection lifecycle.
type State string

const (
	StatePending       State = "pending"
	StateFetching      State = "fetching"
	StateRedirectCheck State = "redirect-check"
	StateExtracted     State = "extracted"
	StateMatched       State = "matched"
	StateFetchFailed   State = "fetch-failed"
	StateDone          State = "done"
)

// Redirect decisions, also used as metric labels.
const (
	redirectFollowed = "followed"
	redirectLimited  = "outside_limit"
	redirectExcluded = "excluded"
	redirectTooMany  = "too_many"
	redirectInvalid  = "invalid_location"
)

// Detector orchestrates fetching and matching for one or many URLs. A zero Timeout,
// Concurrency or MaxRedirects selects the default. Engines are consulted in order and a later
// engine never overrides a technology reported by an earlier one.
type Detector struct {
	Fetcher Fetcher
	Engines []Engine

	// Limit, when set, must match every redirect target that is followed.
	Limit *regexp.Regexp
	// Exclude, when set, must not match any redirect target that is followed.
	Exclude *regexp.Regexp

	// Timeout bounds each round trip, each redirect hop individually.
	Timeout      time.Duration
	Concurrency  int
	MaxRedirects int

	Limiter *rate.Limiter
	Metrics *metrics.Metrics
	Logger  *util.Logger

	// OnResult is called once per URL as results complete. Calls are serialized.
	OnResult func(index int, r model.Result)
}

func (d *Detector) logger() *util.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return util.Default()
}

func (d *Detector) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

func (d *Detector) concurrency() int {
	if d.Concurrency > 0 {
		return d.Concurrency
	}
	return DefaultConcurrency
}

func (d *Detector) maxRedirects() int {
	if d.MaxRedirects > 0 {
		return d.MaxRedirects
	}
	return DefaultMaxRedirects
}

func (d *Detector) trace(rawURL string, s State) {
	d.logger().Debug("%s: %s", rawURL, s)
}

// DetectOne fetches rawURL, following redirects allowed by the masks, and matches the final
// page. Failures are reported on the result, never returned.
func (d *Detector) DetectOne(ctx context.Context, rawURL string) model.Result {
	res := model.Result{URL: rawURL, Domain: hostOf(rawURL), Matches: []model.Match{}}
	d.trace(rawURL, StatePending)

	current := rawURL
	var page *model.RawResponse
	for hops := 0; ; hops++ {
		d.trace(current, StateFetching)
		raw, err := d.fetch(ctx, current)
		if err != nil {
			return d.fail(res, newFetchError(current, err))
		}
		page = raw
		if !raw.Redirected {
			break
		}

		d.trace(current, StateRedirectCheck)
		next, decision := d.nextHop(current, raw.Location, hops)
		d.Metrics.ObserveRedirect(decision)
		if decision != redirectFollowed {
			d.logger().Debug("Not following redirect %s -> %s (%s)", current, raw.Location, decision)
			break
		}
		current = next
	}

	res.FinalURL = current
	res.Status = page.Status

	text, err := extract.Decode(page)
	if err != nil {
		return d.fail(res, &FetchError{URL: current, Kind: ErrorDecode, Err: err})
	}
	snap := extract.FromText(page, text)
	if snap.Degraded {
		d.logger().Debug("%s: partial extraction, matching body only", current)
	}
	d.trace(current, StateExtracted)

	for i, e := range d.Engines {
		found := e.Detect(snap)
		if i == 0 {
			res.Matches = append(res.Matches, found...)
			continue
		}
		res.Matches = mergeMatches(res.Matches, found)
	}
	for _, m := range res.Matches {
		d.Metrics.ObserveMatch(string(m.Origin))
	}
	d.trace(current, StateMatched)

	d.Metrics.ObserveFetch("ok")
	d.trace(rawURL, StateDone)
	return res
}

func (d *Detector) fail(res model.Result, fe *FetchError) model.Result {
	d.trace(res.URL, StateFetchFailed)
	d.logger().Warn("Failed to process %s: %v", res.URL, fe.Err)
	d.Metrics.ObserveFetch(fe.Kind)

	res.Matches = []model.Match{}
	res.Error = fe.Err.Error()
	res.ErrorType = fe.Kind
	d.trace(res.URL, StateDone)
	return res
}

// fetch performs one round trip bounded by its own timeout.
func (d *Detector) fetch(ctx context.Context, rawURL string) (*model.RawResponse, error) {
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	hopCtx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	done := d.Metrics.TrackRoundTrip()
	defer done()

	raw, err := d.Fetcher.Fetch(hopCtx, rawURL)
	if err != nil {
		// surface the deadline even if the transport wrapped it opaquely
		if hopCtx.Err() != nil && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, &FetchError{URL: rawURL, Kind: ErrorTimeout, Err: err}
		}
		return nil, err
	}
	return raw, nil
}

// nextHop resolves location against current and applies the redirect policy.
func (d *Detector) nextHop(current, location string, hops int) (string, string) {
	base, err := url.Parse(current)
	if err != nil {
		return "", redirectInvalid
	}
	ref, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", redirectInvalid
	}
	next := base.ResolveReference(ref)
	if next.Scheme != "http" && next.Scheme != "https" {
		return "", redirectInvalid
	}
	target := next.String()

	switch {
	case hops+1 > d.maxRedirects():
		return target, redirectTooMany
	case d.Limit != nil && !d.Limit.MatchString(target):
		return target, redirectLimited
	case d.Exclude != nil && d.Exclude.MatchString(target):
		return target, redirectExcluded
	}
	return target, redirectFollowed
}

// DetectMany runs DetectOne over urls with a bounded worker pool. The batch is in input order.
// Canceling ctx stops dispatching; URLs never dispatched are reported as canceled.
func (d *Detector) DetectMany(ctx context.Context, urls []string) model.Batch {
	results := make(model.Batch, len(urls))
	if len(urls) == 0 {
		return results
	}

	workers := min(d.concurrency(), len(urls))
	jobs := make(chan int)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r := d.DetectOne(ctx, urls[i])
				results[i] = r
				if d.OnResult != nil {
					mu.Lock()
					d.OnResult(i, r)
					mu.Unlock()
				}
			}
		}()
	}

	next := 0
dispatch:
	for ; next < len(urls); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(urls); i++ {
		results[i] = model.Result{
			URL:       urls[i],
			Domain:    hostOf(urls[i]),
			Matches:   []model.Match{},
			Error:     ctx.Err().Error(),
			ErrorType: ErrorCanceled,
		}
	}
	return results
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
