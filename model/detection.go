package model

import (
	"fmt"
	"net/http"
)

// SignalKind names the part of a response a clue pattern is evaluated against.
type SignalKind string

const (
	SignalHeader    SignalKind = "header"    // response header name/value pairs
	SignalCookie    SignalKind = "cookie"    // cookie name/value pairs
	SignalHTML      SignalKind = "html"      // raw body text
	SignalMeta      SignalKind = "meta"      // <meta> name/content pairs
	SignalScript    SignalKind = "script"    // <script src> values
	SignalURL       SignalKind = "url"       // final URL after redirects
	SignalGenerator SignalKind = "generator" // generator meta and doctype
)

// AllSignalKinds returns every signal kind in evaluation order.
func AllSignalKinds() []SignalKind {
	return []SignalKind{
		SignalURL,
		SignalHeader,
		SignalCookie,
		SignalMeta,
		SignalScript,
		SignalGenerator,
		SignalHTML,
	}
}

// Valid reports whether k is one of the known signal kinds.
func (k SignalKind) Valid() bool {
	for _, known := range AllSignalKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Match is one technology attributed to a page.
type Match struct {
	Name       string     `json:"app" csv:"app"`
	Category   string     `json:"type,omitempty" csv:"type"`
	Version    string     `json:"ver,omitempty" csv:"ver"`
	Origin     SignalKind `json:"origin" csv:"origin"`
	Implied    bool       `json:"implied,omitempty" csv:"implied"`
	Confidence int        `json:"confidence,omitempty" csv:"confidence"`
}

// Result is the outcome of detecting one input URL.
type Result struct {
	URL       string  `json:"url"`
	FinalURL  string  `json:"final_url,omitempty"`
	Domain    string  `json:"domain,omitempty"`
	Status    int     `json:"status,omitempty"`
	Matches   []Match `json:"technologies"`
	Error     string  `json:"error,omitempty"`
	ErrorType string  `json:"error_type,omitempty"`
}

// Failed reports whether the page could not be retrieved.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Has reports whether the result carries a match for the named technology.
func (r Result) Has(name string) bool {
	for _, m := range r.Matches {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Validate performs schema validation on a Result.
func (r Result) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("Result: URL cannot be empty")
	}
	if r.Failed() && len(r.Matches) > 0 {
		return fmt.Errorf("Result: failed result must not carry matches")
	}
	seen := make(map[string]struct{}, len(r.Matches))
	for _, m := range r.Matches {
		if m.Name == "" {
			return fmt.Errorf("Result: match name cannot be empty")
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("Result: duplicate match %q", m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}

// Batch is the ordered list of results for a multi-URL run.
type Batch []Result

// Target is a normalized input URL.
type Target struct {
	URL    string
	Domain string
}

// Validate performs schema validation on a Target.
func (t Target) Validate() error {
	if t.URL == "" {
		return fmt.Errorf("Target: URL cannot be empty")
	}
	return nil
}

// RawResponse is what the fetch collaborator returns for a single HTTP round trip.
type RawResponse struct {
	URL        string
	Status     int
	Header     http.Header
	Body       []byte
	Location   string // redirect target as sent by the server, unresolved
	Redirected bool
}
