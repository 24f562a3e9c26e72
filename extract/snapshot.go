// Package extract turns a fetched response into the normalized signals clues are matched against.
package extract

import (
	"net/http"
	"sort"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/model"
)

// Snapshot is the read-only view of one fetched page. Derived fields are computed once by Extract.
type Snapshot struct {
	URL    string
	Status int
	// Headers and Cookies are keyed by lowercase name. Repeated headers are joined with ", ".
	Headers map[string]string
	Cookies map[string]string
	HTML    string
	// Meta maps a lowercase meta name (or property / http-equiv) to its contents in document order.
	Meta       map[string][]string
	Scripts    []string
	Generators []string
	// Degraded is set when only raw body matching was possible for this page.
	Degraded bool
}

// Values returns the (key, value) pairs the snapshot exposes for kind. Keyed kinds with an empty
// key return every pair in sorted key order.
func (s *Snapshot) Values(kind model.SignalKind, key string) []string {
	switch kind {
	case model.SignalURL:
		if s.URL == "" {
			return nil
		}
		return []string{s.URL}
	case model.SignalHTML:
		return []string{s.HTML}
	case model.SignalScript:
		return s.Scripts
	case model.SignalGenerator:
		return s.Generators
	case model.SignalHeader:
		return keyed(s.Headers, key)
	case model.SignalCookie:
		return keyed(s.Cookies, key)
	case model.SignalMeta:
		if key == "" {
			var out []string
			for _, k := range sortedKeys(s.Meta) {
				out = append(out, s.Meta[k]...)
			}
			return out
		}
		return s.Meta[key]
	}
	return nil
}

// Has reports whether a keyed signal is present, regardless of its value.
func (s *Snapshot) Has(kind model.SignalKind, key string) bool {
	switch kind {
	case model.SignalHeader:
		_, ok := s.Headers[key]
		return ok
	case model.SignalCookie:
		_, ok := s.Cookies[key]
		return ok
	case model.SignalMeta:
		_, ok := s.Meta[key]
		return ok
	}
	return len(s.Values(kind, key)) > 0
}

func keyed(m map[string]string, key string) []string {
	if key != "" {
		v, ok := m[key]
		if !ok {
			return nil
		}
		return []string{v}
	}
	out := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, m[k])
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeHeaders lowercases header names and joins repeated values. Set-Cookie is left to
// parseCookies.
func normalizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if http.CanonicalHeaderKey(name) == "Set-Cookie" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		joined := strings.Join(values, ", ")
		if prev, ok := out[key]; ok {
			joined = prev + ", " + joined
		}
		out[key] = joined
	}
	return out
}

func parseCookies(h http.Header) map[string]string {
	out := make(map[string]string)
	if len(h) == 0 {
		return out
	}
	resp := http.Response{Header: http.Header{}}
	for name, values := range h {
		if http.CanonicalHeaderKey(name) == "Set-Cookie" {
			resp.Header["Set-Cookie"] = append(resp.Header["Set-Cookie"], values...)
		}
	}
	for _, c := range resp.Cookies() {
		key := strings.ToLower(c.Name)
		if _, ok := out[key]; !ok {
			out[key] = c.Value
		}
	}
	return out
}
