package detect

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/extract"
)

// Error type constants
const (
	ErrorTimeout    = "timeout"
	ErrorDNS        = "dns_error"
	ErrorTLS        = "tls_error"
	ErrorNetwork    = "network_error"
	ErrorHTTP       = "http_error"
	ErrorDecode     = "decode_error"
	ErrorInvalidURL = "invalid_url"
	// ErrorCanceled marks URLs abandoned because the run was canceled.
	ErrorCanceled = "canceled"
)

// FetchError is a per-URL failure. It is recorded on the result, never fatal to a batch.
type FetchError struct {
	URL  string
	Kind string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func newFetchError(rawURL string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind, _ := ClassifyError(err)
	return &FetchError{URL: rawURL, Kind: kind, Err: err}
}

// ClassifyError determines the error type from a Go error.
// Returns the error type constant and a human-readable message.
func ClassifyError(err error) (string, string) {
	if err == nil {
		return "", ""
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, fe.Err.Error()
	}
	if errors.Is(err, extract.ErrUndecodable) {
		return ErrorDecode, err.Error()
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCanceled, "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout, "request timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout, "request timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorDNS, "DNS lookup failed"
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) || errors.As(err, &hostErr) {
		return ErrorTLS, "certificate error"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		return ErrorInvalidURL, "invalid URL"
	}
	if errors.Is(err, errNoStoredResponse) {
		return ErrorNetwork, "no stored response"
	}

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "tls") || strings.Contains(errMsg, "TLS"):
		return ErrorTLS, "TLS handshake failed"
	case strings.Contains(errMsg, "no such host"):
		return ErrorDNS, "host not found"
	case strings.Contains(errMsg, "unsupported protocol scheme"):
		return ErrorInvalidURL, "unsupported protocol scheme"
	case strings.Contains(errMsg, "malformed HTTP"):
		return ErrorHTTP, "malformed HTTP response"
	case strings.Contains(errMsg, "connection refused"):
		return ErrorNetwork, "connection refused"
	case strings.Contains(errMsg, "connection reset"):
		return ErrorNetwork, "connection reset"
	}

	return ErrorNetwork, errMsg
}
