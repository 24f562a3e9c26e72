// Package katana reads the stored-response files katana writes with -store-response: an optional
// URL line, the request block, the response head, then the body.
package katana

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
	"github.com/Abhaythakor/fingerprintweb/util/rawhttp"
)

// ErrMalformed is returned for files that do not split into request and response blocks.
var ErrMalformed = errors.New("malformed katana response file")

// IsKatanaFileContent reports whether data holds both a request line and a status line.
func IsKatanaFileContent(data []byte) bool {
	s := string(data)
	return (strings.Contains(s, "GET ") || strings.Contains(s, "POST ")) && strings.Contains(s, "HTTP/1.")
}

// ParseKatanaDir parses every .txt file below root. Files that fail to parse are skipped with a warning.
func ParseKatanaDir(root string) ([]*model.RawResponse, error) {
	var out []*model.RawResponse
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			util.Warn("Error walking katana directory at %s: %v", path, err)
			return nil
		}
		// katana rotates old files to name.txt.~1~
		if d.IsDir() || !strings.Contains(d.Name(), ".txt") {
			return nil
		}
		resp, err := ParseKatanaFile(path, hostHint(path))
		if err != nil {
			util.Warn("Skipping katana file %s: %v", path, err)
			return nil
		}
		out = append(out, resp)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk katana directory %s: %w", root, err)
	}
	return out, nil
}

// hostHint uses the parent directory name, which katana sets to the target host.
func hostHint(path string) string {
	switch parent := filepath.Base(filepath.Dir(path)); parent {
	case ".", "responses", "katana-output":
		return ""
	default:
		return parent
	}
}

// ParseKatanaFile parses a single response file. fallbackHost is used when neither the URL
// line nor the request carries a host.
func ParseKatanaFile(path, fallbackHost string) (*model.RawResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read katana file %s: %w", path, err)
	}
	resp, err := Parse(data, fallbackHost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	util.Debug("Parsed katana file %s as %s", path, resp.URL)
	return resp, nil
}

// Parse parses the contents of a katana response file.
func Parse(data []byte, fallbackHost string) (*model.RawResponse, error) {
	rest := bytes.TrimLeft(data, "\r\n")

	var initialURL string
	if bytes.HasPrefix(rest, []byte("http://")) || bytes.HasPrefix(rest, []byte("https://")) {
		line, after, _ := bytes.Cut(rest, []byte("\n"))
		initialURL = strings.TrimSpace(string(line))
		rest = bytes.TrimLeft(after, "\r\n")
	}

	request, rest := nextBlock(rest)
	requestLine, requestHead, _ := bytes.Cut(request, []byte("\n"))
	if !bytes.Contains(requestLine, []byte(" HTTP/")) {
		return nil, ErrMalformed
	}

	response, body := nextBlock(rest)
	if !bytes.HasPrefix(response, []byte("HTTP/")) {
		return nil, ErrMalformed
	}

	_, requestHeaders := rawhttp.ParseHeaders(bytes.NewReader(requestHead))
	status, header := rawhttp.ParseHeaders(bytes.NewReader(response))
	if status == 0 {
		status = 200
	}

	host := rawhttp.ExtractHost(requestHeaders, fallbackHost)
	target := reconstructURL(strings.TrimSpace(string(requestLine)), host, initialURL)
	if target == "" {
		return nil, fmt.Errorf("%w: no URL or host", ErrMalformed)
	}

	return &model.RawResponse{
		URL:    target,
		Status: status,
		Header: header,
		Body:   body,
	}, nil
}

// nextBlock returns data up to the first blank line and what follows it.
func nextBlock(data []byte) ([]byte, []byte) {
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	lf := bytes.Index(data, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return data[:crlf], data[crlf+4:]
	case lf >= 0:
		return data[:lf], data[lf+2:]
	default:
		return data, nil
	}
}

// reconstructURL prefers the recorded URL line, then an absolute request target, then scheme-less host + path.
func reconstructURL(requestLine, host, initialURL string) string {
	if initialURL != "" {
		return initialURL
	}
	parts := strings.Fields(requestLine)
	if len(parts) < 2 {
		return ""
	}
	target := parts[1]

	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		if u, err := url.Parse(target); err == nil {
			return u.String()
		}
	}
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return "https://" + host + target
}
