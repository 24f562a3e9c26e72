// Package rawhttp parses HTTP header blocks captured on disk.
package rawhttp

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ParseStatusLine parses "HTTP/1.1 200 OK" into 200.
func ParseStatusLine(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "HTTP/") {
		return 0, false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil || code < 100 || code > 999 {
		return 0, false
	}
	return code, true
}

// ParseHeaders reads an optional status line followed by "Name: value" lines up to the first
// blank line. Status is 0 when no status line was present.
func ParseHeaders(r io.Reader) (int, http.Header) {
	header := http.Header{}
	status := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if first {
			first = false
			if code, ok := ParseStatusLine(line); ok {
				status = code
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return status, header
}

// ExtractHost returns the Host header value, falling back to fallback.
func ExtractHost(header http.Header, fallback string) string {
	if host := header.Get("Host"); host != "" {
		return host
	}
	return fallback
}

// URLFromHeaders returns the page URL recorded in a capture: an X-Url or X-Original-Url header,
// else https://Host/. It returns "" when neither is present.
func URLFromHeaders(header http.Header) string {
	for _, name := range []string{"X-Url", "X-Original-Url"} {
		if u := strings.TrimSpace(header.Get(name)); u != "" {
			return u
		}
	}
	if host := ExtractHost(header, ""); host != "" {
		return "https://" + host + "/"
	}
	return ""
}
