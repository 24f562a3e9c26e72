// Package input turns command-line arguments and capture files into scan targets.
package input

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

// Resolve expands arg into targets. arg may be "-" (read stdin), "@path" or an existing file
// (one URL per line), or a comma-separated list of URLs. Invalid entries are skipped with a warning.
func Resolve(arg string, stdin io.Reader) ([]model.Target, error) {
	arg = strings.TrimSpace(arg)
	switch {
	case arg == "":
		return nil, nil
	case arg == "-":
		util.Debug("Reading targets from stdin")
		return readTargets(stdin)
	case strings.HasPrefix(arg, "@"):
		return readTargetFile(strings.TrimPrefix(arg, "@"))
	}

	if info, err := os.Stat(arg); err == nil {
		if info.IsDir() {
			return nil, fmt.Errorf("input %q is a directory; use --offline to scan captured responses", arg)
		}
		return readTargetFile(arg)
	}

	var targets []model.Target
	for _, item := range strings.Split(arg, ",") {
		if t, ok := parseEntry(item); ok {
			targets = append(targets, t)
		}
	}
	return targets, nil
}

func readTargetFile(path string) ([]model.Target, error) {
	util.Debug("Reading targets from file: %s", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file %s: %w", path, err)
	}
	defer f.Close()
	return readTargets(f)
}

func readTargets(r io.Reader) ([]model.Target, error) {
	if r == nil {
		return nil, nil
	}
	var targets []model.Target
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if t, ok := parseEntry(scanner.Text()); ok {
			targets = append(targets, t)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	return targets, nil
}

// parseEntry skips blanks and # comments and warns about entries that do not normalize.
func parseEntry(line string) (model.Target, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return model.Target{}, false
	}
	t, err := NormalizeTarget(line)
	if err != nil {
		util.Warn("Skipping invalid input '%s': %v", line, err)
		return model.Target{}, false
	}
	return t, true
}

// NormalizeTarget validates raw as an http(s) URL, adding http:// when no scheme is given.
// Domain is the host without a leading "www.".
func NormalizeTarget(raw string) (model.Target, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return model.Target{}, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return model.Target{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return model.Target{}, fmt.Errorf("URL has no host")
	}

	domain := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return model.Target{URL: u.String(), Domain: domain}, nil
}

// TargetURLs returns the target URLs in order.
func TargetURLs(targets []model.Target) []string {
	urls := make([]string, len(targets))
	for i, t := range targets {
		urls[i] = t.URL
	}
	return urls
}
