// Package fff reads the directory tree written by tomnomnom's fff: one directory per host,
// the request path as subdirectories, and <sha1>.headers / <sha1>.body pairs at the leaf.
package fff

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
	"github.com/Abhaythakor/fingerprintweb/util/rawhttp"
)

// capture is one headers/body pair sharing a hash in a single directory.
type capture struct {
	domain  string
	headers string
	body    string
}

// IsFFFDirectory reports whether root has at least one host directory holding a hashed capture.
func IsFFFDirectory(root string) bool {
	found := false
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || found {
			return filepath.SkipDir
		}
		if !d.IsDir() && extractHash(d.Name()) != "" && filepath.Dir(path) != filepath.Clean(root) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// ParseFFF parses every capture below root, sorted by URL.
func ParseFFF(root string) ([]*model.RawResponse, error) {
	captures := make(map[string]*capture) // dir/hash -> files

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			util.Warn("Error walking fff directory at %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		hash := extractHash(d.Name())
		if hash == "" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 2 {
			return nil // files must sit under a host directory
		}

		key := filepath.Join(filepath.Dir(path), hash)
		c, ok := captures[key]
		if !ok {
			c = &capture{domain: parts[0]}
			captures[key] = c
		}
		switch filepath.Ext(d.Name()) {
		case ".headers":
			c.headers = path
		case ".body":
			c.body = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk fff directory %s: %w", root, err)
	}

	out := make([]*model.RawResponse, 0, len(captures))
	for _, c := range captures {
		resp, err := buildResponse(root, c)
		if err != nil {
			util.Warn("Skipping fff capture: %v", err)
			continue
		}
		out = append(out, resp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func buildResponse(root string, c *capture) (*model.RawResponse, error) {
	resp := &model.RawResponse{Status: 200, Header: make(map[string][]string)}

	anchor := c.headers
	if c.headers != "" {
		f, err := os.Open(c.headers)
		if err != nil {
			return nil, fmt.Errorf("open headers file %s: %w", c.headers, err)
		}
		status, header := rawhttp.ParseHeaders(f)
		f.Close()
		if status != 0 {
			resp.Status = status
		}
		resp.Header = header
	}
	if c.body != "" {
		body, err := os.ReadFile(c.body)
		if err != nil {
			return nil, fmt.Errorf("read body file %s: %w", c.body, err)
		}
		resp.Body = body
		if anchor == "" {
			anchor = c.body
		}
	}

	resp.URL = DeriveURL(filepath.Join(root, c.domain), anchor, c.domain)
	util.Debug("Parsed fff capture %s as %s", anchor, resp.URL)
	return resp, nil
}

// DeriveURL rebuilds the request URL from a capture file's position below its host directory.
func DeriveURL(domainRoot, filePath, domain string) string {
	if filePath == "" {
		return ""
	}
	rel, err := filepath.Rel(domainRoot, filepath.Dir(filePath))
	if err != nil || rel == "." {
		return "https://" + domain + "/"
	}
	return "https://" + domain + "/" + filepath.ToSlash(rel)
}

// extractHash returns the hex stem of "<hash>.headers" or "<hash>.body", else "".
func extractHash(filename string) string {
	ext := filepath.Ext(filename)
	if ext != ".headers" && ext != ".body" {
		return ""
	}
	base := strings.TrimSuffix(filename, ext)
	if len(base) < 32 || len(base) > 64 || !isHex(base) {
		return ""
	}
	return base
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}
