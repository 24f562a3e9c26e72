package input

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/input/body"
	"github.com/Abhaythakor/fingerprintweb/input/fff"
	"github.com/Abhaythakor/fingerprintweb/input/katana"
	"github.com/Abhaythakor/fingerprintweb/input/raw"
	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

// OfflineFormat names a layout of captured responses on disk.
type OfflineFormat string

const (
	FormatUnknown    OfflineFormat = "unknown"
	FormatFFF        OfflineFormat = "fff"
	FormatKatanaDir  OfflineFormat = "katana-dir"
	FormatKatanaFile OfflineFormat = "katana-file"
	FormatRawHTTP    OfflineFormat = "raw-http"
	FormatBodyOnly   OfflineFormat = "body-only"
)

// sniffLimit bounds how much of a file is read to guess its format.
const sniffLimit = 4096

// DetectOfflineFormat identifies the format of path, falling back to body-only.
func DetectOfflineFormat(path string) OfflineFormat {
	info, err := os.Stat(path)
	if err != nil {
		util.Warn("Could not stat offline input %s: %v", path, err)
		return FormatUnknown
	}

	if info.IsDir() {
		switch {
		case fff.IsFFFDirectory(path):
			return FormatFFF
		case IsKatanaDirectory(path):
			return FormatKatanaDir
		default:
			return FormatBodyOnly
		}
	}

	head, err := readHead(path)
	if err != nil {
		util.Warn("Failed to read %s for format detection: %v", path, err)
		return FormatUnknown
	}
	switch {
	case katana.IsKatanaFileContent(head):
		return FormatKatanaFile
	case raw.IsRawHTTPContent(head):
		return FormatRawHTTP
	default:
		return FormatBodyOnly
	}
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, sniffLimit)
	n, err := f.Read(buf)
	if n == 0 && err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// IsKatanaDirectory reports whether path holds an index.txt or a katana response file
// within two levels.
func IsKatanaDirectory(path string) bool {
	if _, err := os.Stat(filepath.Join(path, "index.txt")); err == nil {
		return true
	}

	found := false
	_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			rel, _ := filepath.Rel(path, p)
			if rel != "." && strings.Count(filepath.ToSlash(rel), "/") >= 2 {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.Contains(d.Name(), ".txt") {
			return nil
		}
		if head, err := readHead(p); err == nil && katana.IsKatanaFileContent(head) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// LoadOffline parses path in whatever format it is stored and returns the captured responses.
func LoadOffline(path string) ([]*model.RawResponse, OfflineFormat, error) {
	format := DetectOfflineFormat(path)
	util.Debug("Offline input %s detected as %s", path, format)

	var (
		responses []*model.RawResponse
		err       error
	)
	switch format {
	case FormatFFF:
		responses, err = fff.ParseFFF(path)
	case FormatKatanaDir:
		responses, err = katana.ParseKatanaDir(path)
	case FormatKatanaFile:
		var resp *model.RawResponse
		resp, err = katana.ParseKatanaFile(path, "")
		if resp != nil {
			responses = append(responses, resp)
		}
	case FormatRawHTTP:
		responses, err = raw.ParseRawHTTP(path)
	case FormatBodyOnly:
		responses, err = body.ParseBodyOnly(path)
	default:
		return nil, format, fmt.Errorf("unrecognized offline input %s", path)
	}
	if err != nil {
		return nil, format, err
	}
	return responses, format, nil
}

// URLs returns the keys of responses in order, skipping duplicates.
func URLs(responses []*model.RawResponse) []string {
	seen := make(map[string]bool, len(responses))
	urls := make([]string, 0, len(responses))
	for _, r := range responses {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		urls = append(urls, r.URL)
	}
	return urls
}
