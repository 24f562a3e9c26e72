// Package body treats plain files as response bodies with no headers.
package body

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

// ParseBodyOnly loads a file, or every file below a directory, as a 200 response keyed by
// its file:// URL. Empty files are skipped.
func ParseBodyOnly(path string) ([]*model.RawResponse, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		resp, err := readFile(path)
		if err != nil || resp == nil {
			return nil, err
		}
		return []*model.RawResponse{resp}, nil
	}

	var out []*model.RawResponse
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			util.Warn("Error walking directory %s: %v", p, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		resp, err := readFile(p)
		if err != nil {
			util.Warn("%v", err)
			return nil
		}
		if resp != nil {
			out = append(out, resp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	return out, nil
}

func readFile(path string) (*model.RawResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read body-only file %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &model.RawResponse{
		URL:    FileURL(path),
		Status: 200,
		Header: make(map[string][]string),
		Body:   data,
	}, nil
}

// FileURL returns the file:// URL for path.
func FileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
