package detect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Abhaythakor/fingerprintweb/clues"
	"github.com/Abhaythakor/fingerprintweb/util"
)

const (
	// DefaultCluesURL serves the published copy of the embedded rule file. Upstream Wappalyzer
	// style files list pattern-less apps and are rejected by clues.Load.
	DefaultCluesURL = "https://raw.githubusercontent.com/Abhaythakor/fingerprintweb/main/clues/data/clues.json"

	maxCluesSize = 32 << 20
)

// DefaultCluesPath returns the local path where updated clues are stored.
func DefaultCluesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "fingerprintweb", "clues.json"), nil
}

// UpdateClues downloads a clue document from src, validates it and writes it to dst.
// The previous file is left untouched when the download does not load cleanly.
func UpdateClues(ctx context.Context, client *http.Client, src, dst string) error {
	util.Info("Updating clues from %s...", src)
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", src, err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download clues: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCluesSize))
	if err != nil {
		return fmt.Errorf("failed to read clues: %w", err)
	}

	rules, err := clues.Load(bytes.NewReader(data), clues.FormatFromPath(dst))
	if err != nil {
		return fmt.Errorf("downloaded clues are invalid: %w", err)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".clues-*")
	if err != nil {
		return fmt.Errorf("could not create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save clues: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save clues: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to save clues: %w", err)
	}

	util.Info("%d clues updated successfully to %s", rules.Len(), dst)
	return nil
}

// CluesInfo describes the clue file at path.
func CluesInfo(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "Not found (using embedded defaults)"
	}
	return fmt.Sprintf("Last updated: %s", info.ModTime().Format("2006-01-02 15:04:05"))
}
