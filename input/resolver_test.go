package input_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Abhaythakor/fingerprintweb/input"
)

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		in      string
		url     string
		domain  string
		wantErr bool
	}{
		{in: "http://example.com", url: "http://example.com", domain: "example.com"},
		{in: "https://www.Example.com/path?q=1", url: "https://www.Example.com/path?q=1", domain: "example.com"},
		{in: "example.com", url: "http://example.com", domain: "example.com"},
		{in: "  www.site.org/a  ", url: "http://www.site.org/a", domain: "site.org"},
		{in: "ftp://example.com", wantErr: true},
		{in: "http://", wantErr: true},
		{in: "http://bad host", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := input.NormalizeTarget(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.URL != tt.url || got.Domain != tt.domain {
				t.Errorf("NormalizeTarget(%q) = %+v, want %s / %s", tt.in, got, tt.url, tt.domain)
			}
		})
	}
}

func TestResolveCommaList(t *testing.T) {
	targets, err := input.Resolve("http://a.com, b.org ,ftp://c.net,,", nil)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(input.TargetURLs(targets), " ")
	if got != "http://a.com http://b.org" {
		t.Errorf("Unexpected targets %q", got)
	}
}

func TestResolveFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "# targets\nhttps://one.com\n\nnot a url with spaces://\ntwo.com\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, arg := range []string{path, "@" + path} {
		targets, err := input.Resolve(arg, nil)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", arg, err)
		}
		got := strings.Join(input.TargetURLs(targets), " ")
		if got != "https://one.com http://two.com" {
			t.Errorf("Resolve(%q) = %q", arg, got)
		}
	}

	if _, err := input.Resolve("@"+filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("Expected error for missing @file")
	}
	if _, err := input.Resolve(t.TempDir(), nil); err == nil {
		t.Error("Expected error for directory input")
	}
}

func TestResolveStdin(t *testing.T) {
	targets, err := input.Resolve("-", strings.NewReader("https://a.io\nb.io\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 || targets[1].Domain != "b.io" {
		t.Errorf("Unexpected targets %+v", targets)
	}

	targets, err = input.Resolve("", nil)
	if err != nil || len(targets) != 0 {
		t.Errorf("Expected no targets for empty input, got %v %v", targets, err)
	}
}
