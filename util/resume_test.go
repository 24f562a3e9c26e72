package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResumeManagerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.resume")

	rm, err := NewResumeManager(path, true)
	if err != nil {
		t.Fatal(err)
	}
	rm.SaveTotal(3)
	rm.MarkCompleted("http://a.com")
	rm.MarkCompleted("http://a.com")
	rm.MarkCompleted("http://b.com")
	rm.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "TOTAL:3\nhttp://a.com\nhttp://b.com\n" {
		t.Errorf("Unexpected resume file %q", data)
	}

	rm, err = NewResumeManager(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer rm.Close()
	if rm.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", rm.TotalCount)
	}
	pending := rm.Pending([]string{"http://a.com", "http://c.com", "http://b.com"})
	if strings.Join(pending, ",") != "http://c.com" {
		t.Errorf("Pending = %v", pending)
	}

	rm.SaveTotal(10)
	rm.Cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected resume file removed, got %v", err)
	}
}

func TestResumeManagerDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.resume")
	rm, err := NewResumeManager(path, false)
	if err != nil {
		t.Fatal(err)
	}
	rm.SaveTotal(2)
	rm.MarkCompleted("http://a.com")
	if rm.IsCompleted("http://a.com") {
		t.Error("Disabled manager must not report completions")
	}
	if got := rm.Pending([]string{"x"}); len(got) != 1 {
		t.Errorf("Pending = %v", got)
	}
	rm.Cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Disabled manager must not create a file")
	}
}
