package util

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ResumeManager records finished URLs so an interrupted scan can skip them on restart.
// The file holds an optional "TOTAL:n" first line followed by one URL per line.
type ResumeManager struct {
	file       *os.File
	completed  sync.Map
	filePath   string
	enabled    bool
	TotalCount int        // total from the previous run, 0 when unknown
	mu         sync.Mutex // guards file writes
}

// NewResumeManager loads existing progress from path when enabled. A disabled manager
// reports nothing as completed and writes nothing.
func NewResumeManager(path string, enabled bool) (*ResumeManager, error) {
	rm := &ResumeManager{filePath: path, enabled: enabled}
	if !enabled {
		return rm, nil
	}

	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		first := true
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if first {
				first = false
				var total int
				if _, err := fmt.Sscanf(line, "TOTAL:%d", &total); err == nil {
					rm.TotalCount = total
					continue
				}
			}
			if line != "" {
				rm.completed.Store(line, struct{}{})
			}
		}
		err := scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read resume file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open resume file %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open resume file %s: %w", path, err)
	}
	rm.file = file
	return rm, nil
}

// SaveTotal writes the total once, on the first run only.
func (rm *ResumeManager) SaveTotal(total int) {
	if !rm.enabled || rm.file == nil || rm.TotalCount != 0 {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, err := fmt.Fprintf(rm.file, "TOTAL:%d\n", total); err == nil {
		rm.TotalCount = total
	}
}

// IsCompleted checks if a URL has already been processed.
func (rm *ResumeManager) IsCompleted(id string) bool {
	if !rm.enabled {
		return false
	}
	_, ok := rm.completed.Load(id)
	return ok
}

// Pending filters out completed URLs, keeping order.
func (rm *ResumeManager) Pending(ids []string) []string {
	if !rm.enabled {
		return ids
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !rm.IsCompleted(id) {
			out = append(out, id)
		}
	}
	return out
}

// MarkCompleted records id. Safe for concurrent use.
func (rm *ResumeManager) MarkCompleted(id string) {
	if !rm.enabled || rm.file == nil {
		return
	}
	if _, loaded := rm.completed.LoadOrStore(id, struct{}{}); loaded {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, err := rm.file.WriteString(id + "\n"); err != nil {
		Warn("Failed to record %s in resume file: %v", id, err)
	}
}

// Close closes the resume file.
func (rm *ResumeManager) Close() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.file != nil {
		_ = rm.file.Sync()
		_ = rm.file.Close()
		rm.file = nil
	}
}

// Cleanup deletes the resume file once a scan has finished.
func (rm *ResumeManager) Cleanup() {
	rm.Close()
	if rm.enabled {
		_ = os.Remove(rm.filePath)
	}
}
