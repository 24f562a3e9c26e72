// Package progress draws a single-line scan status on stderr.
package progress

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

// refreshInterval throttles redraws to 15 per second.
const refreshInterval = time.Second / 15

// Tracker counts finished URLs and redraws the status line.
type Tracker struct {
	out       io.Writer
	total     atomic.Int64
	completed atomic.Int64
	matched   atomic.Int64 // finished with at least one technology
	errors    atomic.Int64
	enabled   bool
	color     *util.Colorizer
	startTime time.Time

	mu         sync.Mutex // serializes drawing
	lastUpdate time.Time
	drawn      bool
}

// NewTracker creates a tracker for total URLs. A disabled tracker counts but never draws.
func NewTracker(out io.Writer, total int, enabled, colorize bool) *Tracker {
	t := &Tracker{
		out:       out,
		enabled:   enabled && out != nil,
		color:     &util.Colorizer{Enabled: colorize},
		startTime: time.Now(),
	}
	t.total.Store(int64(total))
	t.draw(true)
	return t
}

// AddTotal grows the expected total, e.g. while offline captures are still loading.
func (t *Tracker) AddTotal(n int) {
	t.total.Add(int64(n))
	t.draw(false)
}

// Observe records one finished result. It is meant to be called from Detector.OnResult.
func (t *Tracker) Observe(r model.Result) {
	switch {
	case r.Failed():
		t.errors.Add(1)
	case len(r.Matches) > 0:
		t.matched.Add(1)
	}
	t.completed.Add(1)
	t.draw(false)
}

// Counts returns completed, matched and failed totals.
func (t *Tracker) Counts() (completed, matched, failed int) {
	return int(t.completed.Load()), int(t.matched.Load()), int(t.errors.Load())
}

// Done clears the status line and prints the summary.
func (t *Tracker) Done() {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drawn {
		fmt.Fprint(t.out, "\033[2K\r")
	}
	completed, matched, failed := t.Counts()
	fmt.Fprintf(t.out, "[+] Scan Finished: Processed %d targets in %s (Detected: %d, Errors: %d)\n",
		completed, time.Since(t.startTime).Round(time.Second), matched, failed)
}

// Clear erases the status line so log output starts on a clean line.
func (t *Tracker) Clear() {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drawn {
		fmt.Fprint(t.out, "\033[2K\r")
	}
}

func (t *Tracker) draw(force bool) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !force && time.Since(t.lastUpdate) < refreshInterval {
		return
	}
	t.lastUpdate = time.Now()
	t.drawn = true
	fmt.Fprintf(t.out, "\033[2K\r%s", t.line())
}

func (t *Tracker) line() string {
	total := t.total.Load()
	completed, matched, failed := t.Counts()
	elapsed := time.Since(t.startTime)

	rate := 0.0
	if elapsed.Seconds() > 0 {
		rate = float64(completed) / elapsed.Seconds()
	}
	percent := "0.0%"
	if total > 0 {
		percent = fmt.Sprintf("%.1f%%", float64(completed)/float64(total)*100)
	}

	return fmt.Sprintf("[+] %s | Processed: %d/%d | Detected: %s | Errors: %s | Speed: %.2f/s | Time: %s",
		t.color.Cyan(percent),
		completed, total,
		t.color.Green(fmt.Sprintf("%d", matched)),
		t.color.Red(fmt.Sprintf("%d", failed)),
		rate,
		elapsed.Round(time.Second))
}
