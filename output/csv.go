package output

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"

	"github.com/Abhaythakor/fingerprintweb/aggregate"
	"github.com/Abhaythakor/fingerprintweb/model"
)

var csvHeader = []string{"domain", "url", "final_url", "status", "app", "ver", "type", "origin", "implied", "confidence", "error"}

// CSVWriter writes one row per match. A result without matches still gets a row so failures
// and empty pages stay visible.
type CSVWriter struct {
	out      io.WriteCloser
	writer   *csv.Writer
	mode     string
	buffered model.Batch
	mu       sync.Mutex
}

// NewCSVWriter writes the header row when header is true.
func NewCSVWriter(out io.WriteCloser, header bool) (*CSVWriter, error) {
	w := csv.NewWriter(out)
	if header {
		if err := w.Write(csvHeader); err != nil {
			return nil, err
		}
	}
	return &CSVWriter{out: out, writer: w, mode: model.ModeAll}, nil
}

// Write outputs rows for each result, or buffers them in domain mode.
func (w *CSVWriter) Write(batch model.Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mode == model.ModeDomain {
		w.buffered = append(w.buffered, batch...)
		return nil
	}
	for _, r := range batch {
		status := ""
		if r.Status != 0 {
			status = strconv.Itoa(r.Status)
		}
		if len(r.Matches) == 0 {
			if err := w.writer.Write([]string{r.Domain, r.URL, r.FinalURL, status, "", "", "", "", "", "", r.Error}); err != nil {
				return err
			}
			continue
		}
		for _, m := range r.Matches {
			if err := w.writer.Write(append([]string{r.Domain, r.URL, r.FinalURL, status}, matchColumns(m, r.Error)...)); err != nil {
				return err
			}
		}
	}
	w.writer.Flush() // flush per batch so partial runs leave usable output
	return w.writer.Error()
}

func matchColumns(m model.Match, errMsg string) []string {
	confidence := ""
	if m.Confidence != 0 {
		confidence = strconv.Itoa(m.Confidence)
	}
	return []string{m.Name, m.Version, m.Category, string(m.Origin), strconv.FormatBool(m.Implied), confidence, errMsg}
}

// SetMode updates the output mode.
func (w *CSVWriter) SetMode(mode string) {
	w.mu.Lock()
	w.mode = mode
	w.mu.Unlock()
}

// Close writes buffered domain rows, flushes and closes the destination.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	defer func() { w.out = nil }()

	if w.mode == model.ModeDomain {
		for _, s := range aggregate.ByDomain(w.buffered) {
			for _, m := range s.Technologies {
				if err := w.writer.Write(append([]string{s.Domain, "", "", ""}, matchColumns(m, "")...)); err != nil {
					w.out.Close()
					return err
				}
			}
		}
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.out.Close()
		return err
	}
	return w.out.Close()
}
