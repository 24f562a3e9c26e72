package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/Abhaythakor/fingerprintweb/aggregate"
	"github.com/Abhaythakor/fingerprintweb/model"
)

// JSONWriter buffers results and writes a single {meta, results} document on Close.
type JSONWriter struct {
	out     io.WriteCloser
	meta    model.Meta
	mode    string
	results model.Batch
	closed  bool
	mu      sync.Mutex
}

// NewJSONWriter creates a new JSONWriter.
func NewJSONWriter(out io.WriteCloser, meta model.Meta) *JSONWriter {
	return &JSONWriter{out: out, meta: meta, mode: model.ModeAll}
}

// Write buffers batch until Close.
func (w *JSONWriter) Write(batch model.Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results = append(w.results, batch...)
	return nil
}

// SetMode sets the output mode (all | domain).
func (w *JSONWriter) SetMode(mode string) {
	w.mu.Lock()
	w.mode = mode
	w.mu.Unlock()
}

// Close writes the document and closes the destination. Calling it twice is a no-op.
func (w *JSONWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	meta := w.meta
	meta.Mode = w.mode

	var results any = w.results
	if w.mode == model.ModeDomain {
		results = aggregate.ByDomain(w.results)
	} else if w.results == nil {
		results = model.Batch{}
	}

	doc := struct {
		Meta    model.Meta `json:"meta"`
		Results any        `json:"results"`
	}{Meta: meta, Results: results}

	encoder := json.NewEncoder(w.out)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(doc); err != nil {
		w.out.Close()
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return w.out.Close()
}
