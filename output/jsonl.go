package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/Abhaythakor/fingerprintweb/aggregate"
	"github.com/Abhaythakor/fingerprintweb/model"
)

// JSONLWriter implements the Writer interface for JSON Lines output.
// In all mode each result is written as it arrives, so the file can be appended to on resume.
type JSONLWriter struct {
	out      io.WriteCloser
	encoder  *json.Encoder
	mode     string
	buffered model.Batch // domain mode only
	mu       sync.Mutex
}

// NewJSONLWriter creates a new JSONLWriter.
func NewJSONLWriter(out io.WriteCloser) *JSONLWriter {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{out: out, encoder: enc, mode: model.ModeAll}
}

func (w *JSONLWriter) Write(batch model.Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mode == model.ModeDomain {
		w.buffered = append(w.buffered, batch...)
		return nil
	}
	for _, r := range batch {
		if err := w.encoder.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func (w *JSONLWriter) SetMode(mode string) {
	w.mu.Lock()
	w.mode = mode
	w.mu.Unlock()
}

func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	defer func() { w.out = nil }()

	if w.mode == model.ModeDomain {
		for _, s := range aggregate.ByDomain(w.buffered) {
			if err := w.encoder.Encode(s); err != nil {
				w.out.Close()
				return err
			}
		}
	}
	return w.out.Close()
}
