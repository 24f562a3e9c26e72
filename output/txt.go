package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Abhaythakor/fingerprintweb/aggregate"
	"github.com/Abhaythakor/fingerprintweb/model"
)

// maxListedURLs caps the URL list printed per domain.
const maxListedURLs = 50

// textWriter streams one rendered block per result, or one per domain on Close in domain mode.
// The txt, md and cli formats differ only in their render functions.
type textWriter struct {
	out          io.WriteCloser
	mode         string
	buffered     model.Batch
	renderResult func(r model.Result) string
	renderDomain func(s aggregate.DomainSummary) string
	header       string
	mu           sync.Mutex
}

func (w *textWriter) Write(batch model.Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mode == model.ModeDomain {
		w.buffered = append(w.buffered, batch...)
		return nil
	}
	for _, r := range batch {
		if err := w.emit(w.renderResult(r)); err != nil {
			return err
		}
	}
	return nil
}

func (w *textWriter) emit(block string) error {
	if block == "" {
		return nil
	}
	if w.header != "" {
		if _, err := io.WriteString(w.out, w.header); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		w.header = ""
	}
	if _, err := io.WriteString(w.out, block); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (w *textWriter) SetMode(mode string) {
	w.mu.Lock()
	w.mode = mode
	w.mu.Unlock()
}

func (w *textWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	defer func() { w.out = nil }()

	if w.mode == model.ModeDomain {
		for _, s := range aggregate.ByDomain(w.buffered) {
			if err := w.emit(w.renderDomain(s)); err != nil {
				w.out.Close()
				return err
			}
		}
	}
	return w.out.Close()
}

// TXTWriter implements the Writer interface for plain text output.
type TXTWriter struct{ *textWriter }

// NewTXTWriter creates a new TXTWriter.
func NewTXTWriter(out io.WriteCloser) *TXTWriter {
	return &TXTWriter{&textWriter{
		out:          out,
		mode:         model.ModeAll,
		renderResult: txtResult,
		renderDomain: txtDomain,
	}}
}

func txtResult(r model.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", target(r))
	if r.Failed() {
		fmt.Fprintf(&b, "  error (%s): %s\n\n", r.ErrorType, r.Error)
		return b.String()
	}
	if len(r.Matches) == 0 {
		b.WriteString("  no technologies detected\n\n")
		return b.String()
	}
	for _, m := range r.Matches {
		b.WriteString("  " + label(m))
		if m.Category != "" {
			fmt.Fprintf(&b, " (%s)", m.Category)
		}
		if m.Implied {
			b.WriteString(" [implied]")
		} else {
			fmt.Fprintf(&b, " [%s]", m.Origin)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func txtDomain(s aggregate.DomainSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Domain: %s\n", s.Domain)
	fmt.Fprintf(&b, "  URLs Scanned: %d", len(s.URLs))
	if s.Failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", s.Failed)
	}
	b.WriteString("\n")
	for i, u := range s.URLs {
		if i == maxListedURLs {
			fmt.Fprintf(&b, "    - (and %d more URLs...)\n", len(s.URLs)-maxListedURLs)
			break
		}
		fmt.Fprintf(&b, "    - %s\n", u)
	}
	b.WriteString("  Technologies:\n")
	for _, m := range s.Technologies {
		fmt.Fprintf(&b, "    - %s\n", label(m))
	}
	b.WriteString("\n")
	return b.String()
}
