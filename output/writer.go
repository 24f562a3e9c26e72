// Package output renders result batches as json, jsonl, csv, txt, md or colored terminal lines.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/model"
)

// Writer defines the interface for outputting detection results.
type Writer interface {
	Write(batch model.Batch) error
	SetMode(mode string) // all | domain
	Close() error
}

// Formats lists the accepted --format values.
var Formats = []string{"json", "jsonl", "csv", "txt", "md", "cli"}

// Options selects and configures a writer.
type Options struct {
	Format string
	Path   string // "" or "-" writes to stdout
	Append bool   // jsonl and csv only, used when resuming
	Color  bool   // cli only
	Meta   model.Meta
}

// New opens the destination and returns the writer for opts.Format.
func New(opts Options) (Writer, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "json"
	}

	var appendOK bool
	switch format {
	case "jsonl", "csv":
		appendOK = true
	case "json", "txt", "md", "cli":
	default:
		return nil, fmt.Errorf("unknown output format %q (want one of %s)", opts.Format, strings.Join(Formats, ", "))
	}

	out, fresh, err := openDestination(opts.Path, opts.Append && appendOK)
	if err != nil {
		return nil, err
	}

	switch format {
	case "jsonl":
		return NewJSONLWriter(out), nil
	case "csv":
		return NewCSVWriter(out, fresh)
	case "txt":
		return NewTXTWriter(out), nil
	case "md":
		return NewMDWriter(out), nil
	case "cli":
		return NewCLIWriter(out, opts.Color), nil
	default:
		return NewJSONWriter(out, opts.Meta), nil
	}
}

// openDestination reports fresh=false when appending to a non-empty file.
func openDestination(path string, appendMode bool) (io.WriteCloser, bool, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, true, nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	fresh := true
	if appendMode {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			fresh = false
		}
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open output file %s: %w", path, err)
	}
	return file, fresh, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// label renders "Name Version".
func label(m model.Match) string {
	if m.Version == "" {
		return m.Name
	}
	return m.Name + " " + m.Version
}

// target is the URL a result is shown under, with the final URL when a redirect was followed.
func target(r model.Result) string {
	if r.FinalURL != "" && r.FinalURL != r.URL {
		return r.URL + " -> " + r.FinalURL
	}
	return r.URL
}
