// Package sink publishes per-URL results to external systems as they complete.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/config"
	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

// Schema tags every published record.
const Schema = "fingerprintweb.result.v1"

type Sink interface {
	Start(ctx context.Context) error
	Publish(ctx context.Context, r model.Result) error
	Close() error
	Name() string // used in logs
}

// FromEnv builds the sinks named in SINKS (log, kafka, postgres). scanID is attached to
// every record.
func FromEnv(scanID string) ([]Sink, error) {
	var sinks []Sink
	for _, name := range config.GetList("SINKS") {
		switch strings.ToLower(name) {
		case "log":
			sinks = append(sinks, NewLogSink(util.Default()))
		case "kafka":
			sinks = append(sinks, NewKafkaSinkFromEnv(scanID))
		case "postgres", "pg":
			sinks = append(sinks, NewPGSinkFromEnv(scanID))
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return sinks, nil
}

// Fanout delivers each result to several sinks. Failures are logged and never stop the scan.
type Fanout struct {
	sinks []Sink
}

// Start starts every sink and keeps the ones that came up.
func Start(ctx context.Context, sinks []Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if err := s.Start(ctx); err != nil {
			util.Warn("Sink %s disabled: %v", s.Name(), err)
			continue
		}
		util.Debug("Sink %s started", s.Name())
		f.sinks = append(f.sinks, s)
	}
	return f
}

// Len returns the number of running sinks.
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}

// Publish sends r to every running sink.
func (f *Fanout) Publish(ctx context.Context, r model.Result) {
	if f == nil {
		return
	}
	for _, s := range f.sinks {
		if err := s.Publish(ctx, r); err != nil {
			util.Warn("Sink %s failed for %s: %v", s.Name(), r.URL, err)
		}
	}
}

// Close closes every sink and returns the joined errors.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	f.sinks = nil
	return errors.Join(errs...)
}
