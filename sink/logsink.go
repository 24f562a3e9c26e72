package sink

import (
	"context"
	"encoding/json"

	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

// LogSink writes each result as one JSON log line.
type LogSink struct {
	logger *util.Logger
}

func NewLogSink(logger *util.Logger) *LogSink { return &LogSink{logger: logger} }

func (s *LogSink) Start(ctx context.Context) error { return nil }

func (s *LogSink) Publish(ctx context.Context, r model.Result) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.logger.Info("result %s", b)
	return nil
}

func (s *LogSink) Close() error { return nil }

func (s *LogSink) Name() string { return "log" }
