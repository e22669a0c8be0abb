package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/simplecrawler/internal/progress"
)

// LogSink emits structured debug logs for every progress event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Session boundaries are logged at
// info level, per-fetch events at debug level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("session_id", evt.SessionUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Stage.Lifecycle() {
			if evt.Dur > 0 {
				fields = append(fields, zap.Duration("elapsed", evt.Dur))
			}
			if evt.Note != "" {
				fields = append(fields, zap.String("reason", evt.Note))
			}
			s.logger.Info("Crawl session event", fields...)
			continue
		}
		fields = append(fields,
			zap.String("site", evt.Site),
			zap.String("url", evt.URL),
		)
		if evt.Stage == progress.StageFetchDone {
			fields = append(fields,
				zap.String("status_class", string(evt.StatusClass)),
				zap.Int64("bytes", evt.Bytes),
				zap.Duration("dur", evt.Dur),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Debug("Fetch event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
