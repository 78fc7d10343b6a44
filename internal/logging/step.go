package logging

import (
	"context"
	"log/slog"
	"time"
)

// Step measures one named stage of a request pipeline. The returned context
// carries a logger enriched with the step name so nested calls inherit it.
type Step struct {
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartStep derives a step-scoped logger from the context and starts timing.
func StartStep(ctx context.Context, name string) (context.Context, *Step) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx).With(slog.String("step", name))
	ctx = WithLogger(ctx, logger)

	return ctx, &Step{name: name, logger: logger, start: time.Now()}
}

// End emits a completion entry with the elapsed duration.
func (s *Step) End() {
	if s == nil {
		return
	}
	s.logger.Debug("step completed", slog.Duration("duration", time.Since(s.start)))
}

// Fail emits a failure entry with the elapsed duration and the error.
func (s *Step) Fail(err error) {
	if s == nil {
		return
	}
	s.logger.Warn("step failed",
		slog.Duration("duration", time.Since(s.start)),
		slog.Any("error", err),
	)
}
