package recurrence

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs MaterializeAll on a fixed interval.
type Scheduler struct {
	materializer *Materializer
	interval     time.Duration
}

// NewScheduler creates a Scheduler that runs every interval.
func NewScheduler(m *Materializer, interval time.Duration) *Scheduler {
	return &Scheduler{materializer: m, interval: interval}
}

// Run materializes once immediately, then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("Recurrence scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			slog.Info("Recurrence scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	res, err := s.materializer.MaterializeAll(ctx)
	if err != nil {
		slog.Error("scheduled materialization failed", "error", err)
		return
	}
	slog.Debug("scheduled materialization finished",
		"created", res.Created,
		"failures", len(res.Failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
