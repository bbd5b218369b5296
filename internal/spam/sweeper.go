package spam

import (
	"context"
	"log/slog"
	"time"
)

// SweepCallback is called after each sweep, e.g. to publish gauges.
type SweepCallback func(removed int, stats Stats)

// Sweeper periodically clears expired spam records, independent of traffic.
type Sweeper struct {
	detector *Detector
	interval time.Duration
	now      func() time.Time
	callback SweepCallback
}

func NewSweeper(detector *Detector, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		detector: detector,
		interval: interval,
		now:      time.Now,
	}
}

// SetCallback sets a callback invoked after every sweep
func (s *Sweeper) SetCallback(cb SweepCallback) {
	s.callback = cb
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Starting spam sweeper", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-ctx.Done():
			slog.Info("Spam sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) sweep() {
	removed := s.detector.Sweep(s.now())
	stats := s.detector.Stats()

	if removed > 0 {
		slog.Debug("Swept expired spam records", "removed", removed, "records", stats.Records, "windows", stats.Windows)
	}
	if s.callback != nil {
		s.callback(removed, stats)
	}
}
