package room

import (
	"context"
	"log/slog"
	"time"
)

// SweeperConfig contains configuration for the background sweeper.
type SweeperConfig struct {
	// MaxRoomAge is how long an empty active room may exist before the
	// stale sweep deletes it. Default: 24 hours.
	MaxRoomAge time.Duration

	// Retention is how long ended rooms are kept before the retention
	// sweep deletes them. Default: 7 days.
	Retention time.Duration

	// Interval is how often both sweeps run. Default: 1 hour.
	Interval time.Duration
}

// DefaultSweeperConfig returns the default sweeper configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		MaxRoomAge: 24 * time.Hour,
		Retention:  7 * 24 * time.Hour,
		Interval:   1 * time.Hour,
	}
}

// Sweeper periodically runs the stale-empty and retention sweeps.
type Sweeper struct {
	coordinator *Coordinator
	logger      *slog.Logger
	config      SweeperConfig
	stopChan    chan struct{}
	doneChan    chan struct{}
}

// NewSweeper creates a new background sweeper over the coordinator.
func NewSweeper(coordinator *Coordinator, logger *slog.Logger, config SweeperConfig) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxRoomAge == 0 {
		config.MaxRoomAge = 24 * time.Hour
	}
	if config.Retention == 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	if config.Interval == 0 {
		config.Interval = 1 * time.Hour
	}
	return &Sweeper{
		coordinator: coordinator,
		logger:      logger,
		config:      config,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

// Start begins the sweeper. It runs in a background goroutine and performs
// both sweeps at regular intervals.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("room sweeper started",
		slog.Duration("max_room_age", s.config.MaxRoomAge),
		slog.Duration("retention", s.config.Retention),
		slog.Duration("interval", s.config.Interval))

	// Run an initial pass immediately.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("room sweeper stopping due to context cancellation")
			return
		case <-s.stopChan:
			s.logger.Info("room sweeper stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()

	stale, err := s.coordinator.SweepStaleRooms(ctx, s.config.MaxRoomAge)
	if err != nil {
		s.logger.Error("stale room sweep failed",
			slog.String("error", err.Error()))
	}
	ended, err := s.coordinator.SweepEndedRooms(ctx, s.config.Retention)
	if err != nil {
		s.logger.Error("ended room sweep failed",
			slog.String("error", err.Error()))
	}

	attrs := []any{slog.Duration("duration", time.Since(start))}
	if stale != nil {
		attrs = append(attrs,
			slog.Int("stale_deleted", stale.Deleted),
			slog.Int("stale_skipped", stale.Skipped))
	}
	if ended != nil {
		attrs = append(attrs, slog.Int("ended_deleted", ended.Deleted))
	}
	s.logger.Info("room sweep completed", attrs...)
}
