// Package sweeper runs the periodic expiry sweep that drives stale
// conversions to EXPIRED.
package sweeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openbridge/converter-core/pkg/config"
)

// Expirer sweeps conversions older than their per-chain cutoff.
type Expirer interface {
	ExpireConversions(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper triggers the expiry sweep on a fixed interval.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Sweeper from the expiry configuration.
func New(expirer Expirer, cfg *config.ExpiryConfig, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		expirer:  expirer,
		interval: cfg.SweepInterval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// SweepOnce runs a single sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	_, err := s.expirer.ExpireConversions(ctx, time.Now().UTC())
	return err
}

// Start launches the periodic sweep goroutine. Each run is bounded; a failed
// run is logged and the loop continues.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Started expiry sweeper", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := s.SweepOnce(ctx); err != nil {
					s.logger.Error("Expiry sweep failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				s.logger.Info("Stopping expiry sweeper")
				return
			}
		}
	}()
}

// Stop stops the periodic sweep and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
