package beacon

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/k3vt/aprsgate/internal/metrics"
	"github.com/k3vt/aprsgate/internal/storage"
)

// Sweeper periodically ends live sessions whose share period elapsed and
// prunes old beacon log entries.
type Sweeper struct {
	manager   *Manager
	store     storage.Store
	notifier  Notifier
	clock     Clock
	interval  time.Duration
	retention time.Duration
	logger    zerolog.Logger
	stopChan  chan struct{}
}

// NewSweeper creates a sweeper. retention <= 0 disables log pruning and a
// nil notifier disables end-of-sharing messages.
func NewSweeper(manager *Manager, store storage.Store, notifier Notifier, clock Clock,
	interval, retention time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		manager:   manager,
		store:     store,
		notifier:  notifier,
		clock:     clock,
		interval:  interval,
		retention: retention,
		logger:    logger.With().Str("component", "sweeper").Logger(),
		stopChan:  make(chan struct{}),
	}
}

// Start begins the sweep loop
func (s *Sweeper) Start() {
	go s.run()
	s.logger.Info().Dur("interval", s.interval).Msg("Expiry sweeper started")
}

// Stop stops the sweep loop
func (s *Sweeper) Stop() {
	close(s.stopChan)
	s.logger.Info().Msg("Expiry sweeper stopped")
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			return
		}
	}
}

// sweep runs one pass. Errors are logged per session so one bad entry
// cannot stall the loop.
func (s *Sweeper) sweep() {
	now := s.clock.Now()

	for _, sess := range s.manager.Snapshot() {
		if now.Before(sess.EndSharing) {
			continue
		}
		if !s.manager.Stop(sess.UserID) {
			continue
		}
		metrics.SessionsExpired.Inc()
		s.logger.Info().Int64("user_id", sess.UserID).Time("end_sharing", sess.EndSharing).Msg("Live session expired")

		if s.notifier != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.notifier.Notify(ctx, sess.ChatID, "Live location sharing ended"); err != nil {
				s.logger.Error().Err(err).Int64("user_id", sess.UserID).Msg("Failed to notify user")
			}
			cancel()
		}
	}

	if s.retention > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := s.store.BeaconLog().DeleteBefore(ctx, now.Add(-s.retention))
		cancel()
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to prune beacon log")
		} else if n > 0 {
			s.logger.Debug().Int("pruned", n).Msg("Beacon log pruned")
		}
	}
}
