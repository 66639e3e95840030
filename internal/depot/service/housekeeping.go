package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/quartzlab/depot/internal/depot/store"
)

// Housekeeping periodically deletes expired refresh token records so the
// table does not grow without bound. Expired tokens are already rejected
// at use; this is purely hygiene.
type Housekeeping struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeping creates the worker. A non-positive interval defaults
// to 1 hour.
func NewHousekeeping(st store.Store, logger *slog.Logger, interval time.Duration) *Housekeeping {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &Housekeeping{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut
// it down.
func (s *Housekeeping) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down and waits for any in-progress sweep.
func (s *Housekeeping) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *Housekeeping) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// First sweep right away so restarts don't wait a full interval.
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Housekeeping) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		s.Logger.Error("expired token sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.Logger.Info("removed expired refresh tokens", "count", n)
	}
}
