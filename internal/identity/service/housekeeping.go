package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/keylet/keylet/internal/identity/store"
)

// HousekeepingService periodically deletes expired rows so sessions,
// verifications, challenges, and stale reset tokens don't grow without
// bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the service. An interval of zero or less
// defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// First sweep right away so restarts don't wait a full interval.
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup deletes each class of expired record independently; one failure
// doesn't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now().UTC()

	sweeps := []struct {
		name string
		fn   func(context.Context, time.Time) error
	}{
		{"sessions", s.Store.Sessions().DeleteExpiredSessions},
		{"verifications", s.Store.Verifications().DeleteExpiredUnverified},
		{"twofactor challenges", s.Store.Challenges().DeleteExpiredChallenges},
		{"reset tokens", s.Store.Accounts().ClearExpiredResetTokens},
	}

	var completed int
	for _, sweep := range sweeps {
		if err := sweep.fn(ctx, now); err != nil {
			s.Logger.Error("housekeeping sweep failed", "target", sweep.name, "error", err)
			continue
		}
		completed++
	}

	s.Logger.Info("housekeeping sweep completed", "successful_sweeps", completed)
}
