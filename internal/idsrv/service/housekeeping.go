package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/metrics"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/revocation"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
)

// HousekeepingService periodically removes expired refresh tokens,
// revocation entries and signing keys.
type HousekeepingService struct {
	Store       store.Store
	Revocations revocation.List
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Interval    time.Duration
	Now         func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService returns a stopped service. A non-positive
// interval defaults to one hour.
func NewHousekeepingService(s store.Store, revocations revocation.List, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:       s,
		Revocations: revocations,
		Logger:      logger,
		Interval:    interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then every Interval until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup performs one pass. Each table is cleaned independently; a
// failure is logged and does not stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := nowFunc(s.Now)

	steps := []struct {
		table string
		fn    func(context.Context, time.Time) (int64, error)
	}{
		{"refresh_tokens", s.Store.RefreshTokens().DeleteExpiredRefreshTokens},
		{"revoked_tokens", s.Revocations.Purge},
		{"signing_keys", s.Store.SigningKeys().DeleteExpiredSigningKeys},
	}

	var total int64
	for _, step := range steps {
		sctx, cancel := storeCtx(ctx, 0)
		n, err := step.fn(sctx, now)
		cancel()
		if err != nil {
			s.Logger.Error("housekeeping step failed", "table", step.table, "error", err)
			continue
		}
		s.Metrics.HousekeepingDeleted(step.table, n)
		total += n
	}

	s.Logger.Info("housekeeping cleanup completed", "deleted", total)
}
