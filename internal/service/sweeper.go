package service

import (
	"context"
	"time"

	"github.com/readshelf/readshelf/internal/config"
	"github.com/readshelf/readshelf/internal/logger"
	"github.com/readshelf/readshelf/internal/metrics"
)

// Sweeper periodically removes expired blacklist and reset-log rows. It
// runs off the request path and only ever deletes: an expired row can no
// longer influence any verification, so racing normal traffic is safe.
type Sweeper struct {
	revoked RevocationStore
	ledger  ResetLedger
	cfg     *config.Public
}

func NewSweeper(revoked RevocationStore, ledger ResetLedger, cfg *config.Public) *Sweeper {
	return &Sweeper{revoked: revoked, ledger: ledger, cfg: cfg}
}

// Start launches both sweep loops. They stop when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.loop(ctx, s.cfg.BlacklistSweepInterval, s.sweepBlacklist)
	go s.loop(ctx, s.cfg.ResetLogSweepInterval, s.sweepResetLog)

	logger.Log.Info("started background sweeps",
		"blacklist_interval", s.cfg.BlacklistSweepInterval,
		"reset_log_interval", s.cfg.ResetLogSweepInterval)
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, sweep func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweepBlacklist() {
	deleted, err := s.revoked.DeleteExpiredTokens()
	if err != nil {
		logger.Log.Error("blacklist sweep failed", "error", err)
		return
	}
	metrics.SweptRows.WithLabelValues("token_blacklist").Add(float64(deleted))
	logger.Log.Info("blacklist sweep completed", "deleted", deleted)
}

func (s *Sweeper) sweepResetLog() {
	before := time.Now().Add(-s.cfg.ResetLookback)
	deleted, err := s.ledger.DeleteExpiredResetLogs(before)
	if err != nil {
		logger.Log.Error("reset log sweep failed", "error", err)
		return
	}
	metrics.SweptRows.WithLabelValues("password_reset_log").Add(float64(deleted))
	logger.Log.Info("reset log sweep completed", "deleted", deleted)
}
