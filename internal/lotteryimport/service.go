package lotteryimport

import (
	"context"
	"log/slog"
	"time"

	"github.com/storelink/lotterysync/internal/audit"
)

// DefaultTokenTTL is the fixed lifetime of a validation token.
const DefaultTokenTTL = 15 * time.Minute

// Config bounds a Service. Zero fields take documented defaults.
type Config struct {
	// TokenTTL is the validation token lifetime (default 15m).
	TokenTTL time.Duration

	// MaxFileSize and MaxRows are forwarded to the CSV parser
	// (defaults 5MB / 1000).
	MaxFileSize int64
	MaxRows     int
}

// Service runs both import phases against a Repository.
type Service struct {
	repo    Repository
	auditor audit.Sink
	cfg     Config
	now     func() time.Time
}

// NewService wires the import service. auditor may be nil to disable
// audit writes.
func NewService(repo Repository, auditor audit.Sink, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Service{repo: repo, auditor: auditor, cfg: cfg, now: time.Now}
}

// StartSweeper periodically deletes expired, uncommitted pending imports
// until ctx is cancelled. Run it from main as a background job.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("pending-import sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("pending-import sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.repo.DeleteExpiredPendingImports(ctx)
			if err != nil {
				slog.Error("pending-import sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired pending imports removed", "count", n)
			}
		}
	}
}

func (s *Service) writeAudit(ctx context.Context, e audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Write(ctx, e); err != nil {
		slog.Error("audit write failed", "action", e.Action, "object_id", e.ObjectID, "error", err)
	}
}
