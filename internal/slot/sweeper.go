package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/overplus/booking-service/internal/logging"
	"github.com/overplus/booking-service/internal/metrics"
)

// LinkSweeper garbage-collects expired payment links. The payment link
// store implements it; the sweeper only needs the one method.
type LinkSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type SweepReport struct {
	Released     int      `json:"released_count"`
	LinksExpired int64    `json:"link_expired_count"`
	Errors       []string `json:"errors,omitempty"`
}

type SweepStatus struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// Sweeper reconciles held slots whose deadline has passed back to available
// and expires payment links in the same pass. Overlapping sweeps are safe:
// every release is conditioned on the current holder, so a double release
// is a no-op.
type Sweeper struct {
	repo   Repository
	svc    *Service
	links  LinkSweeper
	logger *logging.Logger
}

func NewSweeper(repo Repository, svc *Service, links LinkSweeper, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		repo:   repo,
		svc:    svc,
		links:  links,
		logger: logger,
	}
}

// Sweep releases every held slot expired as of now. Per-slot failures are
// isolated: one failing release never aborts the rest of the pass.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) SweepReport {
	var report SweepReport

	expired, err := s.repo.FindExpiredHeld(ctx, now)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("find expired holds: %v", err))
		return report
	}

	for _, sl := range expired {
		holder := ""
		if sl.HolderSession != nil {
			holder = *sl.HolderSession
		} else {
			s.logger.Warn("held slot without expiry or holder, treating as expired", "slot_id", sl.ID)
		}

		released, err := s.svc.Release(ctx, sl.ID, holder)
		if err != nil {
			metrics.SweepErrors.Inc()
			report.Errors = append(report.Errors, fmt.Sprintf("release %s: %v", sl.ID, err))
			continue
		}
		if released {
			metrics.SweepReleases.Inc()
			report.Released++
		}
	}

	if s.links != nil {
		n, err := s.links.DeleteExpired(ctx, now)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("expire payment links: %v", err))
		} else {
			report.LinksExpired = n
		}
	}

	s.logger.Info("sweep complete",
		"released", report.Released,
		"links_expired", report.LinksExpired,
		"errors", len(report.Errors),
	)

	return report
}

// Status reports how many holds exist, split into still-active and
// already-expired as of now.
func (s *Sweeper) Status(ctx context.Context, now time.Time) (SweepStatus, error) {
	total, active, expired, err := s.repo.CountHolds(ctx, now)
	if err != nil {
		return SweepStatus{}, fmt.Errorf("sweep status: %w", err)
	}
	return SweepStatus{Total: total, Active: active, Expired: expired}, nil
}
