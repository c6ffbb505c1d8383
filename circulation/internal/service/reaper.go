package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReaperReport summarizes one reaper sweep.
type ReaperReport struct {
	HoldsDeleted int `json:"holdsDeleted"`
	PoolsUpdated int `json:"poolsUpdated"`
}

const reaperPoolWorkers = 4

// ReapExpiredHolds deletes reservations whose checkout deadline has passed
// and reclaims their slots. Each affected pool gets its expired holds
// removed in one statement followed by a single queue recomputation, so a
// freed slot cascades to the next patron in one pass. A failure on one pool
// is logged and the sweep continues.
func (s *Service) ReapExpiredHolds(ctx context.Context) (ReaperReport, error) {
	now := s.clk.Now()
	poolIDs, err := s.repo.ListPoolIDsWithExpiredReservations(ctx, now)
	if err != nil {
		return ReaperReport{}, err
	}

	var (
		mu     sync.Mutex
		report ReaperReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reaperPoolWorkers)
	for _, poolID := range poolIDs {
		poolID := poolID
		g.Go(func() error {
			deleted := 0
			err := s.repo.WithTx(gctx, func(ctx context.Context) error {
				pool, err := s.repo.GetPoolForUpdate(ctx, poolID)
				if err != nil {
					return err
				}
				deleted, err = s.repo.DeleteExpiredReservations(ctx, poolID, now)
				if err != nil {
					return err
				}
				if deleted == 0 {
					// Another sweep or a checkout got here first.
					return nil
				}
				return s.updateLicensePoolDefaultPolicy(ctx, &pool)
			})
			if err != nil {
				// One bad pool must not halt the sweep.
				s.log.Error("reaper: pool sweep failed", zap.Int64("pool", poolID), zap.Error(err))
				return nil
			}
			if deleted > 0 {
				mu.Lock()
				report.HoldsDeleted += deleted
				report.PoolsUpdated++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck

	s.log.Info("reaper sweep finished",
		zap.Int("holds_deleted", report.HoldsDeleted),
		zap.Int("pools_updated", report.PoolsUpdated))
	return report, nil
}
