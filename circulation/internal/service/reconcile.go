package service

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/odl-go/circulation-service/circulation/internal/errs"
	"github.com/odl-go/circulation-service/circulation/internal/model"
)

// updateLicensePool recomputes the pool's derived counters from its license
// set and active holds, persists them, and promotes holds into freed
// reservation slots. It must run as the last mutation inside the pool's
// transaction.
func (s *Service) updateLicensePool(ctx context.Context, pool *model.LicensePool, policy model.CollectionPolicy) error {
	now := s.clk.Now()

	licenses, err := s.repo.ListLicenses(ctx, pool.ID)
	if err != nil {
		return err
	}

	owned, available := 0, 0
	for i := range licenses {
		owned += licenses[i].TotalRemainingLoans(now)
		available += licenses[i].CurrentlyAvailableLoans(now)
	}

	holds, err := s.repo.ListActiveHolds(ctx, pool.ID)
	if err != nil {
		return err
	}

	patrons := len(holds)
	var reserved int
	if patrons > available {
		reserved = available
		available = 0
	} else {
		reserved = patrons
		available -= reserved
	}

	if available < 0 || available+reserved > owned {
		// Conservation violated; this is a programming error, never
		// user input.
		s.log.Panic("license pool counters out of conservation",
			zap.Int64("pool", pool.ID),
			zap.Int("owned", owned), zap.Int("available", available), zap.Int("reserved", reserved))
	}

	pool.LicensesOwned = owned
	pool.LicensesAvailable = available
	pool.LicensesReserved = reserved
	pool.PatronsInHoldQueue = patrons
	if err := s.repo.UpdatePoolCounts(ctx, pool.ID, owned, available, reserved, patrons); err != nil {
		return err
	}

	// Promote the front of the queue into the reserved slots. Only newly
	// promoted holds get a fresh reservation deadline; holds that were
	// already reserved keep theirs.
	for i := range holds {
		hold := holds[i]
		if i < reserved {
			if hold.Position != 0 {
				hold.Position = 0
				end := now.AddDate(0, 0, policy.DefaultReservationPeriodDays)
				hold.End = &end
				if err := s.repo.UpdateHold(ctx, hold); err != nil {
					return err
				}
			}
			continue
		}
		pos := i - reserved + 1
		if hold.Position != pos {
			hold.Position = pos
			if err := s.repo.UpdateHold(ctx, hold); err != nil {
				return err
			}
		}
	}

	return nil
}

// updateLicensePoolDefaultPolicy is updateLicensePool for callers that
// haven't already fetched the collection policy.
func (s *Service) updateLicensePoolDefaultPolicy(ctx context.Context, pool *model.LicensePool) error {
	policy, err := s.repo.GetPolicy(ctx, pool.CollectionID)
	if err != nil {
		return err
	}
	return s.updateLicensePool(ctx, pool, policy)
}

// endLoan releases a loan's license slot, deletes the loan and reconciles
// the pool.
func (s *Service) endLoan(ctx context.Context, pool *model.LicensePool, loan model.Loan) error {
	if loan.LicenseID != nil {
		licenses, err := s.repo.ListLicenses(ctx, pool.ID)
		if err != nil {
			return err
		}
		for i := range licenses {
			if licenses[i].ID == *loan.LicenseID {
				licenses[i].Checkin()
				if err := s.repo.UpdateLicense(ctx, licenses[i]); err != nil {
					return err
				}
				break
			}
		}
	}
	if err := s.repo.DeleteLoan(ctx, loan.ID); err != nil {
		return err
	}
	return s.updateLicensePoolDefaultPolicy(ctx, pool)
}

// UpdateLoan applies a pushed or fetched status document to a loan. An
// unknown loan uid is a no-op: terminal documents can arrive more than once
// and out of order.
func (s *Service) UpdateLoan(ctx context.Context, loanUID string, doc model.StatusDocument) error {
	if !model.KnownStatus(doc.Status) {
		return errs.NewRemoteIntegrationError(loanUID, "status document has an unknown status value", nil)
	}
	if doc.Active() {
		return nil
	}

	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		loan, err := s.repo.GetLoanByUID(ctx, loanUID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				// Already processed, or the checkout never completed.
				return nil
			}
			return err
		}
		pool, err := s.repo.GetPoolForUpdate(ctx, loan.PoolID)
		if err != nil {
			return err
		}
		s.log.Info("loan ended by distributor status",
			zap.String("loan", loan.LoanUID), zap.String("status", doc.Status))
		return s.endLoan(ctx, &pool, loan)
	})
}

// RefreshLoan fetches the loan's current status from the distributor and
// applies it.
func (s *Service) RefreshLoan(ctx context.Context, loanUID string) error {
	var (
		externalID string
		found      bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		loan, err := s.repo.GetLoanByUID(ctx, loanUID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return nil
			}
			return err
		}
		externalID = loan.ExternalID
		found = true
		return nil
	})
	if err != nil || !found {
		return err
	}

	doc, err := s.client.GetStatus(ctx, externalID)
	if err != nil {
		return err
	}
	return s.UpdateLoan(ctx, loanUID, doc)
}

// bestAvailableLicense picks the license a new checkout should consume:
// the active, available license with the smallest remaining checkout
// budget, so scarce licenses are spent before unlimited ones. Ties break on
// identifier.
func bestAvailableLicense(licenses []model.License, now time.Time) *model.License {
	var best *model.License
	bestBudget := math.MaxInt
	for i := range licenses {
		lic := &licenses[i]
		if !lic.IsAvailableForBorrowing(now) {
			continue
		}
		budget := math.MaxInt
		if lic.CheckoutsLeft != nil {
			budget = *lic.CheckoutsLeft
		}
		if best == nil || budget < bestBudget || (budget == bestBudget && lic.Identifier < best.Identifier) {
			best = lic
			bestBudget = budget
		}
	}
	return best
}
