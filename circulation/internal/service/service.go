package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/odl-go/circulation-service/circulation/internal/errs"
	"github.com/odl-go/circulation-service/circulation/internal/model"
	"github.com/odl-go/circulation-service/circulation/internal/odl"
	"github.com/odl-go/circulation-service/circulation/internal/repository"
	"github.com/odl-go/circulation-service/pkg/clock"
)

// Service orchestrates circulation for one ODL collection: checkouts,
// returns, the hold queue and reconciliation against the distributor's
// license status documents.
type Service struct {
	log    *zap.Logger
	repo   repository.Repository
	client odl.StatusClient
	clk    clock.Clock

	collectionID     int64
	notificationBase string
}

func NewService(repo repository.Repository, client odl.StatusClient, clk clock.Clock, collectionID int64, notificationBase string, log *zap.Logger) *Service {
	return &Service{
		log:              log,
		repo:             repo,
		client:           client,
		clk:              clk,
		collectionID:     collectionID,
		notificationBase: notificationBase,
	}
}

func (s *Service) notificationURL(loanUID string) string {
	return fmt.Sprintf("%s/api/v1/notifications/%s", s.notificationBase, loanUID)
}

// Checkout creates a new loan for the patron on the pool. A patron at the
// front of the hold queue consumes their reservation; otherwise a free
// license slot is required.
func (s *Service) Checkout(ctx context.Context, patron, poolUID string, dm model.DeliveryMechanism) (model.Loan, error) {
	var out model.Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		pool, err := s.lockPool(ctx, poolUID)
		if err != nil {
			return err
		}

		if _, err := s.repo.GetLoanByPatron(ctx, patron, pool.ID); err == nil {
			return errs.ErrAlreadyCheckedOut
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}

		if pool.Limitless() {
			// No per-copy bookkeeping for open/unlimited access pools.
			out, err = s.repo.CreateLoan(ctx, model.Loan{
				PoolID: pool.ID,
				Patron: patron,
				Start:  s.clk.Now(),
			})
			return err
		}

		out, err = s.checkoutLicensed(ctx, patron, &pool)
		return err
	})
	return out, err
}

func (s *Service) checkoutLicensed(ctx context.Context, patron string, pool *model.LicensePool) (model.Loan, error) {
	policy, err := s.repo.GetPolicy(ctx, pool.CollectionID)
	if err != nil {
		return model.Loan{}, err
	}

	if policy.LoanLimit > 0 {
		count, err := s.repo.CountPatronLoans(ctx, patron, pool.CollectionID)
		if err != nil {
			return model.Loan{}, err
		}
		if count >= policy.LoanLimit {
			return model.Loan{}, errs.ErrPatronLoanLimitReached
		}
	}

	now := s.clk.Now()
	licenses, err := s.repo.ListLicenses(ctx, pool.ID)
	if err != nil {
		return model.Loan{}, err
	}
	anyActive := false
	for i := range licenses {
		if !licenses[i].IsInactive(now) {
			anyActive = true
			break
		}
	}
	if !anyActive {
		return model.Loan{}, errs.ErrNoLicenses
	}

	// Bring counters and the hold queue up to date before admission.
	if err := s.updateLicensePool(ctx, pool, policy); err != nil {
		return model.Loan{}, err
	}

	hold, err := s.repo.GetHoldByPatron(ctx, patron, pool.ID)
	hasHold := err == nil
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Loan{}, err
	}

	// Without a live reservation the patron needs a free slot.
	holdReady := hasHold && hold.Position == 0 && (hold.End == nil || hold.End.After(now))
	if !holdReady && pool.LicensesAvailable < 1 {
		return model.Loan{}, errs.ErrNoAvailableCopies
	}

	// The distributor's live answer wins over local counters: on an
	// "unavailable" response the chosen license is zeroed locally and the
	// next-best one is tried once before giving up.
	for attempt := 0; attempt < 2; attempt++ {
		lic := bestAvailableLicense(licenses, now)
		if lic == nil {
			return model.Loan{}, errs.ErrNoAvailableCopies
		}

		loanUID := uuid.New().String()
		doc, err := s.client.Checkout(ctx, *lic, odl.CheckoutParams{
			PatronID:        patron,
			Expires:         now.AddDate(0, 0, policy.DefaultLoanPeriodDays),
			NotificationURL: s.notificationURL(loanUID),
		})
		if errors.Is(err, errs.ErrNoAvailableCopies) {
			s.log.Warn("availability drift: distributor reports license unavailable",
				zap.String("license", lic.Identifier), zap.Int("local_available", lic.CheckoutsAvailable))
			lic.CheckoutsAvailable = 0
			if err := s.repo.UpdateLicense(ctx, *lic); err != nil {
				return model.Loan{}, err
			}
			if hasHold {
				// The reservation pointed at a copy that doesn't exist.
				// Put the patron first in line; the next queue
				// recalculation resolves any duplicate position 1.
				hold.Position = 1
				hold.End = nil
				if err := s.repo.UpdateHold(ctx, hold); err != nil {
					return model.Loan{}, err
				}
			}
			if err := s.updateLicensePool(ctx, pool, policy); err != nil {
				return model.Loan{}, err
			}
			continue
		}
		if err != nil {
			return model.Loan{}, err
		}
		if !doc.Active() {
			return model.Loan{}, errs.ErrCannotLoan
		}

		selfLink := doc.Link("self", odl.StatusContentType)
		if selfLink == nil {
			return model.Loan{}, errs.ErrCannotLoan
		}

		lic.Checkout()
		if err := s.repo.UpdateLicense(ctx, *lic); err != nil {
			return model.Loan{}, err
		}

		loan, err := s.repo.CreateLoan(ctx, model.Loan{
			LoanUID:    loanUID,
			PoolID:     pool.ID,
			Patron:     patron,
			LicenseID:  &lic.ID,
			Start:      now,
			End:        doc.PotentialRights.End,
			ExternalID: selfLink.Href,
		})
		if err != nil {
			return model.Loan{}, err
		}
		if hasHold {
			if err := s.repo.DeleteHold(ctx, hold.ID); err != nil {
				return model.Loan{}, err
			}
		}
		if err := s.updateLicensePool(ctx, pool, policy); err != nil {
			return model.Loan{}, err
		}
		return loan, nil
	}

	return model.Loan{}, errs.ErrNoAvailableCopies
}

// Checkin returns a loan early. The distributor call is idempotent: a loan
// already ended remotely is cleaned up locally without complaint.
func (s *Service) Checkin(ctx context.Context, patron, poolUID string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		pool, err := s.lockPool(ctx, poolUID)
		if err != nil {
			return err
		}

		loan, err := s.repo.GetLoanByPatron(ctx, patron, pool.ID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrNotCheckedOut
			}
			return err
		}

		if pool.Limitless() {
			return s.repo.DeleteLoan(ctx, loan.ID)
		}

		if loan.ExternalID == "" {
			// Should never happen, but don't leave the loan on the
			// patron's shelf forever.
			s.log.Error("loan has no external identifier", zap.String("loan", loan.LoanUID))
			return s.endLoan(ctx, &pool, loan)
		}

		doc, err := s.client.GetStatus(ctx, loan.ExternalID)
		if err != nil {
			return err
		}
		if !doc.Active() {
			s.log.Warn("loan was already returned, revoked or expired remotely",
				zap.String("loan", loan.LoanUID), zap.String("status", doc.Status))
			return s.endLoan(ctx, &pool, loan)
		}

		returnLink := doc.Link("return", odl.StatusContentType)
		if returnLink == nil {
			// The distributor doesn't support early returns; the patron
			// waits for expiry.
			return errs.ErrCannotReturn
		}

		returnURL := odl.ExpandTemplate(returnLink.Href, map[string]string{"name": "circulation-service"})
		doc, err = s.client.Return(ctx, returnURL)
		if err != nil {
			return err
		}
		if doc.Active() {
			s.log.Error("distributor says the loan is still active after return",
				zap.String("loan", loan.LoanUID))
			return errs.ErrCannotReturn
		}

		return s.endLoan(ctx, &pool, loan)
	})
}

// PlaceHold queues the patron for the pool. Holds are only allowed while no
// copies are free.
func (s *Service) PlaceHold(ctx context.Context, patron, poolUID string) (model.Hold, error) {
	var out model.Hold
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		pool, err := s.lockPool(ctx, poolUID)
		if err != nil {
			return err
		}

		if pool.Limitless() {
			return errs.ErrHoldOnUnlimitedAccess
		}

		policy, err := s.repo.GetPolicy(ctx, pool.CollectionID)
		if err != nil {
			return err
		}
		if policy.HoldLimit != nil {
			if *policy.HoldLimit == 0 {
				return errs.ErrHoldsNotPermitted
			}
			count, err := s.repo.CountPatronHolds(ctx, patron, pool.CollectionID)
			if err != nil {
				return err
			}
			if count >= *policy.HoldLimit {
				return errs.ErrPatronHoldLimitReached
			}
		}

		if err := s.updateLicensePool(ctx, &pool, policy); err != nil {
			return err
		}
		if pool.LicensesAvailable > 0 {
			return errs.ErrCurrentlyAvailable
		}

		if _, err := s.repo.GetHoldByPatron(ctx, patron, pool.ID); err == nil {
			return errs.ErrAlreadyOnHold
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}

		hold, err := s.repo.CreateHold(ctx, model.Hold{
			PoolID:   pool.ID,
			Patron:   patron,
			Start:    s.clk.Now(),
			Position: pool.PatronsInHoldQueue + 1,
		})
		if err != nil {
			return err
		}

		// Recompute with the new hold in place; it may land straight in a
		// reservation if a slot just opened.
		if err := s.updateLicensePool(ctx, &pool, policy); err != nil {
			return err
		}
		hold, err = s.repo.GetHoldByPatron(ctx, patron, pool.ID)
		if err != nil {
			return err
		}

		if hold.Position > 0 {
			end, err := s.estimateQueuedHoldEnd(ctx, &pool, policy, hold.Position)
			if err != nil {
				return err
			}
			if end != nil {
				hold.End = end
				if err := s.repo.UpdateHold(ctx, hold); err != nil {
					return err
				}
			}
		}

		out = hold
		return nil
	})
	return out, err
}

// ReleaseHold cancels the patron's hold, promoting the next in line if the
// released hold had a reservation.
func (s *Service) ReleaseHold(ctx context.Context, patron, poolUID string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		pool, err := s.lockPool(ctx, poolUID)
		if err != nil {
			return err
		}

		hold, err := s.repo.GetHoldByPatron(ctx, patron, pool.ID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrNotOnHold
			}
			return err
		}
		if err := s.repo.DeleteHold(ctx, hold.ID); err != nil {
			return err
		}
		return s.updateLicensePoolDefaultPolicy(ctx, &pool)
	})
}

// Fulfill resolves a loan to a downloadable artifact. Fulfillment discovers
// revocation: a loan no longer active remotely is deleted and the pool
// reconciled.
func (s *Service) Fulfill(ctx context.Context, patron, poolUID string, dm model.DeliveryMechanism) (model.Fulfillment, error) {
	var out model.Fulfillment
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		pool, err := s.lockPool(ctx, poolUID)
		if err != nil {
			return err
		}

		loan, err := s.repo.GetLoanByPatron(ctx, patron, pool.ID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrNotCheckedOut
			}
			return err
		}

		if pool.Limitless() {
			out = model.Fulfillment{
				ContentLink: pool.ContentURL,
				ContentType: pool.ContentType,
			}
			return nil
		}

		doc, err := s.client.GetStatus(ctx, loan.ExternalID)
		if err != nil {
			return err
		}
		if !doc.Active() {
			// The distributor revoked it, or the patron returned it
			// through the DRM system before we heard about it.
			if err := s.endLoan(ctx, &pool, loan); err != nil {
				return err
			}
			return errs.ErrCannotFulfill
		}

		link := fulfillLink(&doc, dm)
		if link == nil {
			return errs.ErrCannotFulfill
		}
		out = model.Fulfillment{
			ContentLink: link.Href,
			ContentType: link.Type,
			Expires:     doc.PotentialRights.End,
		}
		return nil
	})
	return out, err
}

// fulfillLink picks the status document link matching the negotiated
// delivery mechanism.
func fulfillLink(doc *model.StatusDocument, dm model.DeliveryMechanism) *model.StatusLink {
	switch dm.DRMScheme {
	case model.DRMSchemeNone:
		return doc.Link("publication", dm.ContentType)
	case model.DRMSchemeFeedbooks:
		return doc.Link("manifest", dm.ContentType)
	default:
		return doc.Link("license", dm.DRMScheme)
	}
}

// PatronActivity lists the patron's live loans and holds in the collection.
// Expired reservations encountered along the way are cleaned up.
func (s *Service) PatronActivity(ctx context.Context, patron string) ([]model.Loan, []model.Hold, error) {
	loans, err := s.repo.ListPatronLoans(ctx, patron, s.collectionID)
	if err != nil {
		return nil, nil, err
	}

	holds, err := s.repo.ListPatronHolds(ctx, patron, s.collectionID)
	if err != nil {
		return nil, nil, err
	}

	now := s.clk.Now()
	remaining := make([]model.Hold, 0, len(holds))
	for _, hold := range holds {
		if hold.ReservationExpired(now) {
			hold := hold
			err := s.repo.WithTx(ctx, func(ctx context.Context) error {
				pool, err := s.repo.GetPoolForUpdate(ctx, hold.PoolID)
				if err != nil {
					return err
				}
				if err := s.repo.DeleteHold(ctx, hold.ID); err != nil {
					return err
				}
				return s.updateLicensePoolDefaultPolicy(ctx, &pool)
			})
			if err != nil {
				return nil, nil, err
			}
			continue
		}
		remaining = append(remaining, hold)
	}
	return loans, remaining, nil
}

// ImportLicenses upserts licensing terms ingested from the distributor's
// feed and reconciles the pool.
func (s *Service) ImportLicenses(ctx context.Context, poolUID string, licenses []model.License) error {
	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		pool, err := s.lockPool(ctx, poolUID)
		if err != nil {
			return err
		}
		for _, lic := range licenses {
			lic.PoolID = pool.ID
			if _, err := s.repo.UpsertLicense(ctx, lic); err != nil {
				return err
			}
		}
		return s.updateLicensePoolDefaultPolicy(ctx, &pool)
	})
}

func (s *Service) lockPool(ctx context.Context, poolUID string) (model.LicensePool, error) {
	pool, err := s.repo.GetPoolByUID(ctx, poolUID)
	if err != nil {
		return model.LicensePool{}, err
	}
	return s.repo.GetPoolForUpdate(ctx, pool.ID)
}
