package service

import (
	"context"
	"time"

	"github.com/odl-go/circulation-service/circulation/internal/model"
)

// maxEstimateCycles bounds the time-to-availability simulation. Deep queues
// against small pools would otherwise produce years-long look-ahead; past
// the cap the estimate is omitted rather than displayed.
const maxEstimateCycles = 12

// estimateQueuedHoldEnd estimates when a hold at the given queue position
// becomes available for checkout. The estimate is advisory and worst-case:
// every current loan and reservation is assumed to run its full period, and
// every vacated slot is immediately re-reserved by the next hold in line.
// Returns nil when no estimate can be made.
func (s *Service) estimateQueuedHoldEnd(ctx context.Context, pool *model.LicensePool, policy model.CollectionPolicy, position int) (*time.Time, error) {
	if pool.LicensesOwned <= 0 || position <= 0 {
		return nil, nil
	}

	loans, err := s.repo.ListActiveLoans(ctx, pool.ID)
	if err != nil {
		return nil, err
	}
	holds, err := s.repo.ListActiveHolds(ctx, pool.ID)
	if err != nil {
		return nil, err
	}

	reserved := pool.LicensesOwned - len(loans)
	if reserved > len(holds) {
		reserved = len(holds)
	}
	if reserved < 0 {
		reserved = 0
	}
	reservations := holds[:reserved]

	end := estimateHoldEnd(position, pool.LicensesOwned, loans, reservations,
		policy.DefaultLoanPeriodDays, policy.DefaultReservationPeriodDays)
	return end, nil
}

func estimateHoldEnd(position, owned int, loans []model.Loan, reservations []model.Hold, loanPeriodDays, reservationPeriodDays int) *time.Time {
	if position <= 0 || owned <= 0 {
		return nil
	}

	// Positions rank queued holds only, so the hold at position 1 takes
	// the next copy that frees up. The licenses go through some number
	// of full circulation cycles before one reaches this hold. The first
	// cycle is already underway, so it is handled from the current
	// loan/reservation end dates.
	cycles := (position - 1) / owned
	if cycles > maxEstimateCycles {
		return nil
	}

	// Which of the owned copies this hold eventually gets, assuming every
	// patron keeps their loan or reservation for the maximum time.
	copyIndex := (position - 1) % owned

	var firstCycleEnd time.Time
	switch {
	case copyIndex < len(loans):
		if loans[copyIndex].End == nil {
			return nil
		}
		firstCycleEnd = *loans[copyIndex].End
	case copyIndex-len(loans) < len(reservations):
		reservation := reservations[copyIndex-len(loans)]
		if reservation.End == nil {
			return nil
		}
		// A reserved copy is checked out at the deadline at the latest,
		// then kept for a full loan period.
		firstCycleEnd = reservation.End.AddDate(0, 0, loanPeriodDays)
	default:
		return nil
	}

	cyclePeriod := loanPeriodDays + reservationPeriodDays
	end := firstCycleEnd.AddDate(0, 0, cyclePeriod*cycles)
	return &end
}
