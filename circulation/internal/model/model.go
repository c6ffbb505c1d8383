package model

import (
	"time"
)

// LicenseStatus is the status reported for a license by the distributor's
// license info document.
type LicenseStatus string

const (
	LicenseStatusAvailable   LicenseStatus = "available"
	LicenseStatusUnavailable LicenseStatus = "unavailable"
)

// License is a single acquisition right for a title, with its own
// concurrency, checkout-budget and expiry terms.
type License struct {
	ID         int64         `json:"-" db:"id"`
	Identifier string        `json:"identifier" db:"identifier"`
	PoolID     int64         `json:"-" db:"license_pool_id"`
	Status     LicenseStatus `json:"status" db:"status"`

	Expires *time.Time `json:"expires,omitempty" db:"expires"`

	// CheckoutsLeft is the remaining total-checkout budget. Nil means the
	// license is not loan-limited.
	CheckoutsLeft *int `json:"checkoutsLeft,omitempty" db:"checkouts_left"`

	// CheckoutsAvailable is the number of currently free concurrency slots.
	CheckoutsAvailable int `json:"checkoutsAvailable" db:"checkouts_available"`

	// TermsConcurrency is the max simultaneous checkouts the license terms
	// permit. Nil means unbounded.
	TermsConcurrency *int `json:"termsConcurrency,omitempty" db:"terms_concurrency"`

	CheckoutURL string `json:"-" db:"checkout_url"`
	StatusURL   string `json:"-" db:"status_url"`
}

func (l *License) IsPerpetual() bool {
	return l.Expires == nil && l.CheckoutsLeft == nil
}

func (l *License) IsTimeLimited() bool {
	return l.Expires != nil
}

func (l *License) IsLoanLimited() bool {
	return l.CheckoutsLeft != nil
}

// IsInactive reports whether the license can no longer produce loans:
// expired terms, exhausted checkout budget, or the distributor marked it
// unavailable.
func (l *License) IsInactive(now time.Time) bool {
	return (l.Expires != nil && !l.Expires.After(now)) ||
		(l.CheckoutsLeft != nil && *l.CheckoutsLeft <= 0) ||
		l.Status != LicenseStatusAvailable
}

// TotalRemainingLoans is the license's contribution to licenses_owned.
func (l *License) TotalRemainingLoans(now time.Time) int {
	switch {
	case l.IsInactive(now):
		return 0
	case l.CheckoutsLeft != nil:
		if l.TermsConcurrency != nil && *l.TermsConcurrency < *l.CheckoutsLeft {
			return *l.TermsConcurrency
		}
		return *l.CheckoutsLeft
	case l.TermsConcurrency != nil:
		return *l.TermsConcurrency
	default:
		return 0
	}
}

// CurrentlyAvailableLoans is the license's contribution to licenses_available.
func (l *License) CurrentlyAvailableLoans(now time.Time) int {
	if l.IsInactive(now) {
		return 0
	}
	return l.CheckoutsAvailable
}

// IsAvailableForBorrowing reports whether a new loan can be made from this
// license right now.
func (l *License) IsAvailableForBorrowing(now time.Time) bool {
	return !l.IsInactive(now) && l.CheckoutsAvailable > 0
}

// Checkout updates the license's internal accounting when a loan is made
// from it.
func (l *License) Checkout() {
	if l.CheckoutsLeft != nil && *l.CheckoutsLeft > 0 {
		*l.CheckoutsLeft--
	}
	if l.CheckoutsAvailable > 0 {
		l.CheckoutsAvailable--
	}
}

// Checkin updates the license's internal accounting when a loan made from it
// ends. The freed slot never exceeds the concurrency terms or the remaining
// checkout budget.
func (l *License) Checkin() {
	available := l.CheckoutsAvailable + 1
	if l.TermsConcurrency != nil && *l.TermsConcurrency < available {
		available = *l.TermsConcurrency
	}
	if l.CheckoutsLeft != nil && *l.CheckoutsLeft < available {
		available = *l.CheckoutsLeft
	}
	l.CheckoutsAvailable = available
}

// LicensePool aggregates all licenses for one title within one collection,
// together with the derived availability counters.
type LicensePool struct {
	ID           int64  `json:"-" db:"id"`
	PoolUID      string `json:"poolUid" db:"pool_uid"`
	CollectionID int64  `json:"-" db:"collection_id"`
	Identifier   string `json:"identifier" db:"identifier"`

	OpenAccess      bool   `json:"openAccess" db:"open_access"`
	UnlimitedAccess bool   `json:"unlimitedAccess" db:"unlimited_access"`
	ContentURL      string `json:"-" db:"content_url"`
	ContentType     string `json:"-" db:"content_type"`

	LicensesOwned      int `json:"licensesOwned" db:"licenses_owned"`
	LicensesAvailable  int `json:"licensesAvailable" db:"licenses_available"`
	LicensesReserved   int `json:"licensesReserved" db:"licenses_reserved"`
	PatronsInHoldQueue int `json:"patronsInHoldQueue" db:"patrons_in_hold_queue"`
}

// Limitless reports whether the pool circulates without per-copy license
// bookkeeping.
func (p *LicensePool) Limitless() bool {
	return p.OpenAccess || p.UnlimitedAccess
}

// Hold is a patron's place in line for a pool. Position 0 means the hold is
// a reservation: a license slot is set aside and End is the checkout
// deadline. Positions 1..N rank the waiting holds.
type Hold struct {
	ID       int64      `json:"-" db:"id"`
	HoldUID  string     `json:"holdUid" db:"hold_uid"`
	PoolID   int64      `json:"-" db:"license_pool_id"`
	Patron   string     `json:"patron" db:"patron"`
	Start    time.Time  `json:"start" db:"start_date"`
	End      *time.Time `json:"end,omitempty" db:"end_date"`
	Position int        `json:"position" db:"position"`
}

// Reserved reports whether the hold is at the front of the queue with a
// license slot set aside for it.
func (h *Hold) Reserved() bool {
	return h.Position == 0
}

// ReservationExpired reports whether a reserved hold's checkout deadline has
// passed. Queue-wait estimates on non-reserved holds never expire a hold.
func (h *Hold) ReservationExpired(now time.Time) bool {
	return h.Position == 0 && h.End != nil && h.End.Before(now)
}

// Loan is an active checkout. LicenseID is nil for open-access and
// unlimited-access pools. ExternalID holds the distributor's status
// document URL for the checkout.
type Loan struct {
	ID        int64      `json:"-" db:"id"`
	LoanUID   string     `json:"loanUid" db:"loan_uid"`
	PoolID    int64      `json:"-" db:"license_pool_id"`
	Patron    string     `json:"patron" db:"patron"`
	LicenseID *int64     `json:"-" db:"license_id"`
	Start     time.Time  `json:"start" db:"start_date"`
	End       *time.Time `json:"end,omitempty" db:"end_date"`

	ExternalID string `json:"-" db:"external_identifier"`
}

// Active reports whether the loan has not yet reached its end date.
func (l *Loan) Active(now time.Time) bool {
	return l.End == nil || l.End.After(now)
}

// CollectionPolicy carries the per-collection circulation policy knobs
// sourced from the configuration-settings subsystem.
type CollectionPolicy struct {
	CollectionID int64 `json:"-" db:"collection_id"`

	// LoanLimit caps a patron's simultaneous loans in the collection.
	// Zero means no limit.
	LoanLimit int `json:"loanLimit" db:"loan_limit"`

	// HoldLimit caps a patron's simultaneous holds. Zero forbids holds
	// entirely; nil (-1 in storage is not used, nullable column) means
	// unlimited.
	HoldLimit *int `json:"holdLimit,omitempty" db:"hold_limit"`

	// DefaultLoanPeriodDays is how long a checkout lasts.
	DefaultLoanPeriodDays int `json:"defaultLoanPeriod" db:"default_loan_period"`

	// DefaultReservationPeriodDays is how long a promoted hold stays
	// reserved before the reaper reclaims it.
	DefaultReservationPeriodDays int `json:"defaultReservationPeriod" db:"default_reservation_period"`
}

// Protocol tags the distributor integration a collection is configured with.
type Protocol string

const (
	ProtocolODL  Protocol = "ODL"
	ProtocolODL2 Protocol = "ODL 2.0"
)

// Collection is a configured source of licensed content.
type Collection struct {
	ID       int64    `json:"-" db:"id"`
	Name     string   `json:"name" db:"name"`
	Protocol Protocol `json:"protocol" db:"protocol"`
	FeedURL  string   `json:"-" db:"feed_url"`
}

// Fulfillment resolves a loan to a concrete downloadable artifact.
type Fulfillment struct {
	ContentLink string     `json:"contentLink"`
	ContentType string     `json:"contentType"`
	Expires     *time.Time `json:"expires,omitempty"`
}

// DeliveryMechanism is the content/DRM pairing negotiated for a loan.
type DeliveryMechanism struct {
	ContentType string `json:"contentType" validate:"required"`
	DRMScheme   string `json:"drmScheme"`
}

const (
	DRMSchemeNone      = ""
	DRMSchemeLCP       = "application/vnd.readium.lcp.license.v1.0+json"
	DRMSchemeFeedbooks = "http://www.feedbooks.com/audiobooks/access-restriction"
)
