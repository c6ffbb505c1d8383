package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/odl-go/circulation-service/circulation/internal/errs"
	"github.com/odl-go/circulation-service/circulation/internal/model"
)

type Repository interface {
	// WithTx runs fn inside a transaction. Nested calls reuse the
	// transaction already attached to the context.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetCollection(ctx context.Context, id int64) (model.Collection, error)
	GetPolicy(ctx context.Context, collectionID int64) (model.CollectionPolicy, error)

	GetPoolByUID(ctx context.Context, poolUID string) (model.LicensePool, error)
	GetPoolForUpdate(ctx context.Context, id int64) (model.LicensePool, error)
	UpdatePoolCounts(ctx context.Context, id int64, owned, available, reserved, patrons int) error

	ListLicenses(ctx context.Context, poolID int64) ([]model.License, error)
	UpdateLicense(ctx context.Context, lic model.License) error
	UpsertLicense(ctx context.Context, lic model.License) (model.License, error)

	GetLoanByPatron(ctx context.Context, patron string, poolID int64) (model.Loan, error)
	GetLoanByUID(ctx context.Context, loanUID string) (model.Loan, error)
	ListActiveLoans(ctx context.Context, poolID int64) ([]model.Loan, error)
	ListPatronLoans(ctx context.Context, patron string, collectionID int64) ([]model.Loan, error)
	CountPatronLoans(ctx context.Context, patron string, collectionID int64) (int, error)
	CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error)
	DeleteLoan(ctx context.Context, id int64) error

	GetHoldByPatron(ctx context.Context, patron string, poolID int64) (model.Hold, error)
	ListActiveHolds(ctx context.Context, poolID int64) ([]model.Hold, error)
	ListPatronHolds(ctx context.Context, patron string, collectionID int64) ([]model.Hold, error)
	CountPatronHolds(ctx context.Context, patron string, collectionID int64) (int, error)
	CreateHold(ctx context.Context, hold model.Hold) (model.Hold, error)
	UpdateHold(ctx context.Context, hold model.Hold) error
	DeleteHold(ctx context.Context, id int64) error

	ListPoolIDsWithExpiredReservations(ctx context.Context, now time.Time) ([]int64, error)
	DeleteExpiredReservations(ctx context.Context, poolID int64, now time.Time) (int, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	collectionTableName = `collections`
	policyTableName     = `collection_policies`
	poolTableName       = `license_pools`
	licenseTableName    = `licenses`
	loanTableName       = `loans`
	holdTableName       = `holds`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (r *repository) GetCollection(ctx context.Context, id int64) (model.Collection, error) {
	query, args, err := qb.Select("id", "name", "protocol", "feed_url").
		From(collectionTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Collection{}, err
	}

	var col model.Collection
	if err := sqlx.GetContext(ctx, r.ext(ctx), &col, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Collection{}, errs.ErrNotFound
		}
		return model.Collection{}, err
	}
	return col, nil
}

func (r *repository) GetPolicy(ctx context.Context, collectionID int64) (model.CollectionPolicy, error) {
	query, args, err := qb.Select("collection_id", "loan_limit", "hold_limit", "default_loan_period", "default_reservation_period").
		From(policyTableName).
		Where(sq.Eq{"collection_id": collectionID}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.CollectionPolicy{}, err
	}

	var p model.CollectionPolicy
	if err := sqlx.GetContext(ctx, r.ext(ctx), &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CollectionPolicy{}, errs.ErrNotFound
		}
		return model.CollectionPolicy{}, err
	}
	return p, nil
}

const poolColumns = "id, pool_uid, collection_id, identifier, open_access, unlimited_access, content_url, content_type, licenses_owned, licenses_available, licenses_reserved, patrons_in_hold_queue"

func (r *repository) GetPoolByUID(ctx context.Context, poolUID string) (model.LicensePool, error) {
	q := `select ` + poolColumns + ` from license_pools where pool_uid = $1`

	var pool model.LicensePool
	if err := sqlx.GetContext(ctx, r.ext(ctx), &pool, q, poolUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LicensePool{}, errs.ErrNotFound
		}
		return model.LicensePool{}, err
	}
	return pool, nil
}

// GetPoolForUpdate takes a row-level lock on the pool so concurrent
// circulation operations against it serialize.
func (r *repository) GetPoolForUpdate(ctx context.Context, id int64) (model.LicensePool, error) {
	q := `select ` + poolColumns + ` from license_pools where id = $1 for update`

	var pool model.LicensePool
	if err := sqlx.GetContext(ctx, r.ext(ctx), &pool, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LicensePool{}, errs.ErrNotFound
		}
		return model.LicensePool{}, err
	}
	return pool, nil
}

func (r *repository) UpdatePoolCounts(ctx context.Context, id int64, owned, available, reserved, patrons int) error {
	query, args, err := qb.Update(poolTableName).
		Set("licenses_owned", owned).
		Set("licenses_available", available).
		Set("licenses_reserved", reserved).
		Set("patrons_in_hold_queue", patrons).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.ext(ctx).ExecContext(ctx, query, args...)
	return err
}

func (r *repository) ListLicenses(ctx context.Context, poolID int64) ([]model.License, error) {
	query, args, err := qb.Select("id", "identifier", "license_pool_id", "status", "expires", "checkouts_left", "checkouts_available", "terms_concurrency", "checkout_url", "status_url").
		From(licenseTableName).
		Where(sq.Eq{"license_pool_id": poolID}).
		OrderBy("identifier asc").
		ToSql()
	if err != nil {
		return nil, err
	}

	var licenses []model.License
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &licenses, query, args...); err != nil {
		return nil, err
	}
	return licenses, nil
}

func (r *repository) UpdateLicense(ctx context.Context, lic model.License) error {
	query, args, err := qb.Update(licenseTableName).
		Set("status", lic.Status).
		Set("expires", lic.Expires).
		Set("checkouts_left", lic.CheckoutsLeft).
		Set("checkouts_available", lic.CheckoutsAvailable).
		Set("terms_concurrency", lic.TermsConcurrency).
		Where(sq.Eq{"id": lic.ID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.ext(ctx).ExecContext(ctx, query, args...)
	return err
}

// UpsertLicense creates or refreshes a license on terms (re)import from the
// distributor.
func (r *repository) UpsertLicense(ctx context.Context, lic model.License) (model.License, error) {
	q := `
insert into licenses (identifier, license_pool_id, status, expires, checkouts_left, checkouts_available, terms_concurrency, checkout_url, status_url)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
on conflict (identifier, license_pool_id) do update
    set status = excluded.status,
        expires = excluded.expires,
        checkouts_left = excluded.checkouts_left,
        checkouts_available = excluded.checkouts_available,
        terms_concurrency = excluded.terms_concurrency,
        checkout_url = excluded.checkout_url,
        status_url = excluded.status_url
returning id, identifier, license_pool_id, status, expires, checkouts_left, checkouts_available, terms_concurrency, checkout_url, status_url`

	var out model.License
	err := sqlx.GetContext(ctx, r.ext(ctx), &out, q,
		lic.Identifier, lic.PoolID, lic.Status, lic.Expires, lic.CheckoutsLeft,
		lic.CheckoutsAvailable, lic.TermsConcurrency, lic.CheckoutURL, lic.StatusURL)
	if err != nil {
		r.log.Error("UpsertLicense", zap.String("identifier", lic.Identifier), zap.Error(err))
		return model.License{}, err
	}
	return out, nil
}

const loanColumns = "id, loan_uid, license_pool_id, patron, license_id, start_date, end_date, external_identifier"

func (r *repository) GetLoanByPatron(ctx context.Context, patron string, poolID int64) (model.Loan, error) {
	q := `select ` + loanColumns + ` from loans where patron = $1 and license_pool_id = $2`

	var loan model.Loan
	if err := sqlx.GetContext(ctx, r.ext(ctx), &loan, q, patron, poolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Loan{}, errs.ErrNotFound
		}
		return model.Loan{}, err
	}
	return loan, nil
}

func (r *repository) GetLoanByUID(ctx context.Context, loanUID string) (model.Loan, error) {
	q := `select ` + loanColumns + ` from loans where loan_uid = $1`

	var loan model.Loan
	if err := sqlx.GetContext(ctx, r.ext(ctx), &loan, q, loanUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Loan{}, errs.ErrNotFound
		}
		return model.Loan{}, err
	}
	return loan, nil
}

func (r *repository) ListActiveLoans(ctx context.Context, poolID int64) ([]model.Loan, error) {
	q := `
select ` + loanColumns + ` from loans
where license_pool_id = $1 and (end_date is null or end_date > now())
order by start_date asc, id asc`

	var loans []model.Loan
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &loans, q, poolID); err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) ListPatronLoans(ctx context.Context, patron string, collectionID int64) ([]model.Loan, error) {
	q := `
select l.id, l.loan_uid, l.license_pool_id, l.patron, l.license_id, l.start_date, l.end_date, l.external_identifier
from loans l
join license_pools p on p.id = l.license_pool_id
where l.patron = $1 and p.collection_id = $2 and (l.end_date is null or l.end_date > now())
order by l.start_date asc`

	var loans []model.Loan
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &loans, q, patron, collectionID); err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) CountPatronLoans(ctx context.Context, patron string, collectionID int64) (int, error) {
	q := `
select count(*) from loans l
join license_pools p on p.id = l.license_pool_id
where l.patron = $1 and p.collection_id = $2 and (l.end_date is null or l.end_date > now())`

	var count int
	if err := r.ext(ctx).QueryRowxContext(ctx, q, patron, collectionID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error) {
	// The loan uid is minted before the distributor call so the
	// notification endpoint can be included in the checkout link.
	loanUID := loan.LoanUID
	if loanUID == "" {
		loanUID = uuid.New().String()
	}
	query, args, err := qb.Insert(loanTableName).
		Columns("loan_uid", "license_pool_id", "patron", "license_id", "start_date", "end_date", "external_identifier").
		Values(loanUID, loan.PoolID, loan.Patron, loan.LicenseID, loan.Start, loan.End, loan.ExternalID).
		Suffix("returning " + loanColumns).
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}

	var out model.Loan
	if err := sqlx.GetContext(ctx, r.ext(ctx), &out, query, args...); err != nil {
		if isUniqueViolation(err) {
			return model.Loan{}, errs.ErrAlreadyCheckedOut
		}
		r.log.Error("CreateLoan", zap.String("q", query), zap.Any("args", args))
		return model.Loan{}, err
	}
	return out, nil
}

func (r *repository) DeleteLoan(ctx context.Context, id int64) error {
	query, args, err := qb.Delete(loanTableName).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	_, err = r.ext(ctx).ExecContext(ctx, query, args...)
	return err
}

const holdColumns = "id, hold_uid, license_pool_id, patron, start_date, end_date, position"

func (r *repository) GetHoldByPatron(ctx context.Context, patron string, poolID int64) (model.Hold, error) {
	q := `select ` + holdColumns + ` from holds where patron = $1 and license_pool_id = $2`

	var hold model.Hold
	if err := sqlx.GetContext(ctx, r.ext(ctx), &hold, q, patron, poolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Hold{}, errs.ErrNotFound
		}
		return model.Hold{}, err
	}
	return hold, nil
}

// ListActiveHolds returns the pool's holds in queue order: every waiting
// hold plus reservations whose deadline hasn't passed. Expired reservations
// are excluded but not deleted here; only the reaper removes them.
func (r *repository) ListActiveHolds(ctx context.Context, poolID int64) ([]model.Hold, error) {
	q := `
select ` + holdColumns + ` from holds
where license_pool_id = $1
  and (position != 0 or end_date is null or end_date > now())
order by start_date asc, id asc`

	var holds []model.Hold
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &holds, q, poolID); err != nil {
		return nil, err
	}
	return holds, nil
}

func (r *repository) ListPatronHolds(ctx context.Context, patron string, collectionID int64) ([]model.Hold, error) {
	q := `
select h.id, h.hold_uid, h.license_pool_id, h.patron, h.start_date, h.end_date, h.position
from holds h
join license_pools p on p.id = h.license_pool_id
where h.patron = $1 and p.collection_id = $2
order by h.start_date asc`

	var holds []model.Hold
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &holds, q, patron, collectionID); err != nil {
		return nil, err
	}
	return holds, nil
}

func (r *repository) CountPatronHolds(ctx context.Context, patron string, collectionID int64) (int, error) {
	q := `
select count(*) from holds h
join license_pools p on p.id = h.license_pool_id
where h.patron = $1 and p.collection_id = $2`

	var count int
	if err := r.ext(ctx).QueryRowxContext(ctx, q, patron, collectionID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) CreateHold(ctx context.Context, hold model.Hold) (model.Hold, error) {
	query, args, err := qb.Insert(holdTableName).
		Columns("hold_uid", "license_pool_id", "patron", "start_date", "end_date", "position").
		Values(uuid.New(), hold.PoolID, hold.Patron, hold.Start, hold.End, hold.Position).
		Suffix("returning " + holdColumns).
		ToSql()
	if err != nil {
		return model.Hold{}, err
	}

	var out model.Hold
	if err := sqlx.GetContext(ctx, r.ext(ctx), &out, query, args...); err != nil {
		if isUniqueViolation(err) {
			return model.Hold{}, errs.ErrAlreadyOnHold
		}
		r.log.Error("CreateHold", zap.String("q", query), zap.Any("args", args))
		return model.Hold{}, err
	}
	return out, nil
}

func (r *repository) UpdateHold(ctx context.Context, hold model.Hold) error {
	query, args, err := qb.Update(holdTableName).
		Set("end_date", hold.End).
		Set("position", hold.Position).
		Where(sq.Eq{"id": hold.ID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.ext(ctx).ExecContext(ctx, query, args...)
	return err
}

func (r *repository) DeleteHold(ctx context.Context, id int64) error {
	query, args, err := qb.Delete(holdTableName).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	_, err = r.ext(ctx).ExecContext(ctx, query, args...)
	return err
}

func (r *repository) ListPoolIDsWithExpiredReservations(ctx context.Context, now time.Time) ([]int64, error) {
	q := `
select distinct license_pool_id from holds
where position = 0 and end_date is not null and end_date < $1`

	var ids []int64
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &ids, q, now); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) DeleteExpiredReservations(ctx context.Context, poolID int64, now time.Time) (int, error) {
	q := `
delete from holds
where license_pool_id = $1 and position = 0 and end_date is not null and end_date < $2`

	res, err := r.ext(ctx).ExecContext(ctx, q, poolID, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
