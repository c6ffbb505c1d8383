package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odl-go/circulation-service/circulation/internal/errs"
	"github.com/odl-go/circulation-service/circulation/internal/model"
	"github.com/odl-go/circulation-service/circulation/internal/odl"
	"github.com/odl-go/circulation-service/circulation/internal/repository"
	"github.com/odl-go/circulation-service/pkg/clock"
)

var (
	_ repository.Repository = (*fakeRepo)(nil)
	_ odl.StatusClient      = (*fakeStatusClient)(nil)
)

// fakeRepo is an in-memory Repository. WithTx serializes callers on a
// single mutex, which models the pool row lock coarsely but faithfully
// enough for admission-ordering tests.
type fakeRepo struct {
	mu  sync.Mutex
	clk clock.Clock

	collections map[int64]model.Collection
	policies    map[int64]model.CollectionPolicy
	pools       map[int64]*model.LicensePool
	licenses    map[int64]*model.License
	loans       map[int64]*model.Loan
	holds       map[int64]*model.Hold

	nextID int64

	poolCountUpdates int
}

func newFakeRepo(clk clock.Clock) *fakeRepo {
	return &fakeRepo{
		clk:         clk,
		collections: make(map[int64]model.Collection),
		policies:    make(map[int64]model.CollectionPolicy),
		pools:       make(map[int64]*model.LicensePool),
		licenses:    make(map[int64]*model.License),
		loans:       make(map[int64]*model.Loan),
		holds:       make(map[int64]*model.Hold),
	}
}

type fakeTxKey struct{}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(context.WithValue(ctx, fakeTxKey{}, true))
}

// lock takes the store mutex unless the context is already inside a
// transaction, which holds it for its whole extent.
func (f *fakeRepo) lock(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) addCollection(col model.Collection, policy model.CollectionPolicy) model.Collection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if col.ID == 0 {
		col.ID = f.id()
	}
	f.collections[col.ID] = col
	policy.CollectionID = col.ID
	f.policies[col.ID] = policy
	return col
}

func (f *fakeRepo) addPool(pool model.LicensePool) model.LicensePool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pool.ID == 0 {
		pool.ID = f.id()
	}
	if pool.PoolUID == "" {
		pool.PoolUID = uuid.New().String()
	}
	f.pools[pool.ID] = &pool
	return pool
}

func (f *fakeRepo) addLicense(lic model.License) model.License {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lic.ID == 0 {
		lic.ID = f.id()
	}
	if lic.Status == "" {
		lic.Status = model.LicenseStatusAvailable
	}
	f.licenses[lic.ID] = &lic
	return lic
}

func (f *fakeRepo) addHold(hold model.Hold) model.Hold {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hold.ID == 0 {
		hold.ID = f.id()
	}
	if hold.HoldUID == "" {
		hold.HoldUID = uuid.New().String()
	}
	f.holds[hold.ID] = &hold
	return hold
}

func (f *fakeRepo) getPool(id int64) model.LicensePool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.pools[id]
}

func (f *fakeRepo) getLicense(id int64) model.License {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.licenses[id]
}

func (f *fakeRepo) GetCollection(ctx context.Context, id int64) (model.Collection, error) {
	defer f.lock(ctx)()
	col, ok := f.collections[id]
	if !ok {
		return model.Collection{}, errs.ErrNotFound
	}
	return col, nil
}

func (f *fakeRepo) GetPolicy(ctx context.Context, collectionID int64) (model.CollectionPolicy, error) {
	defer f.lock(ctx)()
	p, ok := f.policies[collectionID]
	if !ok {
		return model.CollectionPolicy{}, errs.ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) GetPoolByUID(ctx context.Context, poolUID string) (model.LicensePool, error) {
	defer f.lock(ctx)()
	for _, p := range f.pools {
		if p.PoolUID == poolUID {
			return *p, nil
		}
	}
	return model.LicensePool{}, errs.ErrNotFound
}

func (f *fakeRepo) GetPoolForUpdate(ctx context.Context, id int64) (model.LicensePool, error) {
	defer f.lock(ctx)()
	p, ok := f.pools[id]
	if !ok {
		return model.LicensePool{}, errs.ErrNotFound
	}
	return *p, nil
}

func (f *fakeRepo) UpdatePoolCounts(ctx context.Context, id int64, owned, available, reserved, patrons int) error {
	defer f.lock(ctx)()
	p, ok := f.pools[id]
	if !ok {
		return errs.ErrNotFound
	}
	p.LicensesOwned = owned
	p.LicensesAvailable = available
	p.LicensesReserved = reserved
	p.PatronsInHoldQueue = patrons
	f.poolCountUpdates++
	return nil
}

func (f *fakeRepo) ListLicenses(ctx context.Context, poolID int64) ([]model.License, error) {
	defer f.lock(ctx)()
	var out []model.License
	for _, lic := range f.licenses {
		if lic.PoolID == poolID {
			out = append(out, *lic)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func (f *fakeRepo) UpdateLicense(ctx context.Context, lic model.License) error {
	defer f.lock(ctx)()
	stored, ok := f.licenses[lic.ID]
	if !ok {
		return errs.ErrNotFound
	}
	*stored = lic
	return nil
}

func (f *fakeRepo) UpsertLicense(ctx context.Context, lic model.License) (model.License, error) {
	defer f.lock(ctx)()
	for _, stored := range f.licenses {
		if stored.Identifier == lic.Identifier && stored.PoolID == lic.PoolID {
			lic.ID = stored.ID
			*stored = lic
			return lic, nil
		}
	}
	lic.ID = f.id()
	if lic.Status == "" {
		lic.Status = model.LicenseStatusAvailable
	}
	cp := lic
	f.licenses[lic.ID] = &cp
	return lic, nil
}

func (f *fakeRepo) GetLoanByPatron(ctx context.Context, patron string, poolID int64) (model.Loan, error) {
	defer f.lock(ctx)()
	for _, l := range f.loans {
		if l.Patron == patron && l.PoolID == poolID {
			return *l, nil
		}
	}
	return model.Loan{}, errs.ErrNotFound
}

func (f *fakeRepo) GetLoanByUID(ctx context.Context, loanUID string) (model.Loan, error) {
	defer f.lock(ctx)()
	for _, l := range f.loans {
		if l.LoanUID == loanUID {
			return *l, nil
		}
	}
	return model.Loan{}, errs.ErrNotFound
}

func (f *fakeRepo) ListActiveLoans(ctx context.Context, poolID int64) ([]model.Loan, error) {
	defer f.lock(ctx)()
	now := f.clk.Now()
	var out []model.Loan
	for _, l := range f.loans {
		if l.PoolID == poolID && (l.End == nil || l.End.After(now)) {
			out = append(out, *l)
		}
	}
	sortLoans(out)
	return out, nil
}

func (f *fakeRepo) ListPatronLoans(ctx context.Context, patron string, collectionID int64) ([]model.Loan, error) {
	defer f.lock(ctx)()
	now := f.clk.Now()
	var out []model.Loan
	for _, l := range f.loans {
		pool, ok := f.pools[l.PoolID]
		if !ok || pool.CollectionID != collectionID {
			continue
		}
		if l.Patron == patron && (l.End == nil || l.End.After(now)) {
			out = append(out, *l)
		}
	}
	sortLoans(out)
	return out, nil
}

func (f *fakeRepo) CountPatronLoans(ctx context.Context, patron string, collectionID int64) (int, error) {
	loans, err := f.ListPatronLoans(ctx, patron, collectionID)
	return len(loans), err
}

func (f *fakeRepo) CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error) {
	defer f.lock(ctx)()
	for _, l := range f.loans {
		if l.Patron == loan.Patron && l.PoolID == loan.PoolID {
			return model.Loan{}, errs.ErrAlreadyCheckedOut
		}
	}
	loan.ID = f.id()
	if loan.LoanUID == "" {
		loan.LoanUID = uuid.New().String()
	}
	f.loans[loan.ID] = &loan
	return loan, nil
}

func (f *fakeRepo) DeleteLoan(ctx context.Context, id int64) error {
	defer f.lock(ctx)()
	delete(f.loans, id)
	return nil
}

func (f *fakeRepo) GetHoldByPatron(ctx context.Context, patron string, poolID int64) (model.Hold, error) {
	defer f.lock(ctx)()
	for _, h := range f.holds {
		if h.Patron == patron && h.PoolID == poolID {
			return *h, nil
		}
	}
	return model.Hold{}, errs.ErrNotFound
}

func (f *fakeRepo) ListActiveHolds(ctx context.Context, poolID int64) ([]model.Hold, error) {
	defer f.lock(ctx)()
	now := f.clk.Now()
	var out []model.Hold
	for _, h := range f.holds {
		if h.PoolID != poolID {
			continue
		}
		if h.Position == 0 && h.End != nil && !h.End.After(now) {
			continue
		}
		out = append(out, *h)
	}
	sortHolds(out)
	return out, nil
}

func (f *fakeRepo) ListPatronHolds(ctx context.Context, patron string, collectionID int64) ([]model.Hold, error) {
	defer f.lock(ctx)()
	var out []model.Hold
	for _, h := range f.holds {
		pool, ok := f.pools[h.PoolID]
		if !ok || pool.CollectionID != collectionID {
			continue
		}
		if h.Patron == patron {
			out = append(out, *h)
		}
	}
	sortHolds(out)
	return out, nil
}

func (f *fakeRepo) CountPatronHolds(ctx context.Context, patron string, collectionID int64) (int, error) {
	holds, err := f.ListPatronHolds(ctx, patron, collectionID)
	return len(holds), err
}

func (f *fakeRepo) CreateHold(ctx context.Context, hold model.Hold) (model.Hold, error) {
	defer f.lock(ctx)()
	for _, h := range f.holds {
		if h.Patron == hold.Patron && h.PoolID == hold.PoolID {
			return model.Hold{}, errs.ErrAlreadyOnHold
		}
	}
	hold.ID = f.id()
	hold.HoldUID = uuid.New().String()
	f.holds[hold.ID] = &hold
	return hold, nil
}

func (f *fakeRepo) UpdateHold(ctx context.Context, hold model.Hold) error {
	defer f.lock(ctx)()
	stored, ok := f.holds[hold.ID]
	if !ok {
		return errs.ErrNotFound
	}
	stored.End = hold.End
	stored.Position = hold.Position
	return nil
}

func (f *fakeRepo) DeleteHold(ctx context.Context, id int64) error {
	defer f.lock(ctx)()
	delete(f.holds, id)
	return nil
}

func (f *fakeRepo) ListPoolIDsWithExpiredReservations(ctx context.Context, now time.Time) ([]int64, error) {
	defer f.lock(ctx)()
	seen := make(map[int64]bool)
	var out []int64
	for _, h := range f.holds {
		if h.Position == 0 && h.End != nil && h.End.Before(now) && !seen[h.PoolID] {
			seen[h.PoolID] = true
			out = append(out, h.PoolID)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteExpiredReservations(ctx context.Context, poolID int64, now time.Time) (int, error) {
	defer f.lock(ctx)()
	deleted := 0
	for id, h := range f.holds {
		if h.PoolID == poolID && h.Position == 0 && h.End != nil && h.End.Before(now) {
			delete(f.holds, id)
			deleted++
		}
	}
	return deleted, nil
}

func sortLoans(loans []model.Loan) {
	sort.Slice(loans, func(i, j int) bool {
		if loans[i].Start.Equal(loans[j].Start) {
			return loans[i].ID < loans[j].ID
		}
		return loans[i].Start.Before(loans[j].Start)
	})
}

func sortHolds(holds []model.Hold) {
	sort.Slice(holds, func(i, j int) bool {
		if holds[i].Start.Equal(holds[j].Start) {
			return holds[i].ID < holds[j].ID
		}
		return holds[i].Start.Before(holds[j].Start)
	})
}

// fakeStatusClient plays the distributor. Licenses listed in unavailable
// answer checkouts with a no-copies problem; everything else succeeds with
// a ready document carrying self and return links.
type fakeStatusClient struct {
	mu            sync.Mutex
	unavailable   map[string]bool
	statusDocs    map[string]model.StatusDocument
	checkoutCalls []string
	returnStatus  string
}

func newFakeStatusClient() *fakeStatusClient {
	return &fakeStatusClient{
		unavailable:  make(map[string]bool),
		statusDocs:   make(map[string]model.StatusDocument),
		returnStatus: model.StatusReturned,
	}
}

func (c *fakeStatusClient) markUnavailable(identifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unavailable[identifier] = true
}

func (c *fakeStatusClient) setStatus(url string, doc model.StatusDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusDocs[url] = doc
}

func (c *fakeStatusClient) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.checkoutCalls...)
}

func activeDoc(statusURL string, end *time.Time) model.StatusDocument {
	return model.StatusDocument{
		ID:     statusURL,
		Status: model.StatusReady,
		Links: []model.StatusLink{
			{Rel: "self", Href: statusURL, Type: odl.StatusContentType},
			{Rel: "return", Href: statusURL + "/return{?name}", Type: odl.StatusContentType},
			{Rel: "publication", Href: statusURL + "/content.epub", Type: "application/epub+zip"},
			{Rel: "license", Href: statusURL + "/license", Type: model.DRMSchemeLCP},
		},
		PotentialRights: model.PotentialRights{End: end},
	}
}

func (c *fakeStatusClient) Checkout(_ context.Context, lic model.License, params odl.CheckoutParams) (model.StatusDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkoutCalls = append(c.checkoutCalls, lic.Identifier)
	if c.unavailable[lic.Identifier] {
		return model.StatusDocument{}, errs.ErrNoAvailableCopies
	}
	end := params.Expires
	statusURL := "https://dist.example.com/status/" + lic.Identifier + "/" + params.PatronID
	doc := activeDoc(statusURL, &end)
	c.statusDocs[statusURL] = doc
	return doc, nil
}

func (c *fakeStatusClient) GetStatus(_ context.Context, statusURL string) (model.StatusDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doc, ok := c.statusDocs[statusURL]; ok {
		return doc, nil
	}
	return activeDoc(statusURL, nil), nil
}

func (c *fakeStatusClient) Return(_ context.Context, returnURL string) (model.StatusDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.StatusDocument{Status: c.returnStatus}, nil
}
