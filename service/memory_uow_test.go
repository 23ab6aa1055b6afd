package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/master-pd/MARPD-MAX/events"
	"github.com/master-pd/MARPD-MAX/models"
)

var errSimulatedCrash = errors.New("simulated crash")

// memStore is an in-memory database for service tests. Each unit of work
// stages its writes and applies them atomically on commit.
type memStore struct {
	mu          sync.Mutex
	nextEntryID int64

	accounts map[string]*models.Account
	entries  []*models.LedgerEntry
	ops      map[string]*models.OperationRecord
	payments map[string]*models.PaymentRequest
	rounds   map[string]*models.GameRound
	claims   []*models.BonusClaim

	bus *events.Bus
	now func() time.Time

	// Fault injection. failInsert runs before each ledger insert; failCommit
	// runs before each commit. A non-nil error aborts the operation.
	failInsert func(entry *models.LedgerEntry) error
	failCommit func() error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*models.Account),
		ops:      make(map[string]*models.OperationRecord),
		payments: make(map[string]*models.PaymentRequest),
		rounds:   make(map[string]*models.GameRound),
		bus:      events.NewBus(),
		now:      time.Now,
	}
}

// Create implements UnitOfWorkFactory
func (s *memStore) Create() UnitOfWork {
	return &memUoW{s: s}
}

// reader returns a ledger repository that sees committed entries only
func (s *memStore) reader() LedgerRepository {
	return &memLedgerRepo{s: s}
}

// addAccount seeds a committed account
func (s *memStore) addAccount(id, userID string, status models.AccountStatus) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	a := &models.Account{ID: id, UserID: userID, Status: status, CreatedAt: now, UpdatedAt: now}
	s.accounts[id] = a
	clone := *a
	return &clone
}

// committedEntries returns the committed entries of an account and currency in id order
func (s *memStore) committedEntries(accountID, currency string) []*models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID && e.Currency == currency {
			clone := *e
			out = append(out, &clone)
		}
	}
	slices.SortFunc(out, func(a, b *models.LedgerEntry) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *memStore) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memStore) payment(id string) *models.PaymentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok {
		clone := *p
		return &clone
	}
	return nil
}

func (s *memStore) round(id string) *models.GameRound {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rounds[id]; ok {
		clone := *r
		return &clone
	}
	return nil
}

func (s *memStore) account(id string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		clone := *a
		return &clone
	}
	return nil
}

// memUoW stages writes over the committed state of a memStore
type memUoW struct {
	s    *memStore
	ctx  context.Context
	bus  *events.TransactionalBus
	done bool

	accounts map[string]*models.Account
	entries  []*models.LedgerEntry
	ops      map[string]*models.OperationRecord
	payments map[string]*models.PaymentRequest
	rounds   map[string]*models.GameRound
	claims   []*models.BonusClaim
}

func (u *memUoW) Begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.ctx = ctx
	u.bus = events.NewTransactionalBus(u.s.bus)
	u.accounts = make(map[string]*models.Account)
	u.ops = make(map[string]*models.OperationRecord)
	u.payments = make(map[string]*models.PaymentRequest)
	u.rounds = make(map[string]*models.GameRound)
	return nil
}

func (u *memUoW) Commit() error {
	if u.done {
		return errors.New("transaction already finished")
	}
	u.done = true

	u.s.mu.Lock()
	if u.s.failCommit != nil {
		if err := u.s.failCommit(); err != nil {
			u.s.mu.Unlock()
			u.bus.Discard()
			return err
		}
	}
	for key := range u.ops {
		if _, exists := u.s.ops[key]; exists {
			u.s.mu.Unlock()
			u.bus.Discard()
			return ErrDuplicateOperation
		}
	}
	for id, a := range u.accounts {
		u.s.accounts[id] = a
	}
	u.s.entries = append(u.s.entries, u.entries...)
	for k, op := range u.ops {
		u.s.ops[k] = op
	}
	for id, p := range u.payments {
		u.s.payments[id] = p
	}
	for id, r := range u.rounds {
		u.s.rounds[id] = r
	}
	u.s.claims = append(u.s.claims, u.claims...)
	u.s.mu.Unlock()

	u.bus.Flush(context.WithoutCancel(u.ctx))
	return nil
}

func (u *memUoW) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	if u.bus != nil {
		u.bus.Discard()
	}
	return nil
}

func (u *memUoW) AccountRepository() AccountRepository     { return &memAccountRepo{u: u} }
func (u *memUoW) LedgerRepository() LedgerRepository       { return &memLedgerRepo{s: u.s, u: u} }
func (u *memUoW) OperationRepository() OperationRepository { return &memOperationRepo{u: u} }
func (u *memUoW) PaymentRequestRepository() PaymentRequestRepository {
	return &memPaymentRepo{u: u}
}
func (u *memUoW) GameRoundRepository() GameRoundRepository   { return &memRoundRepo{u: u} }
func (u *memUoW) BonusClaimRepository() BonusClaimRepository { return &memClaimRepo{u: u} }
func (u *memUoW) EventBus() EventPublisher                   { return u.bus }

type memAccountRepo struct{ u *memUoW }

func (r *memAccountRepo) lookup(id string) *models.Account {
	if a, ok := r.u.accounts[id]; ok {
		clone := *a
		return &clone
	}
	return r.u.s.account(id)
}

func (r *memAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.lookup(id), nil
}

func (r *memAccountRepo) GetByUserID(ctx context.Context, userID string) (*models.Account, error) {
	for _, a := range r.u.accounts {
		if a.UserID == userID {
			clone := *a
			return &clone, nil
		}
	}
	r.u.s.mu.Lock()
	defer r.u.s.mu.Unlock()
	for _, a := range r.u.s.accounts {
		if a.UserID == userID {
			clone := *a
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) Create(ctx context.Context, id, userID string) (*models.Account, bool, error) {
	if existing, _ := r.GetByUserID(ctx, userID); existing != nil {
		return existing, false, nil
	}
	now := r.u.s.now().UTC()
	a := &models.Account{ID: id, UserID: userID, Status: models.AccountStatusActive, CreatedAt: now, UpdatedAt: now}
	r.u.accounts[id] = a
	clone := *a
	return &clone, true, nil
}

func (r *memAccountRepo) LockForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return r.lookup(id), nil
}

func (r *memAccountRepo) UpdateStatus(ctx context.Context, id string, status models.AccountStatus) error {
	a := r.lookup(id)
	if a == nil {
		return errors.New("account not found")
	}
	a.Status = status
	a.UpdatedAt = r.u.s.now().UTC()
	r.u.accounts[id] = a
	return nil
}

func (r *memAccountRepo) List(ctx context.Context) ([]*models.Account, error) {
	r.u.s.mu.Lock()
	merged := make(map[string]*models.Account, len(r.u.s.accounts))
	for id, a := range r.u.s.accounts {
		clone := *a
		merged[id] = &clone
	}
	r.u.s.mu.Unlock()
	for id, a := range r.u.accounts {
		clone := *a
		merged[id] = &clone
	}
	out := make([]*models.Account, 0, len(merged))
	for _, a := range merged {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *models.Account) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *memAccountRepo) CountByStatus(ctx context.Context) (map[models.AccountStatus]int, error) {
	accounts, _ := r.List(ctx)
	counts := make(map[models.AccountStatus]int)
	for _, a := range accounts {
		counts[a.Status]++
	}
	return counts, nil
}

// memLedgerRepo reads committed entries plus, inside a unit of work, its staged ones
type memLedgerRepo struct {
	s *memStore
	u *memUoW
}

func (r *memLedgerRepo) all() []*models.LedgerEntry {
	r.s.mu.Lock()
	out := slices.Clone(r.s.entries)
	r.s.mu.Unlock()
	if r.u != nil {
		out = append(out, r.u.entries...)
	}
	slices.SortFunc(out, func(a, b *models.LedgerEntry) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *memLedgerRepo) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	if r.u == nil {
		return errors.New("insert outside of a transaction")
	}
	r.s.mu.Lock()
	if r.s.failInsert != nil {
		if err := r.s.failInsert(entry); err != nil {
			r.s.mu.Unlock()
			return err
		}
	}
	r.s.nextEntryID++
	entry.ID = r.s.nextEntryID
	r.s.mu.Unlock()

	entry.CreatedAt = r.s.now().UTC()
	clone := *entry
	r.u.entries = append(r.u.entries, &clone)
	return nil
}

func (r *memLedgerRepo) LatestBalance(ctx context.Context, accountID, currency string) (int64, error) {
	var balance int64
	for _, e := range r.all() {
		if e.AccountID == accountID && e.Currency == currency {
			balance = e.BalanceAfter
		}
	}
	return balance, nil
}

func (r *memLedgerRepo) ListPage(ctx context.Context, accountID, currency string, afterID int64, rng models.HistoryRange, limit int) ([]*models.LedgerEntry, error) {
	var out []*models.LedgerEntry
	for _, e := range r.all() {
		if e.AccountID != accountID || e.Currency != currency || e.ID <= afterID {
			continue
		}
		if !rng.From.IsZero() && e.CreatedAt.Before(rng.From) {
			continue
		}
		if !rng.To.IsZero() && !e.CreatedAt.Before(rng.To) {
			continue
		}
		clone := *e
		out = append(out, &clone)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memLedgerRepo) GetByReference(ctx context.Context, referenceID string) ([]*models.LedgerEntry, error) {
	var out []*models.LedgerEntry
	for _, e := range r.all() {
		if e.ReferenceID == referenceID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memLedgerRepo) SumBalances(ctx context.Context) ([]models.BalanceSum, error) {
	sums := make(map[[2]string]int64)
	for _, e := range r.all() {
		sums[[2]string{e.AccountID, e.Currency}] += e.Amount
	}
	out := make([]models.BalanceSum, 0, len(sums))
	for k, v := range sums {
		out = append(out, models.BalanceSum{AccountID: k[0], Currency: k[1], Balance: v})
	}
	return out, nil
}

func (r *memLedgerRepo) SumDebitsSince(ctx context.Context, accountID, currency string, kind models.EntryKind, since time.Time) (int64, error) {
	var total int64
	for _, e := range r.all() {
		if e.AccountID == accountID && e.Currency == currency && e.Kind == kind && e.Amount < 0 && !e.CreatedAt.Before(since) {
			total -= e.Amount
		}
	}
	return total, nil
}

func (r *memLedgerRepo) TotalsByKind(ctx context.Context, currency string) (map[models.EntryKind]int64, error) {
	totals := make(map[models.EntryKind]int64)
	for _, e := range r.all() {
		if e.Currency == currency {
			totals[e.Kind] += e.Amount
		}
	}
	return totals, nil
}

type memOperationRepo struct{ u *memUoW }

func (r *memOperationRepo) Get(ctx context.Context, key string) (*models.OperationRecord, error) {
	if op, ok := r.u.ops[key]; ok {
		return op, nil
	}
	r.u.s.mu.Lock()
	defer r.u.s.mu.Unlock()
	if op, ok := r.u.s.ops[key]; ok {
		clone := *op
		result := *op.Result
		clone.Result = &result
		return &clone, nil
	}
	return nil, nil
}

func (r *memOperationRepo) Insert(ctx context.Context, record *models.OperationRecord) error {
	if existing, _ := r.Get(ctx, record.Key); existing != nil {
		return ErrDuplicateOperation
	}
	clone := *record
	result := *record.Result
	clone.Result = &result
	clone.CreatedAt = r.u.s.now().UTC()
	r.u.ops[record.Key] = &clone
	return nil
}

type memPaymentRepo struct{ u *memUoW }

func (r *memPaymentRepo) merged() []*models.PaymentRequest {
	r.u.s.mu.Lock()
	m := make(map[string]*models.PaymentRequest, len(r.u.s.payments))
	for id, p := range r.u.s.payments {
		clone := *p
		m[id] = &clone
	}
	r.u.s.mu.Unlock()
	for id, p := range r.u.payments {
		clone := *p
		m[id] = &clone
	}
	out := make([]*models.PaymentRequest, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *models.PaymentRequest) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// trxHeld reports whether another pending or approved request holds the transfer id
func (r *memPaymentRepo) trxHeld(id, method, trxID string) bool {
	for _, p := range r.merged() {
		if p.ID == id || p.TrxID == nil || *p.TrxID != trxID || p.Method != method {
			continue
		}
		if p.Status == models.PaymentStatusPending || p.Status == models.PaymentStatusApproved {
			return true
		}
	}
	return false
}

func (r *memPaymentRepo) Create(ctx context.Context, request *models.PaymentRequest) error {
	if request.SubmitKey != nil {
		if existing, _ := r.GetBySubmitKey(ctx, *request.SubmitKey); existing != nil {
			return ErrDuplicateOperation
		}
	}
	if request.TrxID != nil && r.trxHeld(request.ID, request.Method, *request.TrxID) {
		return ErrDuplicateTransfer
	}
	clone := *request
	r.u.payments[request.ID] = &clone
	return nil
}

func (r *memPaymentRepo) GetByID(ctx context.Context, id string) (*models.PaymentRequest, error) {
	if p, ok := r.u.payments[id]; ok {
		clone := *p
		return &clone, nil
	}
	return r.u.s.payment(id), nil
}

func (r *memPaymentRepo) GetBySubmitKey(ctx context.Context, key string) (*models.PaymentRequest, error) {
	for _, p := range r.merged() {
		if p.SubmitKey != nil && *p.SubmitKey == key {
			return p, nil
		}
	}
	return nil, nil
}

func (r *memPaymentRepo) SetTrxID(ctx context.Context, id, trxID string) (bool, error) {
	p, _ := r.GetByID(ctx, id)
	if p == nil || !p.IsPending() {
		return false, nil
	}
	if r.trxHeld(id, p.Method, trxID) {
		return false, ErrDuplicateTransfer
	}
	p.TrxID = &trxID
	r.u.payments[id] = p
	return true, nil
}

func (r *memPaymentRepo) MarkDecided(ctx context.Context, id string, status models.PaymentStatus, operatorID *string, reason string, ledgerEntryID *int64, decidedAt time.Time) (bool, error) {
	p, _ := r.GetByID(ctx, id)
	if p == nil || !p.IsPending() {
		return false, nil
	}
	p.Status = status
	p.DecidedBy = operatorID
	p.Reason = reason
	p.LedgerEntryID = ledgerEntryID
	p.DecidedAt = &decidedAt
	r.u.payments[id] = p
	return true, nil
}

func (r *memPaymentRepo) ListPending(ctx context.Context) ([]*models.PaymentRequest, error) {
	var out []*models.PaymentRequest
	for _, p := range r.merged() {
		if p.IsPending() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPaymentRepo) ListExpired(ctx context.Context, now time.Time) ([]*models.PaymentRequest, error) {
	var out []*models.PaymentRequest
	for _, p := range r.merged() {
		if p.IsPending() && !p.ExpiresAt.After(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPaymentRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.PaymentRequest, error) {
	var out []*models.PaymentRequest
	all := r.merged()
	slices.Reverse(all)
	for _, p := range all {
		if p.AccountID == accountID {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memPaymentRepo) CountPending(ctx context.Context) (map[models.PaymentDirection]int, error) {
	counts := make(map[models.PaymentDirection]int)
	pending, _ := r.ListPending(ctx)
	for _, p := range pending {
		counts[p.Direction]++
	}
	return counts, nil
}

type memRoundRepo struct{ u *memUoW }

func (r *memRoundRepo) Create(ctx context.Context, round *models.GameRound) error {
	clone := *round
	r.u.rounds[round.ID] = &clone
	return nil
}

func (r *memRoundRepo) GetByID(ctx context.Context, id string) (*models.GameRound, error) {
	if g, ok := r.u.rounds[id]; ok {
		clone := *g
		return &clone, nil
	}
	return r.u.s.round(id), nil
}

func (r *memRoundRepo) Settle(ctx context.Context, round *models.GameRound) (bool, error) {
	current, _ := r.GetByID(ctx, round.ID)
	if current == nil || current.Status != models.RoundStatusOpened {
		return false, nil
	}
	clone := *round
	r.u.rounds[round.ID] = &clone
	return true, nil
}

func (r *memRoundRepo) merged() []*models.GameRound {
	r.u.s.mu.Lock()
	m := make(map[string]*models.GameRound, len(r.u.s.rounds))
	for id, g := range r.u.s.rounds {
		clone := *g
		m[id] = &clone
	}
	r.u.s.mu.Unlock()
	for id, g := range r.u.rounds {
		clone := *g
		m[id] = &clone
	}
	out := make([]*models.GameRound, 0, len(m))
	for _, g := range m {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b *models.GameRound) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *memRoundRepo) ListOpenedBefore(ctx context.Context, cutoff time.Time) ([]*models.GameRound, error) {
	var out []*models.GameRound
	for _, g := range r.merged() {
		if g.Status == models.RoundStatusOpened && g.OpenedAt.Before(cutoff) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *memRoundRepo) StatsByAccount(ctx context.Context, accountID string) ([]*models.GameStats, error) {
	byGame := make(map[string]*models.GameStats)
	for _, g := range r.merged() {
		if g.AccountID != accountID || g.Status != models.RoundStatusResolved {
			continue
		}
		st, ok := byGame[g.Game]
		if !ok {
			st = &models.GameStats{Game: g.Game}
			byGame[g.Game] = st
		}
		st.Rounds++
		if g.Won() {
			st.Wins++
		}
		st.TotalStaked += g.Stake
		st.TotalPaid += g.Payout
	}
	out := make([]*models.GameStats, 0, len(byGame))
	for _, st := range byGame {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b *models.GameStats) int { return cmp.Compare(a.Game, b.Game) })
	return out, nil
}

type memClaimRepo struct{ u *memUoW }

func (r *memClaimRepo) Create(ctx context.Context, claim *models.BonusClaim) error {
	clone := *claim
	r.u.claims = append(r.u.claims, &clone)
	return nil
}

func (r *memClaimRepo) GetLatest(ctx context.Context, accountID string, bonusType models.BonusType) (*models.BonusClaim, error) {
	r.u.s.mu.Lock()
	all := slices.Clone(r.u.s.claims)
	r.u.s.mu.Unlock()
	all = append(all, r.u.claims...)

	var latest *models.BonusClaim
	for _, c := range all {
		if c.AccountID == accountID && c.BonusType == bonusType {
			if latest == nil || c.PeriodStart.After(latest.PeriodStart) {
				latest = c
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}
