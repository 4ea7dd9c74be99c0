package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/gigs/internal/domain"
	"github.com/shopspring/decimal"
)

var errConnRefused = errors.New("dial tcp: connection refused")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeUsers doubles as the user directory and the user store.
type fakeUsers struct {
	mu        sync.Mutex
	users     map[int64]*domain.User
	existsErr error
	ledger    *fakePayments
}

func (f *fakeUsers) Exists(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.users[id]
	return ok, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	c.Balance = f.ledger.balance(id)
	return &c, nil
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.TelegramID == telegramID {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUsers) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *u
	c.ID = int64(len(f.users) + 1)
	for f.users[c.ID] != nil {
		c.ID++
	}
	f.users[c.ID] = &c
	out := c
	return &out, nil
}

func (f *fakeUsers) UpdateInfo(_ context.Context, id int64, firstName, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.FirstName, u.Username = firstName, username
	return nil
}

func (f *fakeUsers) Credit(ctx context.Context, id int64, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := f.ledger.InTx(ctx, func(tx PaymentTx) error {
		var err error
		balance, err = tx.Credit(ctx, id, amount, nil, description)
		return err
	})
	return balance, err
}

func (f *fakeUsers) ListTransactions(_ context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	f.ledger.mu.Lock()
	defer f.ledger.mu.Unlock()
	var out []domain.Transaction
	for i := len(f.ledger.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if f.ledger.ledger[i].UserID == userID {
			out = append(out, f.ledger.ledger[i])
		}
	}
	return out, nil
}

// fakeTasks serializes Update and Delete per task the way a row lock does.
// Get never waits for the lock.
type fakeTasks struct {
	mu     sync.Mutex
	tasks  map[int64]*domain.Task
	locks  map[int64]*sync.Mutex
	nextID int64
	getErr error
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: make(map[int64]*domain.Task), locks: make(map[int64]*sync.Mutex)}
}

func (f *fakeTasks) lockFor(id int64) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[id]
	if !ok {
		l = &sync.Mutex{}
		f.locks[id] = l
	}
	return l
}

func (f *fakeTasks) Create(_ context.Context, t *domain.Task) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := t.Clone()
	c.ID = f.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.tasks[c.ID] = c
	return c.Clone(), nil
}

func (f *fakeTasks) Get(_ context.Context, id int64) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (f *fakeTasks) Update(ctx context.Context, id int64, fn func(t *domain.Task) error) (*domain.Task, error) {
	l := f.lockFor(id)
	l.Lock()
	defer l.Unlock()

	f.mu.Lock()
	cur, ok := f.tasks[id]
	if !ok {
		f.mu.Unlock()
		return nil, domain.ErrTaskNotFound
	}
	t := cur.Clone()
	f.mu.Unlock()

	if err := fn(t); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	t.UpdatedAt = time.Now()
	f.tasks[id] = t.Clone()
	return t, nil
}

func (f *fakeTasks) Delete(_ context.Context, id int64, before func(t *domain.Task) error) error {
	l := f.lockFor(id)
	l.Lock()
	defer l.Unlock()

	f.mu.Lock()
	t, ok := f.tasks[id]
	if !ok {
		f.mu.Unlock()
		return domain.ErrTaskNotFound
	}
	t = t.Clone()
	f.mu.Unlock()

	if err := before(t); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

// staleTasks serves Get from a snapshot taken before a concurrent change,
// the way an unlocked read can lag behind a committed write.
type staleTasks struct {
	*fakeTasks
	snapshot *domain.Task
}

func (s *staleTasks) Get(ctx context.Context, id int64) (*domain.Task, error) {
	if s.snapshot != nil && s.snapshot.ID == id {
		return s.snapshot.Clone(), nil
	}
	return s.fakeTasks.Get(ctx, id)
}

func (f *fakeTasks) ListByPoster(_ context.Context, posterID int64) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for _, t := range f.tasks {
		if t.PosterID == posterID {
			out = append(out, *t.Clone())
		}
	}
	return out, nil
}

// fakeOffers holds one lock for everything; LockTask keeps it for the
// whole callback.
type fakeOffers struct {
	mu         sync.Mutex
	offers     map[int64]*domain.Offer
	nextID     int64
	recordsErr error
}

func newFakeOffers() *fakeOffers {
	return &fakeOffers{offers: make(map[int64]*domain.Offer)}
}

func (f *fakeOffers) Get(_ context.Context, id int64) (*domain.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.offers[id]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	c := *o
	return &c, nil
}

func (f *fakeOffers) list(match func(o *domain.Offer) bool) []domain.Offer {
	var out []domain.Offer
	for _, id := range slices.Sorted(maps.Keys(f.offers)) {
		if o := f.offers[id]; match(o) {
			out = append(out, *o)
		}
	}
	return out
}

func (f *fakeOffers) ListByTask(_ context.Context, taskID int64) ([]domain.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(o *domain.Offer) bool { return o.TaskID == taskID }), nil
}

func (f *fakeOffers) ListByRunner(_ context.Context, runnerID int64) ([]domain.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(o *domain.Offer) bool { return o.RunnerID == runnerID }), nil
}

func (f *fakeOffers) FindByRunnerAndTask(_ context.Context, runnerID, taskID int64) (*domain.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.offers {
		if o.RunnerID == runnerID && o.TaskID == taskID {
			c := *o
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeOffers) runnerHasAccepted(runnerID int64) bool {
	for _, o := range f.offers {
		if o.RunnerID == runnerID && o.Status == domain.OfferStatusAccepted {
			return true
		}
	}
	return false
}

func (f *fakeOffers) RunnerHasAccepted(_ context.Context, runnerID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runnerHasAccepted(runnerID), nil
}

func (f *fakeOffers) LockTask(_ context.Context, taskID int64, fn func(tx OfferTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := make(map[int64]domain.Offer, len(f.offers))
	for id, o := range f.offers {
		snapshot[id] = *o
	}
	tx := &fakeOfferTx{f: f, offers: f.list(func(o *domain.Offer) bool { return o.TaskID == taskID })}
	if err := fn(tx); err != nil {
		f.offers = make(map[int64]*domain.Offer, len(snapshot))
		for id, o := range snapshot {
			f.offers[id] = &o
		}
		return err
	}
	return nil
}

func (f *fakeOffers) DeleteByTask(_ context.Context, taskID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordsErr != nil {
		return f.recordsErr
	}
	maps.DeleteFunc(f.offers, func(_ int64, o *domain.Offer) bool { return o.TaskID == taskID })
	return nil
}

func (f *fakeOffers) SetStatusForTask(_ context.Context, taskID int64, from []domain.OfferStatus, to domain.OfferStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordsErr != nil {
		return 0, f.recordsErr
	}
	n := 0
	for _, o := range f.offers {
		if o.TaskID == taskID && slices.Contains(from, o.Status) {
			o.Status = to
			n++
		}
	}
	return n, nil
}

type fakeOfferTx struct {
	f      *fakeOffers
	offers []domain.Offer
}

func (tx *fakeOfferTx) Offers() []domain.Offer { return tx.offers }

func (tx *fakeOfferTx) Create(_ context.Context, o *domain.Offer) (*domain.Offer, error) {
	for _, cur := range tx.f.offers {
		if cur.TaskID == o.TaskID && cur.RunnerID == o.RunnerID {
			return nil, domain.ErrAlreadyOffered
		}
	}
	tx.f.nextID++
	c := *o
	c.ID = tx.f.nextID
	tx.f.offers[c.ID] = &c
	tx.offers = append(tx.offers, c)
	out := c
	return &out, nil
}

func (tx *fakeOfferTx) RunnerHasAccepted(_ context.Context, runnerID int64) (bool, error) {
	return tx.f.runnerHasAccepted(runnerID), nil
}

func (tx *fakeOfferTx) SetStatus(_ context.Context, id int64, status domain.OfferStatus) error {
	o, ok := tx.f.offers[id]
	if !ok {
		return domain.ErrOfferNotFound
	}
	o.Status = status
	return nil
}

func (tx *fakeOfferTx) Delete(_ context.Context, id int64) error {
	delete(tx.f.offers, id)
	return nil
}

func (tx *fakeOfferTx) DeleteOthers(_ context.Context, taskID, keepID int64) error {
	maps.DeleteFunc(tx.f.offers, func(id int64, o *domain.Offer) bool { return o.TaskID == taskID && id != keepID })
	return nil
}

type fakeApps struct {
	mu            sync.Mutex
	apps          map[int64]*domain.Application
	nextID        int64
	transitionErr error
	recordsErr    error
}

func newFakeApps() *fakeApps {
	return &fakeApps{apps: make(map[int64]*domain.Application)}
}

func (f *fakeApps) Create(_ context.Context, a *domain.Application) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cur := range f.apps {
		if cur.TaskID == a.TaskID && cur.ApplicantID == a.ApplicantID {
			return nil, domain.ErrAlreadyApplied
		}
	}
	f.nextID++
	c := *a
	c.ID = f.nextID
	f.apps[c.ID] = &c
	out := c
	return &out, nil
}

func (f *fakeApps) Get(_ context.Context, id int64) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.apps[id]
	if !ok {
		return nil, domain.ErrApplicationNotFound
	}
	c := *a
	return &c, nil
}

func (f *fakeApps) FindByApplicantAndTask(_ context.Context, applicantID, taskID int64) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.apps {
		if a.ApplicantID == applicantID && a.TaskID == taskID {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeApps) list(match func(a *domain.Application) bool) []domain.Application {
	var out []domain.Application
	for _, id := range slices.Sorted(maps.Keys(f.apps)) {
		if a := f.apps[id]; match(a) {
			out = append(out, *a)
		}
	}
	return out
}

func (f *fakeApps) ListByTask(_ context.Context, taskID int64) ([]domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(a *domain.Application) bool { return a.TaskID == taskID }), nil
}

func (f *fakeApps) ListByApplicant(_ context.Context, applicantID int64) ([]domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(a *domain.Application) bool { return a.ApplicantID == applicantID }), nil
}

func (f *fakeApps) Transition(_ context.Context, id int64, from []domain.ApplicationStatus, to domain.ApplicationStatus) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitionErr != nil {
		return nil, f.transitionErr
	}
	a, ok := f.apps[id]
	if !ok {
		return nil, domain.ErrApplicationNotFound
	}
	if !slices.Contains(from, a.Status) {
		return nil, domain.ErrNotPending
	}
	a.Status = to
	c := *a
	return &c, nil
}

func (f *fakeApps) DeletePending(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.apps[id]
	if !ok {
		return domain.ErrApplicationNotFound
	}
	if a.Status != domain.ApplicationStatusPending {
		return domain.ErrNotPending
	}
	delete(f.apps, id)
	return nil
}

func (f *fakeApps) DeleteByTask(_ context.Context, taskID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordsErr != nil {
		return f.recordsErr
	}
	maps.DeleteFunc(f.apps, func(_ int64, a *domain.Application) bool { return a.TaskID == taskID })
	return nil
}

func (f *fakeApps) SetStatusForTask(_ context.Context, taskID int64, from []domain.ApplicationStatus, to domain.ApplicationStatus) (int, error) {
	return f.SetStatusForApplicant(context.Background(), taskID, 0, from, to)
}

func (f *fakeApps) SetStatusForApplicant(_ context.Context, taskID, applicantID int64, from []domain.ApplicationStatus, to domain.ApplicationStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordsErr != nil {
		return 0, f.recordsErr
	}
	n := 0
	for _, a := range f.apps {
		if a.TaskID != taskID || (applicantID != 0 && a.ApplicantID != applicantID) {
			continue
		}
		if slices.Contains(from, a.Status) {
			a.Status = to
			n++
		}
	}
	return n, nil
}

// fakePayments keeps payments and balances together and rolls both back
// when a transaction callback fails.
type fakePayments struct {
	mu       sync.Mutex
	payments map[int64]*domain.Payment
	balances map[int64]decimal.Decimal
	ledger   []domain.Transaction
	nextID   int64
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		payments: make(map[int64]*domain.Payment),
		balances: make(map[int64]decimal.Decimal),
	}
}

func (f *fakePayments) balance(userID int64) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

func (f *fakePayments) InTx(_ context.Context, fn func(tx PaymentTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	payments := make(map[int64]domain.Payment, len(f.payments))
	for id, p := range f.payments {
		payments[id] = *p
	}
	balances := maps.Clone(f.balances)
	ledgerLen, nextID := len(f.ledger), f.nextID

	if err := fn(&fakePaymentTx{f: f}); err != nil {
		f.payments = make(map[int64]*domain.Payment, len(payments))
		for id, p := range payments {
			f.payments[id] = &p
		}
		f.balances = balances
		f.ledger = f.ledger[:ledgerLen]
		f.nextID = nextID
		return err
	}
	return nil
}

func (f *fakePayments) Get(_ context.Context, id int64) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	c := *p
	return &c, nil
}

func (f *fakePayments) ListByTask(_ context.Context, taskID int64) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Payment
	for _, id := range slices.Sorted(maps.Keys(f.payments)) {
		if p := f.payments[id]; p.TaskID == taskID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePayments) ListPendingBefore(_ context.Context, before time.Time) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Payment
	for _, id := range slices.Sorted(maps.Keys(f.payments)) {
		if p := f.payments[id]; p.Status == domain.PaymentStatusPending && p.CreatedAt.Before(before) {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakePaymentTx struct {
	f *fakePayments
}

func (tx *fakePaymentTx) FindByOperationKey(_ context.Context, key string) (*domain.Payment, error) {
	for _, p := range tx.f.payments {
		if p.OperationKey == key {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (tx *fakePaymentTx) Find(_ context.Context, taskID, recipientID int64) ([]domain.Payment, error) {
	var out []domain.Payment
	ids := slices.Sorted(maps.Keys(tx.f.payments))
	slices.Reverse(ids)
	for _, id := range ids {
		p := tx.f.payments[id]
		if p.TaskID == taskID && (recipientID == 0 || p.RecipientID == recipientID) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (tx *fakePaymentTx) Insert(_ context.Context, p *domain.Payment) (*domain.Payment, error) {
	tx.f.nextID++
	c := *p
	c.ID = tx.f.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	tx.f.payments[c.ID] = &c
	out := c
	return &out, nil
}

func (tx *fakePaymentTx) SetStatus(_ context.Context, id int64, status domain.PaymentStatus) error {
	p, ok := tx.f.payments[id]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	p.Status = status
	return nil
}

func (tx *fakePaymentTx) Deduct(_ context.Context, userID int64, amount decimal.Decimal, paymentID *int64, description string) (decimal.Decimal, error) {
	next := tx.f.balances[userID].Sub(amount)
	if next.IsNegative() {
		return decimal.Zero, domain.ErrInsufficientBalance
	}
	tx.f.balances[userID] = next
	tx.f.ledger = append(tx.f.ledger, domain.Transaction{UserID: userID, PaymentID: paymentID, Amount: amount.Neg(), TxType: domain.TxTypeDebit, Description: description})
	return next, nil
}

func (tx *fakePaymentTx) Credit(_ context.Context, userID int64, amount decimal.Decimal, paymentID *int64, description string) (decimal.Decimal, error) {
	next := tx.f.balances[userID].Add(amount)
	tx.f.balances[userID] = next
	tx.f.ledger = append(tx.f.ledger, domain.Transaction{UserID: userID, PaymentID: paymentID, Amount: amount, TxType: domain.TxTypeCredit, Description: description})
	return next, nil
}

type fakeSagas struct {
	mu    sync.Mutex
	sagas map[uuid.UUID]domain.Saga
}

func newFakeSagas() *fakeSagas {
	return &fakeSagas{sagas: make(map[uuid.UUID]domain.Saga)}
}

func (f *fakeSagas) Insert(_ context.Context, s *domain.Saga) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sagas[s.ID] = *s
	return nil
}

func (f *fakeSagas) Update(_ context.Context, s *domain.Saga) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sagas[s.ID] = *s
	return nil
}

func (f *fakeSagas) Delete(_ context.Context, s *domain.Saga) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sagas, s.ID)
	return nil
}

func (f *fakeSagas) ListOpen(_ context.Context, staleBefore time.Time, limit int) ([]domain.Saga, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Saga
	for _, s := range f.sagas {
		if s.Status == domain.SagaStatusReplay || (s.Status == domain.SagaStatusStarted && s.UpdatedAt.Before(staleBefore)) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b domain.Saga) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSagas) withStatus(status domain.SagaStatus) []domain.Saga {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Saga
	for _, s := range f.sagas {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out
}

type notification struct {
	userID int64
	taskID int64
	title  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, userID, taskID int64, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, notification{userID, taskID, title})
	return nil
}

// flakyGateway fails escrow calls on demand before they reach the engine.
type flakyGateway struct {
	PaymentGateway

	mu          sync.Mutex
	holdErr     error
	lostReply   error
	releaseErrs map[int64]int
	refundErr   error
}

func (g *flakyGateway) Hold(ctx context.Context, req domain.HoldRequest) (*domain.Payment, error) {
	g.mu.Lock()
	err, lost := g.holdErr, g.lostReply
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p, err := g.PaymentGateway.Hold(ctx, req)
	if err == nil && lost != nil {
		// The hold committed but the caller never hears about it.
		return nil, lost
	}
	return p, err
}

// failReleases makes the next n releases to recipientID fail.
func (g *flakyGateway) failReleases(recipientID int64, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.releaseErrs == nil {
		g.releaseErrs = make(map[int64]int)
	}
	g.releaseErrs[recipientID] = n
}

func (g *flakyGateway) Release(ctx context.Context, taskID, recipientID int64) (*domain.Payment, error) {
	g.mu.Lock()
	if g.releaseErrs[recipientID] > 0 {
		g.releaseErrs[recipientID]--
		g.mu.Unlock()
		return nil, errConnRefused
	}
	g.mu.Unlock()
	return g.PaymentGateway.Release(ctx, taskID, recipientID)
}

func (g *flakyGateway) Refund(ctx context.Context, taskID, recipientID int64) (*domain.Payment, error) {
	g.mu.Lock()
	err := g.refundErr
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return g.PaymentGateway.Refund(ctx, taskID, recipientID)
}

const (
	poster  int64 = 1
	runnerA int64 = 2
	runnerB int64 = 3
	runnerC int64 = 4
)

type testEnv struct {
	users    *fakeUsers
	tasks    *fakeTasks
	offers   *fakeOffers
	apps     *fakeApps
	ledger   *fakePayments
	sagaRows *fakeSagas
	notifier *fakeNotifier
	gateway  *flakyGateway

	sagas    *SagaLog
	escrow   *PaymentService
	tasksSvc *TaskService
	offerSvc *OfferService
	staffing *StaffingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		tasks:    newFakeTasks(),
		offers:   newFakeOffers(),
		apps:     newFakeApps(),
		ledger:   newFakePayments(),
		sagaRows: newFakeSagas(),
		notifier: &fakeNotifier{},
	}
	e.users = &fakeUsers{users: make(map[int64]*domain.User), ledger: e.ledger}
	for _, id := range []int64{poster, runnerA, runnerB, runnerC} {
		e.users.users[id] = &domain.User{ID: id, TelegramID: 1000 + id}
	}
	e.ledger.balances[poster] = dec("1000")

	e.sagas = NewSagaLog(e.sagaRows, 3, time.Minute)
	e.escrow = NewPaymentService(e.ledger, NewParticipantCheck(e.tasks), time.Second)
	e.gateway = &flakyGateway{PaymentGateway: e.escrow}
	e.tasksSvc = NewTaskService(e.tasks, e.users, e.gateway, e.offers, e.apps, e.notifier, e.sagas, time.Second)
	e.offerSvc = NewOfferService(e.offers, e.tasksSvc, e.users, e.notifier, e.sagas, time.Second)
	e.staffing = NewStaffingService(e.apps, e.tasksSvc, e.users, e.gateway, e.notifier, e.sagas, time.Second)
	return e
}

func (e *testEnv) singleTask(t *testing.T, amount string) *domain.Task {
	t.Helper()
	task, err := e.tasksSvc.CreateTask(context.Background(), domain.CreateTaskRequest{
		PosterID: poster,
		Kind:     domain.TaskKindSingle,
		Title:    "Pick up groceries",
		Amount:   dec(amount),
	})
	if err != nil {
		t.Fatalf("create single task: %v", err)
	}
	return task
}

func (e *testEnv) multiTask(t *testing.T, fixedPay string, people int) *domain.Task {
	t.Helper()
	start := time.Now().Add(48 * time.Hour).Truncate(24 * time.Hour)
	task, err := e.tasksSvc.CreateTask(context.Background(), domain.CreateTaskRequest{
		PosterID:       poster,
		Kind:           domain.TaskKindMulti,
		Title:          "Conference ushers",
		Amount:         dec(fixedPay),
		RequiredPeople: people,
		Location:       "Cairo",
		StartDate:      start,
		EndDate:        start.Add(24 * time.Hour),
		NumberOfDays:   2,
	})
	if err != nil {
		t.Fatalf("create multi task: %v", err)
	}
	return task
}

func (e *testEnv) task(t *testing.T, id int64) *domain.Task {
	t.Helper()
	task, err := e.tasks.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get task %d: %v", id, err)
	}
	return task
}

func (e *testEnv) payments(t *testing.T, taskID int64) []domain.Payment {
	t.Helper()
	ps, err := e.ledger.ListByTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	return ps
}

func assertBalance(t *testing.T, e *testEnv, userID int64, want string) {
	t.Helper()
	if got := e.ledger.balance(userID); !got.Equal(dec(want)) {
		t.Errorf("balance of user %d = %s, want %s", userID, got, want)
	}
}

func assertKind(t *testing.T, err error, want domain.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := domain.KindOf(err); got != want {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, want, err)
	}
}
