package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/domain"
	"github.com/shopspring/decimal"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeSagas struct {
	open     []domain.Saga
	replayed int
}

func (f *fakeSagas) Open(context.Context) ([]domain.Saga, error) { return f.open, nil }

func (f *fakeSagas) Replay(context.Context) (int, error) {
	f.replayed++
	return len(f.open), nil
}

type fakeEscrow struct {
	payments map[int64][]domain.Payment
	swept    time.Duration
}

func (f *fakeEscrow) ListByTask(_ context.Context, taskID int64) ([]domain.Payment, error) {
	return f.payments[taskID], nil
}

func (f *fakeEscrow) SweepOrphanHolds(_ context.Context, age time.Duration) (int, error) {
	f.swept = age
	return 1, nil
}

func newTestServer(db Pinger) (*Server, *fakeSagas, *fakeEscrow) {
	sagas := &fakeSagas{open: []domain.Saga{{
		ID:        uuid.New(),
		Kind:      domain.SagaPaymentRelease,
		TaskID:    7,
		RunnerID:  3,
		Status:    domain.SagaStatusReplay,
		Attempts:  2,
		LastError: "payment.release unavailable",
	}}}
	escrow := &fakeEscrow{payments: map[int64][]domain.Payment{
		7: {{ID: 1, TaskID: 7, PayerID: 1, RecipientID: 3, Amount: decimal.RequireFromString("150"), Status: domain.PaymentStatusHeld}},
	}}
	cfg := &config.Config{OpsAPIKey: "secret", OrphanHoldAge: 10 * time.Minute}
	return NewServer(db, sagas, escrow, cfg), sagas, escrow
}

func do(t *testing.T, s *Server, method, path, key string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-Ops-Key", key)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(fakePinger{})
	rec, resp := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("health = %d %+v", rec.Code, resp)
	}

	s, _, _ = newTestServer(fakePinger{err: errors.New("dial tcp: refused")})
	rec, resp = do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable || resp.Success {
		t.Fatalf("health with db down = %d %+v", rec.Code, resp)
	}
}

func TestOpsRoutesRequireKey(t *testing.T) {
	s, _, _ := newTestServer(fakePinger{})
	for _, key := range []string{"", "wrong"} {
		rec, _ := do(t, s, http.MethodGet, "/sagas", key)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("key %q: status %d, want 401", key, rec.Code)
		}
	}

	noKey := NewServer(fakePinger{}, &fakeSagas{}, &fakeEscrow{}, &config.Config{})
	if rec, _ := do(t, noKey, http.MethodGet, "/sagas", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("unconfigured key: status %d, want 401", rec.Code)
	}
}

func TestListAndReplaySagas(t *testing.T) {
	s, sagas, _ := newTestServer(fakePinger{})

	rec, _ := do(t, s, http.MethodGet, "/sagas", "secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var body struct {
		Data []sagaView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 1 || body.Data[0].Kind != "payment.release" || body.Data[0].Attempts != 2 {
		t.Errorf("sagas = %+v", body.Data)
	}

	rec, resp := do(t, s, http.MethodPost, "/sagas/replay", "secret")
	if rec.Code != http.StatusOK || sagas.replayed != 1 || resp.Message != "resolved 1 saga(s)" {
		t.Errorf("replay = %d %+v", rec.Code, resp)
	}

	if rec, _ := do(t, s, http.MethodGet, "/sagas/replay", "secret"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET replay status %d, want 405", rec.Code)
	}
}

func TestTaskPaymentsAndSweep(t *testing.T) {
	s, _, escrow := newTestServer(fakePinger{})

	rec, _ := do(t, s, http.MethodGet, "/tasks/7/payments", "secret")
	var body struct {
		Data []paymentView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 1 || body.Data[0].Status != "held" || !body.Data[0].Amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("payments = %+v", body.Data)
	}

	if rec, _ := do(t, s, http.MethodGet, "/tasks/abc/payments", "secret"); rec.Code != http.StatusNotFound {
		t.Errorf("non-numeric id status %d, want 404", rec.Code)
	}

	rec, resp := do(t, s, http.MethodPost, "/payments/sweep", "secret")
	if rec.Code != http.StatusOK || escrow.swept != 10*time.Minute || resp.Message != "refunded 1 orphan hold(s)" {
		t.Errorf("sweep = %d %+v swept %s", rec.Code, resp, escrow.swept)
	}
}
