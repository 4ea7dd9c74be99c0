package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/domain"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type SagaLog interface {
	Open(ctx context.Context) ([]domain.Saga, error)
	Replay(ctx context.Context) (int, error)
}

type Escrow interface {
	ListByTask(ctx context.Context, taskID int64) ([]domain.Payment, error)
	SweepOrphanHolds(ctx context.Context, age time.Duration) (int, error)
}

// Server exposes health and saga recovery endpoints to operators.
type Server struct {
	db        Pinger
	sagas     SagaLog
	escrow    Escrow
	apiKey    string
	orphanAge time.Duration
}

func NewServer(db Pinger, sagas SagaLog, escrow Escrow, cfg *config.Config) *Server {
	return &Server{
		db:        db,
		sagas:     sagas,
		escrow:    escrow,
		apiKey:    cfg.OpsAPIKey,
		orphanAge: cfg.OrphanHoldAge,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	ops := r.NewRoute().Subrouter()
	ops.Use(s.requireKey)
	ops.HandleFunc("/sagas", s.listSagas).Methods(http.MethodGet)
	ops.HandleFunc("/sagas/replay", s.replaySagas).Methods(http.MethodPost)
	ops.HandleFunc("/payments/sweep", s.sweepHolds).Methods(http.MethodPost)
	ops.HandleFunc("/tasks/{id:[0-9]+}/payments", s.taskPayments).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  config.HTTPReadTimeout,
		WriteTimeout: config.HTTPWriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("ops server shutdown", "error", err)
		}
	}()

	slog.Info("ops server listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// requireKey rejects every request when no key is configured.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Ops-Key")
		if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		slog.Warn("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "healthy",
		Data: map[string]any{
			"timestamp": time.Now().Unix(),
			"service":   "gigs",
		},
	})
}

func (s *Server) listSagas(w http.ResponseWriter, r *http.Request) {
	open, err := s.sagas.Open(r.Context())
	if err != nil {
		slog.Error("list sagas", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sagas")
		return
	}

	views := make([]sagaView, len(open))
	for i, sg := range open {
		views[i] = newSagaView(sg)
	}
	WriteJSON(w, http.StatusOK, APIResponse{Success: true, Message: "ok", Data: views})
}

func (s *Server) replaySagas(w http.ResponseWriter, r *http.Request) {
	n, err := s.sagas.Replay(r.Context())
	if err != nil {
		slog.Error("replay sagas", "error", err)
		writeError(w, http.StatusInternalServerError, "replay failed")
		return
	}
	WriteJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("resolved %d saga(s)", n),
		Data:    map[string]int{"resolved": n},
	})
}

func (s *Server) sweepHolds(w http.ResponseWriter, r *http.Request) {
	n, err := s.escrow.SweepOrphanHolds(r.Context(), s.orphanAge)
	if err != nil {
		slog.Error("sweep orphan holds", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	WriteJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("refunded %d orphan hold(s)", n),
		Data:    map[string]int{"refunded": n},
	})
}

func (s *Server) taskPayments(w http.ResponseWriter, r *http.Request) {
	taskID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	payments, err := s.escrow.ListByTask(r.Context(), taskID)
	if err != nil {
		slog.Error("list payments", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}

	views := make([]paymentView, len(payments))
	for i, p := range payments {
		views[i] = newPaymentView(p)
	}
	WriteJSON(w, http.StatusOK, APIResponse{Success: true, Message: "ok", Data: views})
}
