// Package api exposes the fleet over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	sdk "github.com/gagliardetto/solana-go"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/jobs"
	"wallet-fleet/internal/logger"
	"wallet-fleet/internal/observability"
	"wallet-fleet/internal/reporting"
)

// Wallets is the wallet registry as seen by the handlers.
type Wallets interface {
	Create(ctx context.Context, count int) ([]domain.Wallet, error)
	All(ctx context.Context) ([]domain.Wallet, error)
	ListWithBalances(ctx context.Context, page, pageSize int) ([]domain.WalletBalance, error)
	LookupByAddress(ctx context.Context, addresses []string) ([]domain.Wallet, error)
}

// Jobs is the job manager as seen by the handlers.
type Jobs interface {
	InitiateFunding(ctx context.Context, targets []sdk.PublicKey, lamportsPerTarget uint64) (domain.FundingJob, error)
	CompleteFunding(ctx context.Context) (*jobs.FundingReport, error)
	FundingStatus() jobs.FundingStatus
	AbortFunding(ctx context.Context) error
	Collect(ctx context.Context, sources []domain.Wallet, destination sdk.PublicKey, total uint64) (*jobs.CollectionReport, error)
}

// Reports renders job ledgers.
type Reports interface {
	Generate(ctx context.Context, jobID string) (*reporting.JobReport, error)
}

const shutdownTimeout = 10 * time.Second

// Server routes HTTP requests to the registry and the job manager.
type Server struct {
	wallets Wallets
	jobs    Jobs
	reports Reports
	mux     *http.ServeMux

	corsOrigins []string // empty = no CORS headers
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCORSOrigins allows browser requests from origins ("*" = any).
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// NewServer creates a server with all routes registered.
func NewServer(wallets Wallets, manager Jobs, reports Reports, opts ...ServerOption) *Server {
	s := &Server{
		wallets: wallets,
		jobs:    manager,
		reports: reports,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", observability.Handler())

	s.mux.HandleFunc("POST /wallets/create", s.handleCreateWallets)
	s.mux.HandleFunc("GET /wallets/list", s.handleListWallets)

	s.mux.HandleFunc("POST /funding/initiate", s.handleInitiateFunding)
	s.mux.HandleFunc("POST /funding/complete", s.handleCompleteFunding)
	s.mux.HandleFunc("GET /funding/status", s.handleFundingStatus)
	s.mux.HandleFunc("POST /funding/abort", s.handleAbortFunding)

	s.mux.HandleFunc("POST /collect", s.handleCollect)

	s.mux.HandleFunc("GET /jobs/{id}/report", s.handleJobReport)

	return s
}

// Handler returns the root handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.cors(s.mux))
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Debug(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type"
)

// cors sets CORS headers for allowed origins and answers preflight requests.
func (s *Server) cors(next http.Handler) http.Handler {
	if len(s.corsOrigins) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !s.originAllowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		if slices.Contains(s.corsOrigins, "*") {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.corsOrigins, "*") || slices.Contains(s.corsOrigins, origin)
}
