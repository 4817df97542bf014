package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"shadowpay/core"
	"shadowpay/core/types"
	"shadowpay/integrations/index"
	"shadowpay/native/payrequest"
	"shadowpay/observability"
	"shadowpay/rpc/middleware"
)

const (
	maxRequestBytes = 1 << 16
	moduleName      = "payrequest"
)

// Ledger is the part of core.Ledger the API serves.
type Ledger interface {
	Submit(ctx context.Context, tx *types.Transaction) (*core.Receipt, error)
	PayRequest(address [32]byte) (*payrequest.PayRequest, error)
	Account(address [32]byte) (*types.Account, error)
	ProgramID() [32]byte
	Rent() payrequest.Rent
	StateRoot() common.Hash
	Height() (uint64, error)
}

// EventStore lists indexed events for one pay request.
type EventStore interface {
	ListByAddress(ctx context.Context, address string, limit int) ([]index.Record, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger      Ledger
	Events      EventStore
	Stream      EventStream
	Logger      *slog.Logger
	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimit
	CORSOrigins []string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// Server exposes the ledger over HTTP.
type Server struct {
	cfg     Config
	ledger  Ledger
	events  EventStore
	stream  EventStream
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	router  http.Handler
}

// New constructs the HTTP API.
func New(cfg Config) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("rpc: ledger must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	srv := &Server{
		cfg:     cfg,
		ledger:  cfg.Ledger,
		events:  cfg.Events,
		stream:  cfg.Stream,
		logger:  cfg.Logger,
		auth:    middleware.NewAuthenticator(cfg.Auth, cfg.Logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimit),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: s.cfg.CORSOrigins}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.With(s.limiter.Middleware("transactions"), s.auth.Middleware(middleware.ScopeSubmit)).
			Post("/transactions", s.handleSubmitTransaction)
		api.Get("/program", s.handleProgram)
		api.Get("/accounts/{address}", s.handleGetAccount)
		api.Get("/payrequests/{address}", s.handleGetPayRequest)
		api.Get("/payrequests/{address}/events", s.handleListEvents)
		api.Get("/events/stream", s.handleEventStream)
	})
	return otelhttp.NewHandler(r, "shadowpay.rpc")
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("addr", listener.Addr().String()))
		errCh <- httpServer.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// requestID propagates the caller's request id or assigns a fresh one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(chimw.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(chimw.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.ModuleMetrics().Observe(moduleName, r.Method+" "+route, status, time.Since(start))
		s.logger.Debug("rpc request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.Duration("duration", time.Since(start)))
	})
}
