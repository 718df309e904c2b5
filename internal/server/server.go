package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/metrics"
	"github.com/alanyoungcy/pumpfight/internal/server/handler"
	"github.com/alanyoungcy/pumpfight/internal/server/middleware"
	"github.com/alanyoungcy/pumpfight/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port               int
	CORSOrigins        []string
	OperatorAPIKey     string // if empty, operator routes rely on the caller check alone
	RequireSignatures  bool
	RateLimitPerMinute int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Config *handler.ConfigHandler
	Tokens *handler.TokenHandler
	Vaults *handler.VaultHandler
	Events *handler.EventHandler
}

// NewHandlers builds every handler on top of one launchpad service.
func NewHandlers(svc handler.Launchpad, logger *slog.Logger) Handlers {
	return Handlers{
		Health: handler.NewHealthHandler(svc),
		Config: handler.NewConfigHandler(svc),
		Tokens: handler.NewTokenHandler(svc, logger),
		Vaults: handler.NewVaultHandler(svc, logger),
		Events: handler.NewEventHandler(svc, logger),
	}
}

// Server is the HTTP + WebSocket API of the launchpad.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. wsHub, limiter and m may be nil.
func NewServer(
	cfg Config,
	handlers Handlers,
	wsHub *ws.Hub,
	limiter domain.RateLimiter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	caller := middleware.Caller(cfg.RequireSignatures)
	operator := middleware.OperatorAuth(cfg.OperatorAPIKey)
	write := func(h http.HandlerFunc) http.Handler { return caller(h) }
	operatorWrite := func(h http.HandlerFunc) http.Handler { return operator(caller(h)) }

	// --- Register routes ---

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/config", handlers.Config.GetConfig)

	// Tokens and trading.
	mux.Handle("POST /api/tokens", write(handlers.Tokens.Create))
	mux.HandleFunc("GET /api/tokens", handlers.Tokens.List)
	mux.HandleFunc("GET /api/tokens/{token}", handlers.Tokens.Get)
	mux.HandleFunc("GET /api/tokens/{token}/state", handlers.Tokens.State)
	mux.HandleFunc("GET /api/tokens/{token}/quote/buy", handlers.Tokens.QuoteBuy)
	mux.HandleFunc("GET /api/tokens/{token}/quote/cost", handlers.Tokens.QuoteCost)
	mux.HandleFunc("GET /api/tokens/{token}/quote/sell", handlers.Tokens.QuoteSell)
	mux.HandleFunc("GET /api/tokens/{token}/balances/{addr}", handlers.Tokens.Balance)
	mux.Handle("POST /api/tokens/{token}/buy", write(handlers.Tokens.Buy))
	mux.Handle("POST /api/tokens/{token}/sell", write(handlers.Tokens.Sell))
	mux.Handle("POST /api/tokens/{token}/pause", operatorWrite(handlers.Tokens.Pause))
	mux.Handle("POST /api/tokens/{token}/unpause", operatorWrite(handlers.Tokens.Unpause))
	mux.Handle("POST /api/tokens/{token}/graduate", operatorWrite(handlers.Tokens.Graduate))

	// Staking.
	mux.HandleFunc("GET /api/tokens/{token}/stakes/{addr}", handlers.Vaults.GetStake)
	mux.Handle("POST /api/tokens/{token}/stake", write(handlers.Vaults.Stake))
	mux.Handle("POST /api/tokens/{token}/unstake", write(handlers.Vaults.Unstake))

	// Polls.
	mux.Handle("POST /api/tokens/{token}/votes", write(handlers.Vaults.CreateVote))
	mux.HandleFunc("GET /api/tokens/{token}/votes/{id}", handlers.Vaults.GetVote)
	mux.HandleFunc("GET /api/tokens/{token}/votes/{id}/options/{index}", handlers.Vaults.GetVoteOption)
	mux.HandleFunc("GET /api/tokens/{token}/votes/{id}/voters/{addr}", handlers.Vaults.HasVoted)
	mux.Handle("POST /api/tokens/{token}/votes/{id}/cast", write(handlers.Vaults.CastVote))
	mux.Handle("POST /api/tokens/{token}/votes/{id}/close", write(handlers.Vaults.CloseVote))

	// Predictions.
	mux.Handle("POST /api/tokens/{token}/predictions", write(handlers.Vaults.CreatePrediction))
	mux.HandleFunc("GET /api/tokens/{token}/predictions/{id}", handlers.Vaults.GetPrediction)
	mux.Handle("POST /api/tokens/{token}/predictions/{id}/predict", write(handlers.Vaults.Predict))
	mux.Handle("POST /api/tokens/{token}/predictions/{id}/resolve", write(handlers.Vaults.ResolvePrediction))

	// History.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	mux.HandleFunc("GET /api/payouts", handlers.Events.ListPayouts)

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimitPerMinute > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMinute, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	if m != nil {
		h = middleware.Metrics(m)(h)
	}
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
