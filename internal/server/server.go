// Package server exposes the pool over HTTP: JSON endpoints for every pool
// operation, read-side queries, a websocket event feed, and the usual
// health and metrics surfaces. Caller addresses arrive in request bodies;
// authenticating them is the job of the gateway in front of this service.
package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"CoverPool/internal/observability"
	"CoverPool/internal/oracle"
	"CoverPool/internal/pool"
	"CoverPool/internal/query"
	"CoverPool/internal/token"
	"CoverPool/internal/treasury"
)

// Server bundles the pool surface behind one router.
type Server struct {
	engine   *pool.Engine
	token    *token.Registry
	oracle   *oracle.Store
	treasury *treasury.Ledger

	// reader serves durable history; nil disables the history routes.
	reader query.Reader

	hub     *WSHub
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

// Config wires a Server. Engine, Token, Oracle and Treasury are required;
// the rest degrade gracefully when nil.
type Config struct {
	Engine   *pool.Engine
	Token    *token.Registry
	Oracle   *oracle.Store
	Treasury *treasury.Ledger
	Reader   query.Reader
	Hub      *WSHub
	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

func New(cfg Config) *Server {
	return &Server{
		engine:   cfg.Engine,
		token:    cfg.Token,
		oracle:   cfg.Oracle,
		treasury: cfg.Treasury,
		reader:   cfg.Reader,
		hub:      cfg.Hub,
		health:   cfg.Health,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.instrument)

	if s.health != nil {
		r.Get("/healthz", s.health.LivenessHandler)
		r.Get("/readyz", s.health.ReadinessHandler)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}

		// Pool state reads.
		r.Get("/pool", s.handlePoolState)
		r.Get("/pool/shares/{address}", s.handleShares)

		// Mutating pool operations, rate limited per client IP.
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(20, 40))

			r.Post("/pool/deposit", s.handleDeposit)
			r.Post("/pool/withdraw", s.handleWithdraw)
			r.Post("/pool/params", s.handleUpdateParams)
			r.Post("/pool/pause", s.handlePause)
			r.Post("/pool/unpause", s.handleUnpause)
			r.Post("/pool/emergency-withdraw", s.handleEmergencyWithdraw)

			r.Post("/policies", s.handleBuyPolicy)
			r.Post("/policies/{id}/resolve", s.handleResolvePolicy)
			r.Post("/policies/{id}/expire", s.handleExpirePolicy)

			r.Post("/oracle/outcomes", s.handleSetOutcome)
			r.Post("/treasury/withdraw", s.handleTreasuryWithdraw)
			r.Post("/tokens/{id}/transfer", s.handleTokenTransfer)
		})

		// Live policy and token reads.
		r.Get("/policies/{id}", s.handleGetPolicy)
		r.Get("/tokens/{id}", s.handleTokenOwner)
		r.Get("/tokens", s.handleTokensOfOwner)
		r.Get("/treasury", s.handleTreasuryState)

		// Durable history, only when the read side is wired.
		if s.reader != nil {
			r.Get("/history/policies", s.handlePolicyHistory)
			r.Get("/history/events", s.handleEventHistory)
		}
	})

	return r
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		s.metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// --- JSON helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), errorBody{
		Error:   pool.ErrorName(err),
		Message: err.Error(),
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "BadRequest", Message: "malformed JSON body"})
		return false
	}
	return true
}

// amountJSON renders a wei value both raw and as decimal ether.
type amountJSON struct {
	Wei string `json:"wei"`
	ETH string `json:"eth"`
}

func renderAmount(v *big.Int) amountJSON {
	return amountJSON{
		Wei: v.String(),
		ETH: decimal.NewFromBigInt(v, -18).String(),
	}
}

func parseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
