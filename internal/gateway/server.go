// Package gateway is the HTTP surface of the warranty backend: salt and
// epoch resolution, sponsored minting, transaction submission and wallet
// queries.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"warranchain/go-backend/internal/config"
	"warranchain/go-backend/internal/gateway/saltstore"
	"warranchain/go-backend/internal/ledger"
	"warranchain/go-backend/internal/platform/ratelimiter"
	"warranchain/go-backend/internal/sponsor"
	"warranchain/go-backend/internal/zklogin"
)

// Server wires the gateway handlers to their dependencies. Construct with
// New and mount Handler on an http.Server.
type Server struct {
	cfg       config.GatewayConfig
	log       *slog.Logger
	ledger    ledger.Client
	sponsor   *sponsor.Gateway
	salts     *saltstore.Store
	verifier  TokenVerifier
	metrics   *Metrics
	limiter   *ratelimiter.Keyed
	prover    zklogin.ProofFetcher
	packageID string
	now       func() time.Time

	epochMu    sync.Mutex
	epochValue uint64
	epochAt    time.Time
}

type ServerOption func(*Server)

// WithClock overrides the time source used by the epoch cache and the rate
// limiter.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithProver enables the server-side proof path on /sign-transaction.
func WithProver(f zklogin.ProofFetcher) ServerOption {
	return func(s *Server) { s.prover = f }
}

func New(cfg config.GatewayConfig, client ledger.Client, gasGateway *sponsor.Gateway, salts *saltstore.Store, verifier TokenVerifier, packageID string, log *slog.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		log:       log,
		ledger:    client,
		sponsor:   gasGateway,
		salts:     salts,
		verifier:  verifier,
		metrics:   NewMetrics(),
		limiter:   ratelimiter.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute),
		packageID: packageID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the full route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /get-salt", s.route("get-salt", s.handleGetSalt))
	mux.HandleFunc("GET /latest-epoch", s.route("latest-epoch", s.handleLatestEpoch))
	mux.HandleFunc("POST /get-address", s.route("get-address", s.handleGetAddress))
	mux.HandleFunc("POST /mint-nft-sponsored", s.route("mint-nft-sponsored", s.handleMintSponsored))
	mux.HandleFunc("POST /mint-nft-prepare", s.route("mint-nft-prepare", s.handleMintPrepare))
	mux.HandleFunc("POST /sign-transaction", s.route("sign-transaction", s.handleSignTransaction))
	mux.HandleFunc("POST /execute-transaction", s.route("execute-transaction", s.handleExecuteTransaction))
	mux.HandleFunc("POST /transfer-warranty", s.route("transfer-warranty", s.handleTransferWarranty))
	mux.HandleFunc("POST /add-repair-event", s.route("add-repair-event", s.handleAddRepairEvent))
	mux.HandleFunc("POST /get-balance", s.route("get-balance", s.handleGetBalance))
	mux.HandleFunc("POST /get-all-balances", s.route("get-all-balances", s.handleGetAllBalances))
	mux.HandleFunc("POST /check-wallet-balance", s.route("check-wallet-balance", s.handleCheckWalletBalance))
	mux.HandleFunc("POST /get-owned-objects", s.route("get-owned-objects", s.handleGetOwnedObjects))
	mux.HandleFunc("GET /healthz", s.route("healthz", s.handleHealthz))
	mux.Handle("GET /metrics", s.metrics.Handler())
	return s.withCORS(s.withRateLimit(mux))
}

// route tags a handler for metrics and request logging.
func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		reqID := uuid.NewString()
		start := s.now()
		h(rec, r.WithContext(withRequestID(r.Context(), reqID)))
		s.metrics.Requests.WithLabelValues(name, httpStatusLabel(rec.status)).Inc()
		s.log.Info("request handled",
			"route", name,
			"status", rec.status,
			"request_id", reqID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r), s.now()) {
			s.metrics.RateLimited.Inc()
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// latestEpoch serves the cached epoch while it is fresh and refetches
// otherwise. The TTL keeps login bursts from hammering the fullnode.
func (s *Server) latestEpoch(ctx context.Context) (uint64, error) {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	if !s.epochAt.IsZero() && s.now().Sub(s.epochAt) < s.cfg.EpochCacheTTL {
		return s.epochValue, nil
	}
	epoch, err := s.ledger.LatestEpoch(ctx)
	if err != nil {
		return 0, err
	}
	s.epochValue = epoch
	s.epochAt = s.now()
	return epoch, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func httpStatusLabel(code int) string {
	return strconv.Itoa(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
