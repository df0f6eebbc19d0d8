// Package api implements the Read API (§4.J) and the HTTP half of the
// Control Plane (§4.K): gorilla/mux routing grouped the way the
// teacher's routes_registration.go groups register*Routes(r, s) calls,
// the teacher's commonMiddleware (CORS + OPTIONS short-circuit) and
// rateLimitMiddleware (kept from the teacher, internal/api/ratelimit.go)
// applied globally, and the teacher's responseCache
// (internal/api/response_cache.go) reused for the 5-minute top-holders
// cache named by §4.J.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"splpulse/internal/models"
)

// priceReader is the subset of the Persistent Store the Read API needs.
type priceReader interface {
	ListLatest(ctx context.Context, pageOffset, pageLimit int) ([]models.LatestState, int, error)
	HistoryInRange(ctx context.Context, mint string, from, to time.Time, cap int) ([]models.HistoryEntry, error)
}

// pricer is the subset of the Pricing Engine the Read API needs.
type pricer interface {
	CurrentOf(ctx context.Context, mint string) (*models.PriceSnapshot, error)
	UpdateMint(ctx context.Context, mint string) (models.PriceSnapshot, error)
}

// holderReader is the subset of the Chain Adapter the Read API needs.
type holderReader interface {
	ReadTopHolders(ctx context.Context, mint string, limit int) ([]models.HolderBalance, error)
}

// riskReader is the subset of the Risk Scorer the Read API needs.
type riskReader interface {
	Report(ctx context.Context, mint string) (*models.RiskReport, error)
}

// jobController is the subset of the Scheduler the Control Plane's
// /admin surface needs.
type jobController interface {
	Enrol(ctx context.Context, mint string) error
	BanAndRemove(ctx context.Context, mint string)
	Bootstrap(ctx context.Context) error
}

// wsServer is the subset of the Broadcast Hub the /ws route needs.
type wsServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// healthChecker is the subset of the Persistent Store used by /health.
type healthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the Read API / Control Plane HTTP server.
type Server struct {
	repo   priceReader
	db     healthChecker
	eng    pricer
	holder holderReader
	risk   riskReader
	jobs   jobController
	hub    wsServer

	adminSecret string
	startedAt   time.Time
	httpServer  *http.Server
}

// NewServer builds the mux router, applies middleware, and wraps it in
// an http.Server bound to port (§6.1, §6.2).
func NewServer(repo priceReader, db healthChecker, eng pricer, holder holderReader, risk riskReader, jobs jobController, hub wsServer, adminSecret, port string) *Server {
	s := &Server{
		repo:        repo,
		db:          db,
		eng:         eng,
		holder:      holder,
		risk:        risk,
		jobs:        jobs,
		hub:         hub,
		adminSecret: adminSecret,
		startedAt:   time.Now(),
	}

	r := mux.NewRouter()
	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)
	registerRoutes(r, s)

	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	return s
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth implements §6.1 /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	database := "up"
	if err := s.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"database":  database,
		"redis":     "up",
	})
}

// handleDashboardInfo implements §6.1 /dashboard/info: a static manifest.
func (s *Server) handleDashboardInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "splpulse",
		"version":   "1.0.0",
		"uptime":    time.Since(s.startedAt).String(),
		"endpoints": []string{"/api/tokens", "/api/tokens/:mint/metrics", "/api/tokens/:mint/holders/top", "/api/tokens/:mint/history", "/ws"},
	})
}
