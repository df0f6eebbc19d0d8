package api

import (
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

// adminAuth gates /admin routes behind a Bearer JWT signed with secret,
// adapted from the teacher's internal/webhooks/auth.go AuthMiddleware
// (HMAC-only, sub-claim-required Parse). An empty secret disables the
// control surface entirely rather than admitting unauthenticated
// requests, since this service has no operator-account store to check a
// sub claim against.
func adminAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if secret == "" {
				writeAPIError(w, http.StatusServiceUnavailable, "admin control surface is disabled")
				return
			}

			tokenStr := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
			if tokenStr == "" {
				writeAPIError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			_, err := jwtlib.Parse(tokenStr, func(t *jwtlib.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil {
				writeAPIError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// handleAdminBan forces a mint through §4.H banAndRemove (supplemented
// manual admin control surface).
func (s *Server) handleAdminBan(w http.ResponseWriter, r *http.Request) {
	mint := mux.Vars(r)["mint"]
	s.jobs.BanAndRemove(r.Context(), mint)
	writeJSON(w, http.StatusOK, map[string]string{"mint": mint, "status": "banned"})
}

// handleAdminPurge removes a mint's persisted state and re-enrols it,
// letting an operator force a clean restart for one mint.
func (s *Server) handleAdminPurge(w http.ResponseWriter, r *http.Request) {
	mint := mux.Vars(r)["mint"]
	if err := s.jobs.Enrol(r.Context(), mint); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mint": mint, "status": "re-enrolled"})
}

// handleAdminBootstrap re-runs the Scheduler's process-start
// reconciliation on demand.
func (s *Server) handleAdminBootstrap(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Bootstrap(r.Context()); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "bootstrapped"})
}
