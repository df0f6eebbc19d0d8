package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

func registerRoutes(r *mux.Router, s *Server) {
	registerBaseRoutes(r, s)
	registerTokenRoutes(r, s)
	registerAdminRoutes(r, s)
}

func registerBaseRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/dashboard/info", s.handleDashboardInfo).Methods("GET", "OPTIONS")
	r.HandleFunc("/ws", s.hub.ServeWS).Methods("GET", "OPTIONS")
}

func registerTokenRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/api/tokens", s.handleListTokens).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/tokens/{mint}/metrics", s.handleTokenMetrics).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/tokens/{mint}/holders/top", cachedHandler(5*time.Minute, s.handleTopHolders)).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/tokens/{mint}/history", s.handleHistory).Methods("GET", "OPTIONS")
}

func registerAdminRoutes(r *mux.Router, s *Server) {
	admin := adminAuth(s.adminSecret)
	r.Handle("/admin/tokens/{mint}/ban", admin(http.HandlerFunc(s.handleAdminBan))).Methods("POST", "OPTIONS")
	r.Handle("/admin/tokens/{mint}/purge", admin(http.HandlerFunc(s.handleAdminPurge))).Methods("POST", "OPTIONS")
	r.Handle("/admin/bootstrap", admin(http.HandlerFunc(s.handleAdminBootstrap))).Methods("POST", "OPTIONS")
}
