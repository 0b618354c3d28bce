// Package api provides the HTTP server for GridMesh.
// It exposes the node's marketplace state: known task advertisements,
// results awaiting delivery, trust scores, and the payment ledger.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridmesh-network/gridmesh/internal/app/payment"
	"github.com/gridmesh-network/gridmesh/internal/app/reputation"
	"github.com/gridmesh-network/gridmesh/internal/health"
	"github.com/gridmesh-network/gridmesh/internal/infra/delivery"
	"github.com/gridmesh-network/gridmesh/internal/infra/registry"
	"github.com/gridmesh-network/gridmesh/internal/infra/session"
)

// Server is the GridMesh HTTP API server.
type Server struct {
	nodeID         string
	version        string
	coordinator    *session.Coordinator
	registry       *registry.Registry
	results        *delivery.Queue
	payments       *payment.Service
	reputation     *reputation.Store
	checker        *health.Checker
	metricsEnabled bool
	startedAt      time.Time
}

// NewServer creates a new API server.
func NewServer(nodeID, version string, coord *session.Coordinator, reg *registry.Registry,
	results *delivery.Queue, pay *payment.Service, rep *reputation.Store, checker *health.Checker) *Server {
	return &Server{
		nodeID:      nodeID,
		version:     version,
		coordinator: coord,
		registry:    reg,
		results:     results,
		payments:    pay,
		reputation:  rep,
		checker:     checker,
		startedAt:   time.Now(),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/tasks", s.handleTasks)
		r.Get("/results", s.handleResults)
		r.Get("/trust/{peer}", s.handleTrust)
		r.Get("/messages", s.handleMessages)
		r.Get("/ledger", s.handleLedger)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "ok"
	if s.checker != nil && !s.checker.IsHealthy() {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	var checks []health.Status
	if s.checker != nil {
		checks = s.checker.Statuses()
	}
	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	balance, err := s.payments.Balance()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node_id":          s.nodeID,
		"version":          s.version,
		"uptime_seconds":   int(time.Since(s.startedAt).Seconds()),
		"registry":         s.registry.Stats(),
		"results_pending":  s.results.Len(),
		"payments_pending": s.payments.PendingCount(),
		"balance":          balance,
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": s.coordinator.ListKnownTasks(),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": s.results.Pending(),
	})
}

func (s *Server) handleTrust(w http.ResponseWriter, r *http.Request) {
	peer := chi.URLParam(r, "peer")
	scores, err := s.reputation.Scores(peer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peer_id": peer,
		"scores":  scores,
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": s.coordinator.LastMessages(),
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.payments.History(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
