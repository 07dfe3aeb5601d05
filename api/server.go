package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/wricardo/bridge/bridge/service"
	"github.com/wricardo/bridge/logger"
)

// RequestIDHeader carries the per-request correlation ID
const RequestIDHeader = "X-Request-ID"

// Server represents the management REST API server
type Server struct {
	service service.BridgeService
	router  *mux.Router
	log     *logger.Logger
}

// NewServer creates a new API server. metrics is served at /metrics when
// non-nil.
func NewServer(bridge service.BridgeService, metrics http.Handler) *Server {
	s := &Server{
		service: bridge,
		router:  mux.NewRouter(),
		log:     logger.Global().WithPrefix("api"),
	}

	s.setupRoutes(metrics)
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.Use(s.requestID, s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()

	// Status
	api.HandleFunc("/status", s.handleServerStatus).Methods("GET")
	api.HandleFunc("/clients", s.handleClientList).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	// Lifecycle
	api.HandleFunc("/start", s.handleStart).Methods("POST")
	api.HandleFunc("/restart", s.handleRestart).Methods("POST")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods("GET")
	}
}

// Handle mounts an additional handler, such as the MCP endpoint
func (s *Server) Handle(path string, h http.Handler) {
	s.router.Handle(path, h)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Middleware

// requestID propagates the caller's X-Request-ID or assigns a new one
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("%s %s (%s) request_id=%s", r.Method, r.URL.Path, time.Since(start), r.Header.Get(RequestIDHeader))
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Status Handlers

func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.ServerStatus())
}

func (s *Server) handleClientList(w http.ResponseWriter, r *http.Request) {
	clients := s.service.ClientStatusList()
	total := len(clients)

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(clients) {
			clients = clients[:limit]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(clients),
		"total":   total,
		"clients": clients,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.Stats())
}

// Lifecycle Handlers

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.log.Info("Start requested (request_id=%s)", r.Header.Get(RequestIDHeader))
	s.service.Start()
	s.respondLifecycle(w)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "unspecified"
	}
	s.log.Info("Restart requested: %s (request_id=%s)", reason, r.Header.Get(RequestIDHeader))
	s.service.Restart()
	s.respondLifecycle(w)
}

// respondLifecycle reports the status after a lifecycle call. A failed bind
// is not a request error; the status shows active=false.
func (s *Server) respondLifecycle(w http.ResponseWriter) {
	status := s.service.ServerStatus()
	if !status.Active {
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"active": s.service.IsActive(),
		"state":  s.service.State().String(),
	})
}
