package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/auth"
	"github.com/smukkama/helmet-monitor/internal/dashboard"
	"github.com/smukkama/helmet-monitor/internal/ingest"
	"github.com/smukkama/helmet-monitor/internal/protocol"
	"github.com/smukkama/helmet-monitor/internal/reading"
	"github.com/smukkama/helmet-monitor/pkg/config"
)

// Response bodies of the ingestion endpoint
const (
	msgDataSaved       = "Data saved"
	msgNoPersonID      = "No person ID provided"
	msgNoData          = "No data received"
	msgFailedToSave    = "Failed to save data"
	msgPersonNotFound  = "Person not found"
	msgFailedToRead    = "Failed to read data"
	shutdownGrace      = 10 * time.Second
	requestIDHeader    = "X-Request-ID"
	defaultMaxBodySize = 1 << 20
)

// HTTPServer accepts helmet readings and serves the dashboard feeds
type HTTPServer struct {
	config    *config.HTTPConfig
	pipeline  *ingest.Pipeline
	dashboard *dashboard.Service
	auth      *auth.Authenticator
	logger    *zap.Logger
	server    *http.Server
	listener  net.Listener
	wg        sync.WaitGroup
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.HTTPConfig, pipeline *ingest.Pipeline, dash *dashboard.Service, authenticator *auth.Authenticator, logger *zap.Logger) *HTTPServer {
	s := &HTTPServer{
		config:    cfg,
		pipeline:  pipeline,
		dashboard: dash,
		auth:      authenticator,
		logger:    logger,
	}
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /data", s.handleIngest)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.Handle("GET /data", s.auth.Middleware(http.HandlerFunc(s.handleReadings)))
	mux.Handle("GET /api/summary", s.auth.Middleware(http.HandlerFunc(s.handleSummary)))
	mux.Handle("GET /api/persons", s.auth.Middleware(http.HandlerFunc(s.handlePersons)))
	mux.Handle("GET /api/persons/{id}", s.auth.Middleware(http.HandlerFunc(s.handlePerson)))
	mux.Handle("GET /api/persons/{id}/readings", s.auth.Middleware(http.HandlerFunc(s.handleHistory)))
	mux.Handle("GET /api/persons/{id}/track", s.auth.Middleware(http.HandlerFunc(s.handleTrack)))

	return s.withRequestID(mux)
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.listener = listener
	s.logger.Info("HTTP server listening", zap.String("addr", addr))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully, letting in-flight requests finish
func (s *HTTPServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	s.wg.Wait()
	s.logger.Info("HTTP server stopped")
}

func (s *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodySize
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		s.logger.Warn("failed to read request body", zap.String("request_id", requestID(r)), zap.Error(err))
		writeError(w, http.StatusBadRequest, msgNoData)
		return
	}

	rd, err := s.pipeline.Ingest(r.Context(), body, protocol.SourceHTTP)
	switch {
	case err == nil:
		s.logger.Debug("reading saved",
			zap.String("request_id", requestID(r)),
			zap.String("person_id", rd.PersonID))
		writeJSON(w, http.StatusOK, map[string]string{"message": msgDataSaved})
	case errors.Is(err, reading.ErrNoData):
		writeError(w, http.StatusBadRequest, msgNoData)
	case errors.Is(err, reading.ErrMissingIdentifier):
		writeError(w, http.StatusBadRequest, msgNoPersonID)
	default:
		s.logger.Error("failed to save reading", zap.String("request_id", requestID(r)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgFailedToSave)
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := s.dashboard.Readings(r.Context())
	s.respond(w, r, readings, err)
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	overview, err := s.dashboard.Overview(r.Context())
	s.respond(w, r, overview, err)
}

func (s *HTTPServer) handlePersons(w http.ResponseWriter, r *http.Request) {
	persons, err := s.dashboard.Persons(r.Context())
	s.respond(w, r, persons, err)
}

func (s *HTTPServer) handlePerson(w http.ResponseWriter, r *http.Request) {
	detail, err := s.dashboard.Person(r.Context(), r.PathValue("id"))
	s.respond(w, r, detail, err)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.dashboard.History(r.Context(), r.PathValue("id"))
	s.respond(w, r, history, err)
}

func (s *HTTPServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	track, err := s.dashboard.Track(r.Context(), r.PathValue("id"))
	s.respond(w, r, track, err)
}

// respond writes a dashboard feed. Feeds are only mounted behind the
// authenticator, so every request here carries a principal.
func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request, v interface{}, err error) {
	principal, _ := auth.FromContext(r.Context())

	switch {
	case err == nil:
		s.logger.Debug("dashboard feed served",
			zap.String("request_id", requestID(r)),
			zap.String("path", r.URL.Path),
			zap.String("user", principal.Username))
		writeJSON(w, http.StatusOK, v)
	case errors.Is(err, dashboard.ErrPersonNotFound):
		writeError(w, http.StatusNotFound, msgPersonNotFound)
	default:
		s.logger.Error("dashboard request failed",
			zap.String("request_id", requestID(r)),
			zap.String("path", r.URL.Path),
			zap.String("user", principal.Username),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgFailedToRead)
	}
}

type requestIDKey struct{}

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
