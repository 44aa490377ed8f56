// Package httpserver is the trigger boundary: it validates request shapes
// and hands accepted work to the pipeline, which runs asynchronously.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/blackmichael/tiktok-archiver/internal/config"
	"github.com/blackmichael/tiktok-archiver/internal/domain"
)

// Ingestor starts a discovery ingestion run.
type Ingestor interface {
	Ingest(ctx context.Context, profileURL string, spec domain.DiscoveryJobSpec) error
}

// Archiver builds a profile's archive.
type Archiver interface {
	Archive(ctx context.Context, profileID string) error
}

// Server is the HTTP server exposing the pipeline's trigger endpoints.
type Server struct {
	ingestor   Ingestor
	archiver   Archiver
	store      domain.RecordStore
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server wired to the pipeline services.
func NewServer(cfg *config.Config, ingestor Ingestor, archiver Archiver, store domain.RecordStore, logger *slog.Logger) *Server {
	s := &Server{
		ingestor: ingestor,
		archiver: archiver,
		store:    store,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/scrapes", s.handleScrape)
	mux.HandleFunc("POST /v1/profiles/{id}/archive", s.handleArchive)
	mux.HandleFunc("GET /v1/profiles/{id}/content", s.handleListContent)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScrape validates the discovery job spec's shape and accepts the run.
// Acceptance is all the caller learns here; terminal failures surface on the
// content records themselves.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var spec domain.DiscoveryJobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}

	if len(spec.Profiles) == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "at least one profile is required")
		return
	}
	if spec.ResultsPerPage == 0 {
		spec.ResultsPerPage = 100
	}
	if spec.MaxProfilesPerQuery == 0 {
		spec.MaxProfilesPerQuery = 10
	}

	profileURL := spec.Profiles[0]
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.ingestor.Ingest(ctx, profileURL, spec); err != nil {
			s.logger.Error("ingestion run failed", "profile", profileURL, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	profileID := r.PathValue("id")

	if _, err := s.store.GetProfile(r.Context(), profileID); err != nil {
		writeError(w, http.StatusNotFound, "NotFound", "unknown profile")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.archiver.Archive(ctx, profileID); err != nil {
			s.logger.Error("archive run failed", "profile_id", profileID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	profileID := r.PathValue("id")

	records, err := s.store.ListContentByProfile(r.Context(), profileID)
	if err != nil {
		s.logger.Error("failed to list content records", "profile_id", profileID, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list content records")
		return
	}

	resp := make([]map[string]any, len(records))
	for i, rec := range records {
		resp[i] = map[string]any{
			"id":         rec.ID,
			"author":     rec.Author,
			"source_url": rec.SourceURL,
			"status":     rec.Status,
			"created_at": rec.CreatedAt,
			"updated_at": rec.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": resp})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
