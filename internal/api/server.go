package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/config"
	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
)

const (
	maxEventBody   = 64 << 10
	enqueueTimeout = 5 * time.Second
	requestTimeout = 30 * time.Second
)

// Enqueuer accepts trigger events for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev enrich.Event) error
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the record store and event queue.
type Server struct {
	router chi.Router
	store  enrich.RecordStore
	events Enqueuer
	checks []ReadinessCheck
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store enrich.RecordStore,
	events Enqueuer,
	auth config.AuthConfig,
	logger *zap.Logger,
	checks ...ReadinessCheck,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  store,
		events: events,
		checks: checks,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if auth.Enabled {
			r.Use(apiKeyMiddleware(auth.APIKey))
		}
		r.Post("/events/record-created", s.recordCreated)
		r.Get("/records/{id}", s.getRecord)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.checks {
		if err := check(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) recordCreated(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	ev, err := enrich.DecodeEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	if err := s.events.Enqueue(ctx, ev); err != nil {
		s.logger.Warn("enqueue failed", zap.String("record_id", ev.RecordID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"recordId": ev.RecordID, "status": "queued"})
}

// recordView is the pipeline's observable output surface for one record.
type recordView struct {
	ID               string           `json:"id"`
	SourceURL        string           `json:"sourceUrl"`
	SourceType       string           `json:"sourceType,omitempty"`
	SourceID         string           `json:"sourceId,omitempty"`
	MetadataStatus   enrich.Status    `json:"metadataStatus"`
	EnrichmentFailed bool             `json:"enrichmentFailed"`
	EnrichmentError  string           `json:"enrichmentError,omitempty"`
	Metadata         *enrich.Metadata `json:"metadata,omitempty"`
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, enrich.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		s.logger.Error("read record failed", zap.String("record_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read record")
		return
	}
	writeJSON(w, http.StatusOK, recordView{
		ID:               rec.ID,
		SourceURL:        rec.SourceURL,
		SourceType:       rec.SourceType,
		SourceID:         rec.SourceID,
		MetadataStatus:   rec.MetadataStatus,
		EnrichmentFailed: rec.EnrichmentFailed,
		EnrichmentError:  rec.EnrichmentError,
		Metadata:         rec.Metadata,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
