package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"arriendo/internal/config"
	"arriendo/internal/database"
	"arriendo/internal/export"
	"arriendo/internal/models"
	"arriendo/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

// HealthChecker reports whether the storage behind the API is reachable.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HTTPServer exposes the availability and visits endpoints.
type HTTPServer struct {
	cfg    config.ServerConfig
	svc    *service.VisitService
	health HealthChecker
	server *http.Server
	auth   *HTTPAuth
	logger zerolog.Logger
}

func NewHTTPServer(cfg config.ServerConfig, svc *service.VisitService, health HealthChecker, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, svc: svc, health: health, logger: zerolog.Nop()}
	if logger != nil {
		srv.logger = logger.With().Str("component", "http").Logger()
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/availability", srv.handleAvailability)
	mux.HandleFunc("/api/visits", srv.handleVisits)
	mux.HandleFunc("/api/visits/export", srv.handleExport)
	mux.HandleFunc("/healthz", srv.handleHealthz)

	handler := loggingMiddleware(srv.logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	q := r.URL.Query()
	listingID := strings.TrimSpace(q.Get("listingId"))
	if listingID == "" {
		writeError(w, http.StatusBadRequest, "listingId is required", "")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("start")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected RFC 3339", "")
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("end")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end; expected RFC 3339", "")
		return
	}

	resp, err := s.svc.GetAvailability(r.Context(), listingID, start, end)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleVisits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req models.CreateVisitRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	if strings.TrimSpace(req.ListingID) == "" {
		writeError(w, http.StatusBadRequest, "listingId is required", "")
		return
	}

	key := strings.TrimSpace(r.Header.Get(models.IdempotencyHeader))
	resp, replayed, err := s.svc.CreateVisit(r.Context(), req, key)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	listingID := strings.TrimSpace(r.URL.Query().Get("listingId"))
	visits, err := s.svc.ListVisits(r.Context(), listingID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	name := listingID
	if name == "" {
		name = "todas"
	}
	fileName := fmt.Sprintf("visitas_%s_%s.xlsx", name, time.Now().In(s.svc.Location()).Format("2006-01-02"))

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if err := export.WriteVisits(w, visits, s.svc.Location()); err != nil {
		s.logger.Error().Err(err).Msg("export visits")
	}
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.PingContext(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable", "")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	if re, ok := service.AsRuleError(err); ok {
		status := http.StatusBadRequest
		if re.Code == models.CodeSlotUnavailable {
			status = http.StatusConflict
		}
		writeError(w, status, re.Message, re.Code)
		return
	}

	switch {
	case errors.Is(err, database.ErrListingNotFound):
		writeError(w, http.StatusNotFound, "listing not found", "")
	case errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrMissingIdempotencyKey),
		errors.Is(err, service.ErrMissingSlot):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	writeJSON(w, statusCode, models.ErrorResponse{Error: message, Code: code})
}
