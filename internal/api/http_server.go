package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"recolha/internal/config"
	"recolha/internal/domain"
	"recolha/internal/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking service to citizens and staff.
type HTTPServer struct {
	cfg       config.APIConfig
	service   domain.BookingService
	directory domain.MunicipalityDirectory
	validate  *validator.Validate
	health    func(ctx context.Context) error
	server    *http.Server
	logger    *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	service domain.BookingService,
	directory domain.MunicipalityDirectory,
	logger *zerolog.Logger,
) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:       cfg,
		service:   service,
		directory: directory,
		validate:  newValidator(),
		logger:    logger,
	}

	srv.handle(mux, "POST /api/bookings", srv.handleBook)
	srv.handle(mux, "GET /api/bookings/{token}", srv.handleCheck)
	srv.handle(mux, "DELETE /api/bookings/{token}", srv.handleCancel)
	srv.handle(mux, "PATCH /api/bookings/{token}/state", srv.handleChangeState)
	srv.handle(mux, "GET /api/bookings/state/{state}", srv.handleByState)
	srv.handle(mux, "GET /api/staff/bookings", srv.handleAll)
	srv.handle(mux, "GET /api/staff/bookings/export", srv.handleExport)
	srv.handle(mux, "DELETE /api/staff/bookings/{token}", srv.handleRemove)
	srv.handle(mux, "GET /api/municipalities", srv.handleMunicipalities)
	srv.handle(mux, "GET /api/municipalities/{name}", srv.handleByMunicipality)
	srv.handle(mux, "GET /healthz", srv.handleHealth)

	limiter := newRateLimiter(cfg.RateLimit)
	handler := loggingMiddleware(logger, corsMiddleware(cfg.CORS, limiter.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// handle registers fn under pattern and counts requests per pattern.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		fn(w, r)
	})
}

// SetHealthCheck makes /healthz report 503 while check fails.
func (s *HTTPServer) SetHealthCheck(check func(ctx context.Context) error) {
	s.health = check
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
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func corsMiddleware(cfg config.APICORSConfig, next http.Handler) http.Handler {
	origin := cfg.AllowOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
