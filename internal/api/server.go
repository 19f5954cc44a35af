package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/country-directory/internal/config"
	"github.com/JakeFAU/country-directory/internal/country"
	"github.com/JakeFAU/country-directory/internal/logging"
	"github.com/JakeFAU/country-directory/internal/metrics"
)

// requestSlack is added to the lookup budget so the orchestrator, not the
// HTTP timeout, answers slow lookups.
const requestSlack = 5 * time.Second

// Lookuper answers country queries.
type Lookuper interface {
	Lookup(ctx context.Context, q country.Query) ([]country.Record, error)
}

// ReadinessFunc reports whether the service can accept lookups.
type ReadinessFunc func() error

// Server wires HTTP handlers to the lookup orchestrator.
type Server struct {
	router chi.Router
	lookup Lookuper
	ready  ReadinessFunc
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. A nil ready
// function reports the service as always ready.
func NewServer(lookup Lookuper, ready ReadinessFunc, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		lookup: lookup,
		ready:  ready,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(logger))
	r.Use(loggingMiddleware)
	r.Use(recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.LookupTimeout() + requestSlack))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/countries", s.getCountries)
	r.Get("/countries/", s.getCountries)

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
	if s.ready != nil {
		if err := s.ready(); err != nil {
			logging.FromContext(r.Context(), s.logger).Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getCountries(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), s.logger)
	records, err := s.lookup.Lookup(r.Context(), queryFromRequest(r))
	if err != nil {
		var failure *country.Failure
		if !errors.As(err, &failure) {
			logger.Error("lookup failed", zap.Error(err))
			failure = country.InternalError(country.MsgUnexpected)
		} else if failure.Status >= http.StatusInternalServerError {
			logger.Warn("lookup failed", zap.Int("status", failure.Status), zap.String("detail", failure.Message))
		}
		writeFailure(w, failure)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// queryFromRequest maps recognized query parameters onto a Query. A
// parameter that is present but empty is kept so the selector can judge it.
func queryFromRequest(r *http.Request) country.Query {
	values := r.URL.Query()
	param := func(name country.Field) *string {
		if !values.Has(string(name)) {
			return nil
		}
		v := values.Get(string(name))
		return &v
	}
	return country.Query{
		Name:      param(country.FieldName),
		Capital:   param(country.FieldCapital),
		Region:    param(country.FieldRegion),
		Subregion: param(country.FieldSubregion),
		Language:  param(country.FieldLanguage),
		Currency:  param(country.FieldCurrency),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeFailure(w http.ResponseWriter, failure *country.Failure) {
	writeJSON(w, failure.Status, failure)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeFailure(w, &country.Failure{Status: status, Message: msg})
}
