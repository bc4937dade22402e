// Package server exposes the explanation services over HTTP. Every endpoint
// wraps its body in a catch-all boundary: any failure becomes a JSON object
// with an "error" field and a status from the error taxonomy, never an
// unstructured response.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/hranalytics/explaind/internal/api"
	"github.com/hranalytics/explaind/internal/background"
	"github.com/hranalytics/explaind/internal/explain"
	"github.com/hranalytics/explaind/internal/metrics"
	"github.com/hranalytics/explaind/internal/model"
	"github.com/hranalytics/explaind/pkg/otel"
)

const tracerName = "explaind/server"

// Server routes explanation requests to the underlying services.
type Server struct {
	comps     *model.Components
	global    *explain.GlobalService
	local     *explain.LocalService
	surrogate *explain.SurrogateService
	cf        *explain.CounterfactualService
	metrics   *metrics.Metrics
	limiter   *rate.Limiter

	MetricsAuth struct {
		Enabled  bool
		User     string
		Password string
	}
}

// New creates a server over the injected services.
func New(comps *model.Components, global *explain.GlobalService, local *explain.LocalService,
	surrogate *explain.SurrogateService, cf *explain.CounterfactualService,
	m *metrics.Metrics, limiter *rate.Limiter) *Server {
	return &Server{
		comps:     comps,
		global:    global,
		local:     local,
		surrogate: surrogate,
		cf:        cf,
		metrics:   m,
		limiter:   limiter,
	}
}

// Routes returns the HTTP mux with all endpoints registered.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/explain/global", s.guard("/explain/global", s.handleGlobal))
	mux.HandleFunc("/explain/local", s.guard("/explain/local", s.handleLocal))
	mux.HandleFunc("/explain/lime", s.guard("/explain/lime", s.handleLime))
	mux.HandleFunc("/explain/cf", s.guard("/explain/cf", s.handleCounterfactual))
	mux.HandleFunc("/model/info", s.guard("/model/info", s.handleModelInfo))
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", s.metricsHandler())
	return mux
}

// explainRequest is the body of every POST explanation endpoint.
type explainRequest struct {
	Input  map[string]float64 `json:"input"`
	Target *float64           `json:"target,omitempty"`
}

// guard applies rate limiting, request metrics and panic recovery around a
// handler. A panic is converted to a JSON error payload, never a crash.
func (s *Server) guard(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "10")
			s.writeError(w, endpoint, http.StatusTooManyRequests, "Too many requests")
			return
		}

		s.metrics.RequestsTotal.WithLabelValues(endpoint).Inc()
		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("Panic in %s: %v", endpoint, rec)
				s.writeError(w, endpoint, http.StatusInternalServerError, fmt.Sprint(rec))
			}
			s.metrics.LatencyMs.WithLabelValues(endpoint).Observe(float64(time.Since(start).Milliseconds()))
		}()

		h(w, r)
	}
}

func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, "/explain/global", http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, span := otel.StartSpan(r.Context(), tracerName, "explain.global")
	defer span.End()

	result, err := s.global.Explain(ctx)
	if err != nil {
		otel.RecordError(span, err, "global explanation failed")
		s.writeError(w, "/explain/global", s.statusFor("/explain/global", err), err.Error())
		return
	}

	span.SetAttributes(otel.AttrCacheHit.Bool(result.Cached), otel.AttrSampleSize.Int(result.SampleSize))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLocal(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(r)
	if err != nil {
		s.writeError(w, "/explain/local", s.statusFor("/explain/local", err), err.Error())
		return
	}

	ctx, span := otel.StartSpan(r.Context(), tracerName, "explain.local")
	defer span.End()

	result, err := s.local.Explain(ctx, req.Input)
	if err != nil {
		otel.RecordError(span, err, "local attribution failed")
		s.writeError(w, "/explain/local", s.statusFor("/explain/local", err), err.Error())
		return
	}

	span.SetAttributes(otel.AttrPrediction.Float64(result.Prediction))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLime(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(r)
	if err != nil {
		s.writeError(w, "/explain/lime", s.statusFor("/explain/lime", err), err.Error())
		return
	}

	ctx, span := otel.StartSpan(r.Context(), tracerName, "explain.lime")
	defer span.End()

	result, err := s.surrogate.Explain(ctx, req.Input)
	if err != nil {
		otel.RecordError(span, err, "surrogate explanation failed")
		s.writeError(w, "/explain/lime", s.statusFor("/explain/lime", err), err.Error())
		return
	}

	span.SetAttributes(otel.AttrPrediction.Float64(result.Prediction))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCounterfactual(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(r)
	if err != nil {
		s.writeError(w, "/explain/cf", s.statusFor("/explain/cf", err), err.Error())
		return
	}

	targetFactor := explain.DefaultTargetFactor
	if req.Target != nil {
		targetFactor = *req.Target
	}

	ctx, span := otel.StartSpan(r.Context(), tracerName, "explain.counterfactual")
	defer span.End()

	result, err := s.cf.Explain(ctx, req.Input, targetFactor)
	if err != nil {
		otel.RecordError(span, err, "counterfactual search failed")
		s.writeError(w, "/explain/cf", s.statusFor("/explain/cf", err), err.Error())
		return
	}

	span.SetAttributes(
		otel.AttrPrediction.Float64(result.OriginalPrediction),
		otel.AttrCandidates.Int(len(result.Candidates)),
	)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, "/model/info", http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if !s.comps.Ready() {
		s.writeError(w, "/model/info", http.StatusInternalServerError, api.ErrModelUnavailable.Error())
		return
	}

	writeJSON(w, http.StatusOK, &api.ModelInfo{
		ModelVersion:      s.comps.Model.Version(),
		FeatureCount:      len(s.comps.Schema),
		LinearAttribution: s.comps.LinearAttribution(),
	})
}

// decodeRequest parses a POST body and enforces the "input" field contract.
func (s *Server) decodeRequest(r *http.Request) (*explainRequest, error) {
	if r.Method != http.MethodPost {
		return nil, &api.RequestError{Message: "Method not allowed"}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, &api.RequestError{Message: "Failed to read body"}
	}

	var req explainRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &api.RequestError{Message: "Invalid JSON"}
	}

	if req.Input == nil {
		return nil, api.ErrMissingInput
	}

	return &req, nil
}

// statusFor maps an error onto the endpoint's status code. Dependency and
// attribution failures are server-side; everything else on an input-driven
// endpoint is treated as a client error since malformed input is the common
// cause. The parameterless global endpoint reports 500 for all failures.
func (s *Server) statusFor(endpoint string, err error) int {
	switch {
	case errors.Is(err, api.ErrModelUnavailable),
		errors.Is(err, api.ErrAttributionUnavailable),
		errors.Is(err, background.ErrUnavailable):
		return http.StatusInternalServerError
	case api.IsClientError(err):
		return http.StatusBadRequest
	case endpoint == "/explain/global":
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, status int, msg string) {
	s.metrics.ErrorsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", status)).Inc()
	writeJSON(w, status, &api.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// metricsHandler serves Prometheus metrics, optionally behind basic auth.
func (s *Server) metricsHandler() http.Handler {
	handler := promhttp.Handler()

	if !s.MetricsAuth.Enabled {
		return handler
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.MetricsAuth.User || pass != s.MetricsAuth.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
