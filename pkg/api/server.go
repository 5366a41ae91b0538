// Package api serves stored estimators and their structure factors over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iglpdc/dmrg-helpers/pkg/analyze"
	"github.com/iglpdc/dmrg-helpers/pkg/estimator"
	"github.com/iglpdc/dmrg-helpers/pkg/storage"
	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

// Names of the structure factors computed from several estimators.
const (
	SpinStructureFactor   = "spin"
	ChargeStructureFactor = "charge"
)

// Options configures the server.
type Options struct {
	Timeout        time.Duration
	ChainLengthKey string
	Spin           analyze.SpinOperators
	Density        analyze.DensityOperators
	Logger         *slog.Logger
}

// Server implements the HTTP API server
type Server struct {
	store  storage.Store
	addr   string
	opts   Options
	logger *slog.Logger
	server *http.Server
}

// NewServer creates a new API server
func NewServer(addr string, store storage.Store, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Spin == (analyze.SpinOperators{}) {
		opts.Spin = analyze.DefaultSpinOperators()
	}
	if opts.Density == (analyze.DensityOperators{}) {
		opts.Density = analyze.DefaultDensityOperators()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  store,
		addr:   addr,
		opts:   opts,
		logger: logger,
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/observables", s.handleObservables)
	mux.HandleFunc("GET /api/v1/estimator", s.handleEstimator)
	mux.HandleFunc("GET /api/v1/structure-factor", s.handleStructureFactor)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.Timeout,
		WriteTimeout: s.opts.Timeout,
	}

	s.logger.Info("api server listening", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// ObservableInfo describes one stored observable.
type ObservableInfo struct {
	Name string   `json:"name"`
	Runs []string `json:"runs"`
}

// ObservablesResponse is the body of /api/v1/observables.
type ObservablesResponse struct {
	FingerprintKeys string           `json:"fingerprint_keys"`
	Observables     []ObservableInfo `json:"observables"`
}

// RunResponse holds the samples of one run.
type RunResponse struct {
	Fingerprint string            `json:"fingerprint"`
	Metadata    map[string]string `json:"metadata"`
	Sites       [][]int           `json:"sites"`
	Values      []float64         `json:"values"`
}

// EstimatorResponse is the body of /api/v1/estimator.
type EstimatorResponse struct {
	Name            string        `json:"name"`
	FingerprintKeys string        `json:"fingerprint_keys"`
	Runs            []RunResponse `json:"runs"`
}

// handleObservables lists every stored observable with its runs
func (s *Server) handleObservables(w http.ResponseWriter, r *http.Request) {
	resp := ObservablesResponse{
		FingerprintKeys: s.store.FingerprintKeys(),
		Observables:     []ObservableInfo{},
	}
	for _, name := range s.store.Observables() {
		resp.Observables = append(resp.Observables, ObservableInfo{
			Name: name.String(),
			Runs: s.store.Runs(name),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEstimator returns every run of one estimator
func (s *Server) handleEstimator(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name parameter")
		return
	}

	a, err := estimator.Query(r.Context(), s.store, name)
	if err != nil {
		s.fail(w, err)
		return
	}
	if a.Len() == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no estimator %s", name))
		return
	}

	resp := EstimatorResponse{
		Name:            a.Name().String(),
		FingerprintKeys: a.FingerprintKeys(),
	}
	for _, fp := range a.Runs() {
		run, _ := a.Run(fp)
		meta, err := a.MetadataFor(fp)
		if err != nil {
			s.fail(w, err)
			return
		}
		sites := make([][]int, len(run.Sites))
		for i, t := range run.Sites {
			sites[i] = t
		}
		resp.Runs = append(resp.Runs, RunResponse{
			Fingerprint: fp,
			Metadata:    meta,
			Sites:       sites,
			Values:      run.Values,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStructureFactor transforms a two-point estimator, or computes the
// spin or charge structure factor
func (s *Server) handleStructureFactor(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name parameter")
		return
	}
	key := r.URL.Query().Get("chain_length_key")
	if key == "" {
		key = s.opts.ChainLengthKey
	}
	resolver := analyze.ResolverFor(key, s.store.FingerprintKeys())
	ctx := r.Context()

	var (
		series types.NamedSeries
		err    error
	)
	switch name {
	case SpinStructureFactor:
		var sf *analyze.StructureFactor
		sf, err = analyze.SpinStructureFactor(ctx, s.store, s.opts.Spin, resolver, s.logger)
		if err == nil {
			series = sf.Named()
		}
	case ChargeStructureFactor:
		var sf *analyze.StructureFactor
		sf, err = analyze.DensityStructureFactor(ctx, s.store, s.opts.Density, resolver)
		if err == nil {
			series = sf.Named()
		}
	default:
		var a *estimator.Aggregate
		a, err = estimator.Query(ctx, s.store, name)
		if err == nil && a.Len() == 0 {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no estimator %s", name))
			return
		}
		if err == nil {
			var runs map[string]types.XYSeries
			runs, err = analyze.TransformAll(a, resolver)
			series = types.NamedSeries{Name: a.Name().String(), FingerprintKeys: a.FingerprintKeys(), Runs: runs}
		}
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, series)
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status string        `json:"status"`
	Store  storage.Stats `json:"store"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Store:  s.store.Stats(),
	})
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, analyze.ErrNotTwoPoint),
		errors.Is(err, analyze.ErrInvalidChainLength),
		errors.Is(err, analyze.ErrMissingSite),
		errors.Is(err, estimator.ErrMetadataArityMismatch),
		errors.Is(err, estimator.ErrEmptyRun):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, analyze.ErrNoEstimators):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
