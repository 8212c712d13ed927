// Package health serves liveness, readiness and metrics endpoints for krx-quant serve.
// Readiness covers the configured dependencies (database, market data provider and
// cache) and the freshness of the scheduled market scan.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const checkTimeout = 3 * time.Second

// Check reports whether one dependency is reachable
type Check func(ctx context.Context) error

// ScanStatus is the source of scheduled scan state, normally the scheduler
type ScanStatus interface {
	// LastScan returns the time and result count of the last successful scan and
	// the error of the most recent attempt
	LastScan() (at time.Time, results int, err error)
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
}

// ScanReport summarizes the last scheduled scan
type ScanReport struct {
	Status  string `json:"status"`
	At      string `json:"at,omitempty"`
	Results int    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// ReadyResponse is the /ready body
type ReadyResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Checks   map[string]string `json:"checks"`
	Scan     *ScanReport       `json:"scan,omitempty"`
	Duration string            `json:"duration"`
}

// Config holds the server settings. Checks are keyed by dependency name. A nil Scan
// omits the scan report; MaxScanAge of zero never marks a scan stale. A nil
// MetricsHandler disables the metrics route.
type Config struct {
	ServiceName    string
	Version        string
	Commit         string
	Port           string
	Logger         *logrus.Logger
	Checks         map[string]Check
	Scan           ScanStatus
	MaxScanAge     time.Duration
	MetricsHandler http.Handler
	MetricsPath    string
}

// Server exposes health state over HTTP
type Server struct {
	cfg    Config
	logger *logrus.Entry
	now    func() time.Time

	mu    sync.RWMutex
	ready bool
}

// NewServer creates a server that reports not ready until SetReady(true)
func NewServer(cfg Config) *Server {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		cfg:    cfg,
		logger: log.WithFields(logrus.Fields{"component": "health", "port": cfg.Port}),
		now:    time.Now,
	}
}

// SetReady marks the service as accepting work
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// IsReady reports the flag set by SetReady
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	if s.cfg.MetricsHandler != nil {
		mux.Handle(s.cfg.MetricsPath, s.cfg.MetricsHandler)
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Health server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Health server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.cfg.ServiceName,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Version:   s.cfg.Version,
		Commit:    s.cfg.Commit,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	resp := ReadyResponse{Service: s.cfg.ServiceName, Checks: make(map[string]string)}
	healthy := s.IsReady()
	if healthy {
		resp.Checks["service"] = "ok"
	} else {
		resp.Checks["service"] = "not_ready"
	}

	names := make([]string, 0, len(s.cfg.Checks))
	for name := range s.cfg.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := s.cfg.Checks[name](ctx)
		cancel()
		if err != nil {
			healthy = false
			resp.Checks[name] = "error: " + err.Error()
			s.logger.WithError(err).WithField("check", name).Warn("Readiness check failed")
			continue
		}
		resp.Checks[name] = "ok"
	}

	if s.cfg.Scan != nil {
		resp.Scan = s.scanReport()
		if resp.Scan.Status != "ok" && resp.Scan.Status != "pending" {
			healthy = false
		}
	}

	resp.Duration = s.now().Sub(start).String()
	if !healthy {
		resp.Status = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Status = "ok"
	writeJSON(w, http.StatusOK, resp)
}

// scanReport classifies the scan state: pending before the first scan, error when
// the latest attempt failed, stale when the last success is older than MaxScanAge
func (s *Server) scanReport() *ScanReport {
	at, results, err := s.cfg.Scan.LastScan()
	report := &ScanReport{Status: "ok", Results: results}
	if !at.IsZero() {
		report.At = at.UTC().Format(time.RFC3339)
	}

	switch {
	case err != nil:
		report.Status = "error"
		report.Error = err.Error()
	case at.IsZero():
		report.Status = "pending"
	case s.cfg.MaxScanAge > 0 && s.now().Sub(at) > s.cfg.MaxScanAge:
		report.Status = "stale"
	}
	return report
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
