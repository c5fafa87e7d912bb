// Package server exposes the reporting API over HTTP: windowed
// dashboard statistics, per-doctor breakdowns, patient visit
// histories, and the narrow prescription/recommendation write paths.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/renalview/renalview/internal/config"
	"github.com/renalview/renalview/internal/db"
	"github.com/renalview/renalview/internal/visit"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Server is the HTTP server for the reporting API.
type Server struct {
	mu        sync.RWMutex
	cfg       config.Config
	db        *db.DB
	assembler *visit.Assembler
	mux       *http.ServeMux
	httpSrv   *http.Server
	version   VersionInfo

	// now is injected so window-dependent handlers are
	// deterministic in tests. time.Now in production.
	now func() time.Time

	// handlerDelay is injected before each timeout-wrapped
	// handler, used only by tests to guarantee handlers
	// exceed a short timeout. Zero in production.
	handlerDelay time.Duration
}

// New creates a new Server.
func New(cfg config.Config, database *db.DB, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		db:        database,
		assembler: visit.NewAssembler(database),
		mux:       http.NewServeMux(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithNow overrides the clock used for window classification,
// allowing tests to pin "now". Nil is ignored.
func WithNow(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/v1/stats/dashboard",
		s.withTimeout(s.withIdentity(s.handleDashboard)))
	s.mux.Handle("GET /api/v1/stats/doctors",
		s.withTimeout(s.withIdentity(s.handleDoctorBreakdown)))
	s.mux.Handle("GET /api/v1/patients/{id}/history",
		s.withTimeout(s.withIdentity(s.handlePatientHistory)))

	s.mux.Handle("GET /api/v1/reports/{id}/medications",
		s.withTimeout(s.withIdentity(s.handleListMedications)))
	s.mux.Handle("PUT /api/v1/reports/{id}/prescriptions",
		s.withTimeout(s.withIdentity(s.handleReplacePrescriptions)))
	s.mux.Handle("POST /api/v1/reports/{id}/prescriptions/{pid}/outdate",
		s.withTimeout(s.withIdentity(s.handleOutdatePrescription)))
	s.mux.Handle("POST /api/v1/reports/{id}/recommendations",
		s.withTimeout(s.withIdentity(s.handleUpsertRecommendation)))

	s.mux.Handle("GET /api/v1/stats", s.withTimeout(s.handleGetStats))
	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleGetVersion))
}

func (s *Server) handleGetVersion(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, s.version)
}

func (s *Server) handleGetStats(
	w http.ResponseWriter, r *http.Request,
) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("stats error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return logMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	log.Printf("Starting server at http://%s", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// FindAvailablePort finds an available port starting from the given
// port, binding to the specified host.
func FindAvailablePort(host string, start int) int {
	for port := start; port < start+100; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return port
		}
	}
	return start
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}
