// Package server exposes discovery runs over HTTP: JSON endpoints for the
// current network, run control, the progress log and stored history, plus
// prometheus metrics and a D3 visualization page.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"peermap/internal/config"
	"peermap/internal/crawler"
	"peermap/internal/model"
	"peermap/internal/store"
)

// statusLogTail is how many journal entries /api/status returns.
const statusLogTail = 20

//go:embed static/index.html
var static embed.FS

// Crawler is the subset of the discovery engine the server drives.
type Crawler interface {
	Start(ctx context.Context) (string, error)
	Wait()
	Status() model.Status
	Snapshot() model.Snapshot
	Log() []model.LogEntry
	Tail(n int) []model.LogEntry
}

// History lists stored runs.
type History interface {
	List() ([]store.Summary, error)
}

// Option customizes a Server.
type Option func(*Server)

// WithHistory enables /api/history backed by h.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithCloser registers a resource closed on Shutdown, after the last run
// has drained.
func WithCloser(c io.Closer) Option {
	return func(s *Server) { s.closers = append(s.closers, c) }
}

// Server is the HTTP explorer.
type Server struct {
	cfg      config.ServerConfig
	crawler  Crawler
	history  History
	gatherer prometheus.Gatherer
	closers  []io.Closer
	logger   *logrus.Entry
	router   *mux.Router

	// runCtx bounds runs started through the API; cancelled on Shutdown.
	runCtx    context.Context
	cancelRun context.CancelFunc
	http      *http.Server
}

// New constructs a server for c.
func New(cfg config.ServerConfig, c Crawler, logger *logrus.Entry, opts ...Option) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		crawler:   c,
		gatherer:  prometheus.DefaultGatherer,
		logger:    logger,
		router:    mux.NewRouter(),
		runCtx:    ctx,
		cancelRun: cancel,
	}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(corsMiddleware)
	s.router.HandleFunc("/api/network", s.handleNetwork).Methods(http.MethodGet)
	s.router.HandleFunc("/api/start", s.handleStart).Methods(http.MethodGet, http.MethodPost)
	s.router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/log", s.handleLog).Methods(http.MethodGet)
	s.router.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the HTTP server until Shutdown.
func (s *Server) ListenAndServe() error {
	s.http = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.WithField("listen", s.cfg.Listen).Info("Explorer listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels any active run, waits for it to
// drain and closes registered resources.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = multierr.Append(err, s.http.Shutdown(ctx))
	}

	s.cancelRun()
	s.crawler.Wait()

	for _, c := range s.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.crawler.Snapshot())
}

type startResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := s.crawler.Start(s.runCtx)
	if errors.Is(err, crawler.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, startResponse{Status: "already_running"})
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.WithField("run", id).Info("Discovery started")
	writeJSON(w, http.StatusAccepted, startResponse{Status: "started", RunID: id})
}

type statusResponse struct {
	Status model.Status     `json:"status"`
	RunID  string           `json:"run_id,omitempty"`
	Stats  model.Stats      `json:"stats"`
	Log    []model.LogEntry `json:"log"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.crawler.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		Status: snap.Status,
		RunID:  snap.RunID,
		Stats:  snap.Stats,
		Log:    s.crawler.Tail(statusLogTail),
	})
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]model.LogEntry{"log": s.crawler.Log()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "history disabled")
		return
	}
	runs, err := s.history.List()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string][]store.Summary{"runs": runs})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
