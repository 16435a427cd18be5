package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzhttp"

	"github.com/user/cloudsummary/internal/iam"
	"github.com/user/cloudsummary/internal/store"
	"github.com/user/cloudsummary/internal/summary"
)

// StoreOpener opens a connection to the summary data source for one request.
type StoreOpener func(ctx context.Context) (*store.Store, error)

// Options wires the collaborators of the summary endpoint.
type Options struct {
	Verifier       iam.Verifier
	AllowList      *iam.AllowList
	OpenStore      StoreOpener
	ReturnHeaders  []string
	ResultsPerPage int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server is the HTTP server for the cloud record summary API.
type Server struct {
	verifier      iam.Verifier
	allow         *iam.AllowList
	openStore     StoreOpener
	returnHeaders summary.FieldSet
	perPage       int
	now           func() time.Time

	metrics    *requestMetrics
	httpServer *http.Server
	router     chi.Router
	handler    http.Handler
}

// New creates a new Server.
func New(opts Options, bindAddr string) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	srv := &Server{
		verifier:      opts.Verifier,
		allow:         opts.AllowList,
		openStore:     opts.OpenStore,
		returnHeaders: summary.NewFieldSet(opts.ReturnHeaders),
		perPage:       opts.ResultsPerPage,
		now:           now,
		metrics:       newRequestMetrics(),
	}
	srv.router = srv.buildRouter()
	srv.handler = gzhttp.GzipHandler(srv.router)
	srv.httpServer = &http.Server{
		Addr:              bindAddr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(structuredLogger)
	r.Use(s.metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/cloud/record/summary", s.handleCloudRecordSummary)
	r.Get("/cloud/record/summary/", s.handleCloudRecordSummary)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handlePrometheusMetrics)

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Close immediately closes all listeners and connections.
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// Handler returns the http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// writeStatus answers with a bare status code. Failure responses carry no
// body so nothing about the internal state reaches the caller.
func writeStatus(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

// Middleware

func structuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
