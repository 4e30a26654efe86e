// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"signvault/archive"
	"signvault/catalog"
)

//go:embed tmpl/*.tmpl
var templateFS embed.FS

const (
	displayDate      = "02/01/2006"
	displayTimestamp = "02/01/2006 15:04:05"

	archiveFilename  = "documentos_assinados.zip"
	maxWebhookBody   = 1 << 20
	defaultWriteTime = 6 * time.Minute
	shutdownTimeout  = 15 * time.Second
)

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"date":      formatDate,
	"timestamp": formatTimestamp,
}).ParseFS(templateFS, "tmpl/*.tmpl"))

// Lister produces the document listing.
type Lister interface {
	List(ctx context.Context, q catalog.Query) catalog.Result
}

// Archiver zips documents for download.
type Archiver interface {
	Build(ctx context.Context, ids []string, names map[string]string) (archive.Archive, error)
}

// Refresher resolves signature times on demand.
type Refresher interface {
	RefreshOne(ctx context.Context, id string) (time.Time, bool)
	RefreshBatch(ctx context.Context, ids []string) map[string]*time.Time
	RefreshFromLedger(ctx context.Context) (map[string]*time.Time, error)
	RegisterDates(ctx context.Context) (map[string]*time.Time, error)
}

// Signatures stores pushed signature times and queues refreshes.
type Signatures interface {
	Set(ctx context.Context, id string, t time.Time)
	EnqueueRefresh(ctx context.Context, ids []string) int
}

// Sweeps reports when the automatic refresh last ran.
type Sweeps interface {
	LastRun() time.Time
}

// Server handles HTTP requests.
type Server struct {
	catalog      Lister
	archiver     Archiver
	refresher    Refresher
	signatures   Signatures
	sweeps       Sweeps
	logger       *slog.Logger
	autoRefresh  time.Duration
	writeTimeout time.Duration
}

// Config holds server configuration.
type Config struct {
	Catalog    Lister
	Archiver   Archiver
	Refresher  Refresher
	Signatures Signatures
	// Sweeps is nil when automatic refresh is disabled.
	Sweeps              Sweeps
	Logger              *slog.Logger
	AutoRefreshInterval time.Duration
	// WriteTimeout bounds a whole response, archive downloads included.
	WriteTimeout time.Duration
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTime
	}
	return &Server{
		catalog:      cfg.Catalog,
		archiver:     cfg.Archiver,
		refresher:    cfg.Refresher,
		signatures:   cfg.Signatures,
		sweeps:       cfg.Sweeps,
		logger:       cfg.Logger,
		autoRefresh:  cfg.AutoRefreshInterval,
		writeTimeout: writeTimeout,
	}
}

// Handler returns the router with every route and middleware attached.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/", s.handleIndex)
	r.Get("/api/documents", s.handleDocuments)
	r.Post("/refresh-signature", s.handleRefreshSignature)
	r.Post("/refresh-batch", s.handleRefreshBatch)
	r.Post("/refresh-from-downloads", s.handleRefreshFromDownloads)
	r.Post("/register-dates", s.handleRegisterDates)
	r.Post("/refresh-queue", s.handleRefreshQueue)
	r.Post("/webhook/d4sign", s.handleWebhook)
	r.Get("/health", s.handleHealth)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	// Configure server with timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      s.writeTimeout, // Archive builds stream after every fetch completes
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

// requestLogger logs one line per request once the response is written.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", status,
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(displayDate)
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(displayTimestamp)
}

// timestampValue formats t for JSON answers, nil when unknown.
func timestampValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(displayTimestamp)
}
