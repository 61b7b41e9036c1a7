// Package httpapi exposes the index, search and status operations over a
// small JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/codesearch/internal/index"
	"github.com/Aman-CERP/codesearch/internal/project"
	"github.com/Aman-CERP/codesearch/internal/search"
	"github.com/Aman-CERP/codesearch/internal/telemetry"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Service is the set of operations the API exposes. *project.Manager
// implements it.
type Service interface {
	Index(ctx context.Context, path string, force bool, progress index.ProgressFunc) (*index.Summary, error)
	StartIndex(ctx context.Context, path string, force bool) (*project.IndexTask, error)
	Search(ctx context.Context, path string, req search.Request) ([]search.Result, error)
	Status(ctx context.Context, path string) (*project.Status, error)
	QueryMetrics() *telemetry.Snapshot
}

var _ Service = (*project.Manager)(nil)

// Server is the HTTP server.
type Server struct {
	svc         Service
	defaultRoot string
	router      chi.Router
	logger      *slog.Logger
}

// NewServer creates a Server. Requests that name no path act on defaultRoot.
func NewServer(svc Service, defaultRoot string) *Server {
	s := &Server{svc: svc, defaultRoot: defaultRoot, logger: slog.Default()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/index", s.handleIndex)
		r.Post("/search", s.handleSearch)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("http_server_started", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http_server_stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}
