package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"imagecleanse/logging"
	"imagecleanse/types"
)

// Store is the catalog surface served over HTTP.
type Store interface {
	Ingest(ctx context.Context, report *types.ScanReport) (types.IngestSummary, error)
	Images(ctx context.Context, q types.ImageQuery) ([]types.ImageRecord, error)
	ReplaceGroups(ctx context.Context, w types.GroupWrite) error
	ListImages(ctx context.Context, f types.ImageFilter) ([]types.ImageRecord, error)
	Groups(ctx context.Context, ids []string) ([]types.DuplicateGroup, error)
	Stats(ctx context.Context) (types.CatalogStats, error)
}

// Rescanner accepts targeted re-scan requests.
type Rescanner interface {
	Trigger(paths []string)
}

// Server serves the catalog sync protocol.
type Server struct {
	store     Store
	rescanner Rescanner
	logger    *slog.Logger
	router    chi.Router

	listener net.Listener
	server   *http.Server
}

// NewServer builds the router. rescanner may be nil, in which case the
// rescan endpoint reports 503.
func NewServer(store Store, rescanner Rescanner, logger *slog.Logger) *Server {
	s := &Server{
		store:     store,
		rescanner: rescanner,
		logger:    logging.NewComponentLogger(logger, "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/cleanse", func(r chi.Router) {
		r.Post("/image-dataset", s.handleDataset)
		r.Get("/images", s.handleImages)
		r.Get("/images/metadata", s.handleMetadata)
		r.Get("/images/blurred", s.handleBlurred)
		r.Get("/images/no-face", s.handleNoFace)
		r.Post("/images/duplicates", s.handleDuplicatesWrite)
		r.Get("/duplicates", s.handleDuplicates)
		r.Get("/stats", s.handleStats)
		r.Post("/rescan", s.handleRescan)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on bind and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.LogAttrs(r.Context(), level, "request",
			logging.String("method", r.Method),
			logging.String("route", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Int("bytes", ww.BytesWritten()),
			logging.String("request_id", middleware.GetReqID(r.Context())),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}
