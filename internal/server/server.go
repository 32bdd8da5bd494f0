// Package server provides the HTTP API over package assembly, validation and export.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/ectd/internal/assembler"
	"github.com/hyperjump/ectd/internal/bookmarks"
	"github.com/hyperjump/ectd/internal/config"
	"github.com/hyperjump/ectd/internal/exporter"
	"github.com/hyperjump/ectd/internal/hyperlink"
	"github.com/hyperjump/ectd/internal/storage"
	"github.com/hyperjump/ectd/internal/validator"
)

// WatchService manages the upload directories being re-validated.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the ectd API.
type Server struct {
	store     storage.Store
	assembler *assembler.Assembler
	validator *validator.Validator
	exporter  *exporter.Exporter
	bookmarks *bookmarks.Builder
	links     *hyperlink.Reporter
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server

	watch      WatchService
	configPath string
	configMu   sync.Mutex
}

// NewServer creates a server with the given dependencies. watch may be nil when no upload
// directories are watched; configPath, when set, persists watch directory changes.
func NewServer(
	store storage.Store,
	asm *assembler.Assembler,
	v *validator.Validator,
	exp *exporter.Exporter,
	cfg *config.Config,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
) *Server {
	return &Server{
		store:     store,
		assembler: asm,
		validator: v,
		exporter:  exp,
		bookmarks: bookmarks.NewBuilder(
			bookmarks.WithLogger(logger),
			bookmarks.WithMaxDepth(cfg.Bookmarks.MaxDepth),
			bookmarks.WithMaxTitleLength(cfg.Bookmarks.MaxTitleLength),
		),
		links:      hyperlink.NewReporter(hyperlink.WithLogger(logger)),
		config:     cfg,
		logger:     logger,
		watch:      watch,
		configPath: configPath,
	}
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/studies", s.handleListStudies)
		r.Route("/studies/{id}", func(r chi.Router) {
			// Exports can outlast the timeout of the other study endpoints.
			r.Post("/exports", s.handleExport)
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))
				r.Get("/readiness", s.handleReadiness)
				r.Get("/manifest", s.handleManifest)
				r.Get("/bookmarks", s.handleBookmarks)
				r.Get("/hyperlinks", s.handleHyperlinks)
				r.Post("/validate", s.handleValidate)
			})
		})
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})

	if len(s.config.Server.CORSOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.config.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	}).Handler(r)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
