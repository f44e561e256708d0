// Package server wires the HTTP router: middleware, handlers and their
// services, and the graceful-shutdown loop.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/config"
	"github.com/sakif/exam-archive/internal/handler"
	"github.com/sakif/exam-archive/internal/middleware"
	sqliteRepo "github.com/sakif/exam-archive/internal/repository/sqlite"
	"github.com/sakif/exam-archive/internal/search"
	"github.com/sakif/exam-archive/internal/service"
	"github.com/sakif/exam-archive/internal/storage"
)

// Server owns the router, the database handle and the storage provider.
// The database is closed when Start returns.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	files  storage.Provider
	google handler.GoogleAuthenticator
}

// Option customizes a Server before routes are built.
type Option func(*Server)

// WithGoogle replaces the Google sign-in client built from config.
func WithGoogle(g handler.GoogleAuthenticator) Option {
	return func(s *Server) { s.google = g }
}

// New builds the services and routes. db and files are owned by the server
// from here on.
func New(cfg *config.Config, logger *slog.Logger, db *sqliteRepo.DB, files storage.Provider, opts ...Option) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		files:  files,
	}
	if cfg.GoogleEnabled() {
		s.google = auth.NewGoogleProvider(
			cfg.Auth.GoogleClientID,
			cfg.Auth.GoogleClientSecret,
			cfg.CallbackURL(),
			cfg.Auth.AllowedEmailDomain,
		)
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(s.router)
}

func (s *Server) setupRoutes() error {
	cfg := s.config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, cfg.Auth.AdminSessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// --- services ---
	collections := service.NewCollectionService(s.db, s.db, s.db, s.files, s.logger)
	exams := service.NewExamService(s.db, s.db, s.db, s.db, s.files, collections, s.logger)
	moderation := service.NewModerationService(s.db, s.db, s.files, tokens, auth.NewPasswordService(),
		service.AdminAccount{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash}, s.logger)
	authService := service.NewAuthService(s.db, tokens, cfg.Auth.AllowedEmailDomain, s.logger)
	engine := search.NewEngine(s.db, s.db, s.logger)

	// --- handlers ---
	cookies := handler.CookieConfig{Secure: cfg.Auth.CookieSecure}
	healthHandler := handler.NewHealthHandler(s.db, s.logger)
	authHandler := handler.NewAuthHandler(s.google, authService, tokens.UserTTL(), cookies, cfg.Auth.LoginRedirect, s.logger)
	searchHandler := handler.NewSearchHandler(engine, s.logger)
	examHandler := handler.NewExamHandler(exams, collections, cfg.Upload.MaxBytes, s.logger)
	collectionHandler := handler.NewCollectionHandler(collections, s.logger)
	monitorHandler := handler.NewMonitorHandler(moderation, tokens.AdminTTL(), cookies, cfg.Upload.MaxBytes, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	if local, ok := s.files.(*storage.LocalProvider); ok {
		s.mountLocalFiles(local)
	}

	s.router.Route("/auth", func(r chi.Router) {
		if s.google != nil {
			r.Get("/google/login", authHandler.HandleGoogleLogin)
			r.Get("/google/callback", authHandler.HandleGoogleCallback)
		} else {
			s.logger.Warn("Google sign-in is not configured; /auth/google is disabled")
		}
		r.Post("/logout", authHandler.HandleLogout)
	})

	requireAuth := auth.RequireAuth(tokens)

	s.router.Route("/api", func(r chi.Router) {
		// Public
		r.Post("/exams/search", searchHandler.HandleSearch)
		r.Get("/exams/trending", searchHandler.HandleTrending)
		r.With(auth.OptionalAuth(tokens)).Get("/exams/{id}", examHandler.HandleGet)

		// Signed-in students
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", authHandler.HandleMe)
			r.Get("/me/profile", examHandler.HandleProfile)

			r.Post("/exams", examHandler.HandleUpload)
			r.Post("/exams/report", examHandler.HandleReport)
			r.Patch("/exams/{id}", examHandler.HandleUpdate)
			r.Delete("/exams/{id}", examHandler.HandleDelete)
			r.Post("/exams/{id}/lightning", examHandler.HandleLightning)
			r.Post("/exams/{id}/bookmark", examHandler.HandleToggleBookmark)
			r.Delete("/exams/{id}/bookmark", examHandler.HandleUnbookmark)
			r.Put("/exams/{id}/folders", examHandler.HandleSetFolders)

			r.Get("/folders", collectionHandler.HandleList)
			r.Post("/folders", collectionHandler.HandleCreate)
			r.Put("/folders/{id}", collectionHandler.HandleUpdate)
			r.Delete("/folders/{id}", collectionHandler.HandleDelete)
			r.Delete("/folders/{id}/exams/{examID}", collectionHandler.HandleRemoveExam)
		})

		// Moderation panel
		r.Route("/monitor", func(r chi.Router) {
			r.Post("/login", monitorHandler.HandleLogin)
			r.Post("/logout", monitorHandler.HandleLogout)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin(tokens))

				r.Get("/reported", monitorHandler.HandleReported)
				r.Get("/recent", monitorHandler.HandleRecent)
				r.Get("/exams/{id}", monitorHandler.HandleGet)
				r.Patch("/exams/{id}", monitorHandler.HandleUpdate)
				r.Delete("/exams/{id}", monitorHandler.HandleDelete)
				r.Post("/exams/{id}/clear-reports", monitorHandler.HandleClearReports)
				r.Post("/exams/{id}/files", monitorHandler.HandleAddFile)
				r.Put("/exams/{id}/files/{fileID}", monitorHandler.HandleReplaceFile)
				r.Delete("/exams/{id}/files/{fileID}", monitorHandler.HandleRemoveFile)
			})
		})
	})

	if !cfg.AdminEnabled() {
		s.logger.Warn("no admin account configured; moderation login will always fail")
	}
	return nil
}

// mountLocalFiles serves the local storage directory read-only under the
// path of its base URL. An absolute base URL on another host is served by
// that host, not here.
func (s *Server) mountLocalFiles(local *storage.LocalProvider) {
	base, err := url.Parse(local.BaseURL())
	if err != nil || base.Path == "" || base.Path == "/" {
		return
	}
	if base.Host != "" && !strings.HasPrefix(local.BaseURL(), s.config.Server.PublicURL) {
		return
	}
	prefix := strings.TrimRight(base.Path, "/")
	fileServer := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(local.Dir())))
	s.router.Handle(prefix+"/*", fileServer)
}

// Start runs the server until SIGINT or SIGTERM, then drains in-flight
// requests for up to 30 seconds.
func (s *Server) Start() error {
	defer s.db.Close()

	port := s.config.Server.Port
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Uploads to Drive can take a while.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", port)),
			slog.String("database", s.config.Database.Path),
			slog.String("storage", s.config.Storage.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
