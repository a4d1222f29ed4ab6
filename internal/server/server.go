package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/reviewdb/apiserver/config"
	"github.com/reviewdb/apiserver/internal/confirm"
	"github.com/reviewdb/apiserver/internal/db"
	"github.com/reviewdb/apiserver/internal/handlers"
	"github.com/reviewdb/apiserver/internal/notify"
	"github.com/reviewdb/apiserver/internal/services"
	"github.com/reviewdb/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	sender     notify.Sender
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()

	codec, err := confirm.New(cfg.Auth.JWTSecret, cfg.Auth.ConfirmationTTL)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	sender, err := notify.NewSender(ctx, cfg.Notify, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	categoryRepo := store.NewCategoryRepository(dbConn)
	genreRepo := store.NewGenreRepository(dbConn)
	titleRepo := store.NewTitleRepository(dbConn)
	reviewRepo := store.NewReviewRepository(dbConn)
	commentRepo := store.NewCommentRepository(dbConn)

	userService := services.NewUserService(userRepo, codec, sender, logger, cfg.Auth.ResendOnDuplicate)
	catalogService := services.NewCatalogService(categoryRepo, genreRepo, titleRepo)
	reviewService := services.NewReviewService(titleRepo, reviewRepo, commentRepo)

	authHandler := handlers.NewAuthHandler(userService, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	userHandler := handlers.NewUserHandler(userService)
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	reviewHandler := handlers.NewReviewHandler(reviewService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Group(func(r chi.Router) {
		r.Use(authHandler.Authenticate)
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userHandler)
		})
		r.Route("/categories", catalogHandler.CategoryRouter)
		r.Route("/genres", catalogHandler.GenreRouter)
		r.Route("/titles", func(r chi.Router) {
			catalogHandler.TitleRouter(r)
			r.Route("/{titleID}/reviews", reviewHandler.ReviewRouter)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		sender:     sender,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.sender != nil {
		_ = s.sender.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
