package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/backend"
	"expense-ledger/internal/config"
	"expense-ledger/internal/handlers"
	"expense-ledger/internal/logger"
	"expense-ledger/internal/middleware"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
	"expense-ledger/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, dotenv := config.Load()

	log, err := logger.Configure(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !dotenv {
		log.Debug().Msg("No .env file found, using process environment")
	}

	store, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := ensureAdmin(ctx, store, cfg, log); err != nil {
		return err
	}

	h := handlers.NewHandlers(store, web.TemplatesFS, log, handlers.Options{
		SecureCookie:      cfg.SecureCookie,
		AllowRegistration: cfg.AllowRegistration,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupRouter(h, web.StaticFS, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Store).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		cleanSessions(gctx, store, cfg.SessionCleanupInterval, log)
		return nil
	})

	return g.Wait()
}

func setupRouter(h *handlers.Handlers, static fs.FS, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	mux.HandleFunc("GET /healthz", h.Healthz)

	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /register", h.RegisterForm)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /logout", h.Logout)
	mux.HandleFunc("POST /logout", h.Logout)

	mux.Handle("GET /expenses", h.AuthMiddleware(http.HandlerFunc(h.ListExpenses)))
	mux.Handle("GET /expenses/new", h.AuthMiddleware(http.HandlerFunc(h.NewExpenseForm)))
	mux.Handle("POST /expenses", h.AuthMiddleware(http.HandlerFunc(h.CreateExpense)))
	mux.Handle("GET /expenses/{id}/edit", h.AuthMiddleware(http.HandlerFunc(h.EditExpenseForm)))
	mux.Handle("POST /expenses/{id}", h.AuthMiddleware(http.HandlerFunc(h.UpdateExpense)))
	mux.Handle("POST /expenses/{id}/delete", h.AuthMiddleware(http.HandlerFunc(h.DeleteExpense)))
	mux.Handle("GET /reports", h.AuthMiddleware(http.HandlerFunc(h.Reports)))

	mux.HandleFunc("/", h.NotFound)

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.SecurityHeaders,
	)
}

// ensureAdmin creates the ADMIN_USER account on an empty store.
func ensureAdmin(ctx context.Context, store storage.Users, cfg *config.Config, log zerolog.Logger) error {
	if cfg.AdminUser == "" {
		return nil
	}
	if err := models.ValidateCredentials(cfg.AdminUser, cfg.AdminPassword); err != nil {
		return fmt.Errorf("invalid ADMIN_USER/ADMIN_PASSWORD: %w", err)
	}
	count, err := store.UserCount(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	user, err := store.CreateUser(ctx, cfg.AdminUser, hash)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Info().Str("username", user.Username).Msg("Created initial user")
	return nil
}

// cleanSessions deletes expired sessions every interval until ctx is done.
func cleanSessions(ctx context.Context, store storage.Sessions, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanExpiredSessions(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Failed to clean expired sessions")
				continue
			}
			if n > 0 {
				log.Info().Int64("removed", n).Msg("Cleaned expired sessions")
			}
		}
	}
}
