package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kakeibo/internal/auth"
	"kakeibo/internal/config"
	"kakeibo/internal/handlers"
	"kakeibo/internal/logging"
	"kakeibo/internal/metrics"
	"kakeibo/internal/storage"
	"kakeibo/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kakeibo",
		Short:         "Household finance tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := storage.Open(cfg.DB)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			logrus.WithField("driver", cfg.DB.Driver).Info("Migrations applied")
			return nil
		},
	})

	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	db, err := storage.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	m := metrics.New()
	h, err := handlers.NewHandlers(db, auth.NewSessionCodec(cfg.SecretKey, cfg.SessionTTL), handlers.Options{
		Templates:       web.Templates(),
		SecureCookie:    cfg.SecureCookie,
		CommuteCategory: cfg.CommuteCategory,
		Metrics:         m,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(h, m),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"driver": cfg.DB.Driver,
		}).Info("Starting kakeibo server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logrus.Info("Server stopped gracefully")
	return nil
}

func setupRouter(h *handlers.Handlers, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	protected := func(f http.HandlerFunc) http.Handler {
		return h.AuthMiddleware(f)
	}

	mux.Handle("GET /static/", http.FileServerFS(web.StaticFS))
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /register", h.RegisterForm)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /logout", h.Logout)

	mux.Handle("GET /add_record", protected(h.AddRecordForm))
	mux.Handle("POST /add_record", protected(h.AddRecord))
	mux.Handle("GET /records", protected(h.ListRecords))
	mux.Handle("POST /delete_record/{id}", protected(h.DeleteRecord))

	mux.Handle("GET /monthly_summary", protected(h.MonthlySummary))
	mux.Handle("GET /category_summary", protected(h.CategorySummary))
	mux.Handle("GET /balance_summary", protected(h.BalanceSummary))

	return logging.RequestLogger(m.Middleware(mux))
}
