package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Khr29/MediScanQR/internal/config"
	"github.com/Khr29/MediScanQR/internal/domain/account"
	"github.com/Khr29/MediScanQR/internal/domain/drug"
	"github.com/Khr29/MediScanQR/internal/domain/prescription"
	"github.com/Khr29/MediScanQR/internal/platform/auth"
	"github.com/Khr29/MediScanQR/internal/platform/db"
	"github.com/Khr29/MediScanQR/internal/platform/httperr"
	"github.com/Khr29/MediScanQR/internal/platform/metrics"
	"github.com/Khr29/MediScanQR/internal/platform/middleware"
	"github.com/Khr29/MediScanQR/internal/platform/notify"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mediscan-server",
		Short: "Prescription management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// resolveJWTSecret returns the configured secret, or a random one in
// development when none is set. Random secrets invalidate all tokens on
// restart, which is acceptable only for local work; config.Validate requires
// a real secret everywhere else.
func resolveJWTSecret(cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate development JWT secret: %w", err)
	}
	logger.Warn().Msg("JWT_SECRET not set; using a random development secret, tokens will not survive restarts")
	return []byte(hex.EncodeToString(key)), nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("unsafe configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Optional redis cache for account lookups on the auth hot path.
	var accountCache *auth.AccountCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		accountCache = auth.NewAccountCache(client)
		logger.Info().Msg("account lookup cache enabled")
	}

	secret, err := resolveJWTSecret(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve JWT secret")
	}
	issuer := auth.NewIssuer(secret)

	m := metrics.New()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httperr.Handler(logger, cfg.IsProduction())

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics(m))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.Audit(logger))

	// -- Services --

	accountRepo := account.NewRepoPG(pool)
	accountSvc := account.NewService(accountRepo)
	accountHandler := account.NewHandler(accountSvc, issuer)

	drugRepo := drug.NewRepoPG(pool)
	drugSvc := drug.NewService(drugRepo)
	drugHandler := drug.NewHandler(drugSvc)

	rxRepo := prescription.NewRepoPG(pool)
	rxSvc := prescription.NewService(rxRepo, drugRepo, nil, m, logger)
	rxSvc.SetNotifier(notify.NewLogNotifier(logger))
	rxHandler := prescription.NewHandler(rxSvc, cfg.RelaxedMode)

	// -- Routes --

	// The account service doubles as the guard's live lookup source, so a
	// deleted account invalidates its tokens on the next request.
	authenticate := auth.Authenticate(issuer, accountSvc, accountCache)

	public := e.Group("/api/v1")
	authed := e.Group("/api/v1", authenticate)

	// In relaxed mode the create route accepts anonymous requests; the
	// handler still rejects authenticated non-doctors.
	createGroup := authed
	if cfg.RelaxedMode {
		createGroup = e.Group("/api/v1", auth.AuthenticateOptional(issuer, accountSvc, accountCache))
	}

	accountHandler.RegisterRoutes(public, authed)
	drugHandler.RegisterRoutes(authed)
	rxHandler.RegisterRoutes(createGroup, authed)

	// Health check with db ping
	e.GET("/health", func(c echo.Context) error {
		status := "ok"
		code := http.StatusOK
		if err := pool.Ping(c.Request().Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, map[string]string{
			"status":  status,
			"version": "0.1.0",
		})
	})

	// Prometheus scrape endpoint
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
