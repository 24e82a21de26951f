package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinrisk/triage/internal/config"
	"github.com/clinrisk/triage/internal/domain/audit"
	"github.com/clinrisk/triage/internal/domain/disposition"
	"github.com/clinrisk/triage/internal/domain/intake"
	"github.com/clinrisk/triage/internal/domain/queue"
	"github.com/clinrisk/triage/internal/domain/ruleset"
	"github.com/clinrisk/triage/internal/platform/auth"
	"github.com/clinrisk/triage/internal/platform/db"
	"github.com/clinrisk/triage/internal/platform/middleware"
	"github.com/clinrisk/triage/internal/platform/notification"
	"github.com/clinrisk/triage/internal/platform/scheduling"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage-server",
		Short: "Clinical triage core API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(rulesetCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage API server",
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
			cfg, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			count, err := migrator.Up(context.Background())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			statuses, err := migrator.Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	cmd.AddCommand(statusCmd)

	return cmd
}

func rulesetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ruleset",
		Short: "Manage triage rulesets",
	}

	loadCmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load and validate a ruleset document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			// Bare filenames resolve against the configured ruleset directory.
			path := args[0]
			if _, statErr := os.Stat(path); statErr != nil && !filepath.IsAbs(path) {
				path = filepath.Join(cfg.RulesetDir, path)
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			svc := rulesetService(pool)
			rs, err := svc.Load(context.Background(), src, auth.SystemActor())
			if err != nil {
				return err
			}
			fmt.Printf("Loaded ruleset %s v%d (hash %s)\n", rs.ID, rs.Version, rs.ContentHash)
			return nil
		},
	}
	cmd.AddCommand(loadCmd)

	activateCmd := &cobra.Command{
		Use:   "activate <id> <version>",
		Short: "Activate a loaded ruleset version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[1])
			}
			approverID, _ := cmd.Flags().GetString("approver")
			if approverID == "" {
				return fmt.Errorf("--approver is required")
			}
			_, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := rulesetService(pool)
			approver := auth.Actor{ID: approverID, Type: auth.ActorTypeClinician, Roles: []string{"rules-admin"}}
			if err := svc.Activate(context.Background(), args[0], version, approver); err != nil {
				return err
			}
			fmt.Printf("Activated ruleset %s v%d\n", args[0], version)
			return nil
		},
	}
	activateCmd.Flags().String("approver", "", "Approver actor id (must differ from the submitter)")
	cmd.AddCommand(activateCmd)

	return cmd
}

// loadConfig loads the environment configuration and refuses unsafe values
// before anything connects or serves.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func connect() (*config.Config, *pgxpool.Pool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func rulesetService(pool *pgxpool.Pool) *ruleset.Service {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	inTx := func(ctx context.Context, fn func(context.Context) error) error {
		return db.InTx(ctx, pool, fn)
	}
	ledger := audit.NewLedger(audit.NewRepoPG(pool), notification.NewLogNotifier(logger), inTx)
	return ruleset.NewService(ruleset.NewRepoPG(pool), ledger, nil)
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Alerts fan out to every registered sink; the log sink is always on.
	hub := notification.NewHub(notification.NewLogNotifier(logger))

	inTx := func(ctx context.Context, fn func(context.Context) error) error {
		return db.InTx(ctx, pool, fn)
	}

	// Ledger first: every other service writes through it.
	ledger := audit.NewLedger(audit.NewRepoPG(pool), hub, inTx)

	intakeRepo := intake.NewRepoPG(pool)
	intakeSvc := intake.NewService(intakeRepo)

	rulesetSvc := ruleset.NewService(ruleset.NewRepoPG(pool), ledger, hub)
	dispositionSvc := disposition.NewService(
		disposition.NewRepoPG(pool), intakeRepo, rulesetSvc, ledger, hub, inTx)
	rulesetSvc.SetStaleFlagger(dispositionSvc)

	queueSvc := queue.NewService(queue.NewRepoPG(pool), queue.DefaultSLAs(), hub)
	gate := scheduling.NewBookingGate(dispositionSvc)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	apiV1 := e.Group("/api/v1")
	intake.NewHandler(intakeSvc).RegisterRoutes(apiV1)
	ruleset.NewHandler(rulesetSvc).RegisterRoutes(apiV1)
	disposition.NewHandler(dispositionSvc).RegisterRoutes(apiV1)
	queue.NewHandler(queueSvc).RegisterRoutes(apiV1)
	audit.NewHandler(ledger).RegisterRoutes(apiV1)
	gate.RegisterRoutes(apiV1)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Periodic SLA sweep; breaches surface through the alert hub.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if n, err := queueSvc.CheckBreaches(sweepCtx); err != nil {
					logger.Error().Err(err).Msg("sla sweep failed")
				} else if n > 0 {
					logger.Warn().Int("new_breaches", n).Msg("sla breaches in review queue")
				}
			}
		}
	}()

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
