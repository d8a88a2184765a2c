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

	"noircafe-backend/cache"
	"noircafe-backend/config"
	"noircafe-backend/database"
	"noircafe-backend/firebase"
	"noircafe-backend/ledger"
	"noircafe-backend/logger"
	"noircafe-backend/metrics"
	"noircafe-backend/middleware"
	"noircafe-backend/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:           "noircafe",
		Short:         "Noir Café loyalty and ordering API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnv()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("database-type", "", "database driver (postgres, mysql, sqlite)")
	_ = v.BindPFlag(config.KeyLogLevel, root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag(config.KeyDatabaseType, root.PersistentFlags().Lookup("database-type"))

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	serve.Flags().String("port", "", "listen port")
	_ = v.BindPFlag(config.KeyPort, serve.Flags().Lookup("port"))

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and ensure the default admin exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(v)
		},
	}

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Report users whose balance disagrees with their transaction log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, v)
		},
	}

	root.AddCommand(serve, migrate, reconcile)
	return root
}

// bootstrap loads configuration, builds the logger and opens the database.
func bootstrap(v *viper.Viper) (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := database.Connect(cfg.DatabaseType, cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return cfg, log, db, nil
}

func closeDB(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error("error closing database connection", zap.Error(err))
		return
	}
	log.Info("database connection closed")
}

func runMigrate(v *viper.Viper) error {
	_, log, db, err := bootstrap(v)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer closeDB(db, log)

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := database.CreateDefaultAdmin(db); err != nil {
		log.Warn("could not create default admin", zap.Error(err))
	}
	log.Info("migrations applied")
	return nil
}

func runReconcile(cmd *cobra.Command, v *viper.Viper) error {
	_, log, db, err := bootstrap(v)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer closeDB(db, log)

	drifts, err := ledger.NewService(db, ledger.WithLogger(log)).Reconcile(cmd.Context())
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(drifts) == 0 {
		fmt.Fprintln(out, "all balances match the transaction log")
		return nil
	}
	fmt.Fprintf(out, "%-40s %10s %10s %10s\n", "UID", "STORED", "LEDGER", "DIFF")
	for _, d := range drifts {
		fmt.Fprintf(out, "%-40s %10d %10d %10d\n", d.UserUID, d.StoredCurrent, d.LedgerSum, d.Difference())
	}
	log.Warn("balance drift detected", zap.Int("users", len(drifts)))
	return nil
}

func runServe(parent context.Context, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, db, err := bootstrap(v)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer closeDB(db, log)

	if err := config.ValidateEnv(); err != nil {
		log.Error("environment validation failed", zap.Error(err))
		return err
	}

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := database.CreateDefaultAdmin(db); err != nil {
		log.Warn("could not create default admin", zap.Error(err))
	}

	m := metrics.New()
	ledgerOpts := []ledger.Option{ledger.WithLogger(log), ledger.WithMetrics(m)}
	if cfg.RedisURL != "" {
		balanceCache, err := cache.NewRedisBalanceCache(ctx, cfg.RedisURL, cfg.BalanceCacheTTL, log)
		if err != nil {
			log.Warn("balance cache disabled", zap.Error(err))
		} else {
			defer balanceCache.Close()
			ledgerOpts = append(ledgerOpts, ledger.WithCache(balanceCache))
		}
	}

	deps := routes.Dependencies{
		DB:      db,
		Ledger:  ledger.NewService(db, ledgerOpts...),
		Metrics: m,
		Logger:  log,
	}
	if cfg.FirebaseEnabled() {
		app, err := firebase.NewApp(ctx, cfg.FirebaseCreds, cfg.FirebaseBucket, log)
		if err != nil {
			log.Warn("firebase disabled", zap.Error(err))
		} else {
			if verifier, err := firebase.NewIdentityVerifier(ctx, app); err != nil {
				log.Warn("firebase sign-in disabled", zap.Error(err))
			} else {
				deps.Verifier = verifier
			}
			if cfg.FirebaseBucket != "" {
				deps.Storage = firebase.NewStorageClient(app, cfg.FirebaseBucket, log)
			}
		}
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = 10 << 20
	r.Use(middleware.Recovery(log), middleware.RequestLogger(log, m))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
		log.Warn("no CORS origins configured, defaulting to http://localhost:3000")
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	stopLimiters := routes.SetupRoutes(r, deps)
	defer stopLimiters()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited gracefully")
	return nil
}
