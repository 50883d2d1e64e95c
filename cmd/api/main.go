package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vinyl-exchange/internal/app"
	"vinyl-exchange/internal/core/config"
	"vinyl-exchange/internal/core/logger"
	"vinyl-exchange/internal/core/server"
	"vinyl-exchange/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	root := &cobra.Command{
		Use:           "vinyl-api",
		Short:         "Vinyl record trading API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file (default $CONFIG_PATH)")
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), cfgPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update database tables and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return migrate(cmd.Context(), cfgPath)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("vinyl-api: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func setup(path string) (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	var (
		log     *zap.Logger
		cleanup func()
	)
	if cfg.Log.File != "" {
		log, cleanup = logger.NewWithRotate(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File)
	} else {
		log, cleanup = logger.New(cfg.Log.Level, cfg.Log.JSON)
	}
	server.SetMode(cfg.App.Env, log)
	return cfg, log, cleanup, nil
}

func serve(ctx context.Context, path string) error {
	cfg, log, cleanup, err := setup(path)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("bootstrap failed", zap.Error(err))
		return err
	}
	defer a.Close()

	h := cfg.App.HTTP
	addr := server.Addr(h.Host, h.Port)
	srv := server.BuildServer(
		addr, router.NewAPIEngine(a.Deps),
		time.Duration(h.ReadTimeoutSec)*time.Second,
		time.Duration(h.WriteTimeoutSec)*time.Second,
		time.Duration(h.IdleTimeoutSec)*time.Second,
		log,
	)

	baseURL := server.BaseURL(h.Host, h.Port)
	log.Info("user api config",
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("api", baseURL+"/api"),
		zap.String("env", cfg.App.Env),
	)
	return server.Run(ctx, srv, "user api", log, 10*time.Second)
}

func migrate(ctx context.Context, path string) error {
	cfg, log, cleanup, err := setup(path)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg.DB.AutoMigrate = true
	db, err := app.OpenDB(ctx, cfg, log)
	if err != nil {
		log.Error("migrate failed", zap.Error(err))
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
