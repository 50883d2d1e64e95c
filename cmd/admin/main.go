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
		Use:           "vinyl-admin",
		Short:         "Vinyl record trading admin API (bind to an internal address)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgPath)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "YAML config file (default $CONFIG_PATH)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("vinyl-admin: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
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
	defer cleanup()
	server.SetMode(cfg.App.Env, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("bootstrap failed", zap.Error(err))
		return err
	}
	defer a.Close()

	h := cfg.App.HTTP
	addr := server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port)
	srv := server.BuildServer(
		addr, router.NewAdminEngine(a.Deps),
		time.Duration(h.ReadTimeoutSec)*time.Second,
		time.Duration(h.WriteTimeoutSec)*time.Second,
		time.Duration(h.IdleTimeoutSec)*time.Second,
		log,
	)

	baseURL := server.BaseURL(cfg.App.Admin.Host, cfg.App.Admin.Port)
	log.Info("admin api config",
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("admin", baseURL+"/admin/v1"),
	)
	return server.Run(ctx, srv, "admin api", log, 10*time.Second)
}
