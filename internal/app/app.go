// Package app 组装依赖：数据库、缓存、外部目录、对象存储与各业务模块
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"vinyl-exchange/internal/catalog"
	"vinyl-exchange/internal/core/auth"
	"vinyl-exchange/internal/core/cache"
	"vinyl-exchange/internal/core/config"
	"vinyl-exchange/internal/core/database"
	"vinyl-exchange/internal/repo"
	"vinyl-exchange/internal/service"
	"vinyl-exchange/internal/storage"
	"vinyl-exchange/internal/transport/http/handler"
	"vinyl-exchange/internal/transport/http/router"
)

type App struct {
	Cfg   *config.Config
	Log   *zap.Logger
	DB    *gorm.DB
	Cache *cache.Cache // 未配置 redis 时为 nil，调用方法均为空操作
	JWT   *auth.JWTer
	Deps  router.Deps
}

// OpenDB 按配置打开数据库，AutoMigrate 打开时顺带建表
func OpenDB(ctx context.Context, cfg *config.Config, l *zap.Logger) (*gorm.DB, error) {
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Log:                l,
	})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	l.Info("database connected", zap.String("driver", cfg.DB.Driver))
	if cfg.DB.AutoMigrate {
		if err := repo.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		l.Info("automigrate done")
	}
	return db, nil
}

// New 构建 api 与 admin 共用的依赖图
func New(ctx context.Context, cfg *config.Config, l *zap.Logger) (*App, error) {
	db, err := OpenDB(ctx, cfg, l)
	if err != nil {
		return nil, err
	}

	var rc *cache.Cache
	if cfg.Redis.Addr != "" {
		rc = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := rc.Ping(ctx); err != nil {
			// 缓存不可用时照常启动，仅失去吊销与目录缓存
			l.Warn("redis unavailable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	jwter := &auth.JWTer{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		TTL:    time.Duration(cfg.JWT.AccessTokenTTLMin) * time.Minute,
	}

	cat := catalog.New(catalog.Options{
		ClientID:     cfg.Catalog.ClientID,
		ClientSecret: cfg.Catalog.ClientSecret,
		RedirectURI:  cfg.Catalog.RedirectURI,
		TokenURL:     cfg.Catalog.TokenURL,
		BaseURL:      cfg.Catalog.BaseURL,
		Timeout:      time.Duration(cfg.Catalog.TimeoutSec) * time.Second,
		Cache:        rc,
		CacheTTL:     time.Duration(cfg.Redis.CatalogTTLSec) * time.Second,
	})

	// 未配置对象存储时上传接口返回 500，其余功能不受影响
	var signer handler.UploadSigner
	s3, err := storage.New(storage.Options{
		Endpoint:      cfg.Storage.Endpoint,
		Region:        cfg.Storage.Region,
		Bucket:        cfg.Storage.Bucket,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		TTL:           time.Duration(cfg.Storage.UploadTTLSec) * time.Second,
	})
	if err != nil {
		l.Warn("object storage disabled", zap.Error(err))
	} else {
		signer = s3
	}

	store := repo.NewStore(db)
	users := service.NewUserService(store, jwter, l).WithRevoker(rc).WithAccounts(cat)
	records := service.NewRecordService(store, cat, service.NewNotifier(store.Users(), l), l)

	mods := router.NewRegistry(
		handler.NewUserHandler(users, l),
		handler.NewRecordHandler(records, l),
		handler.NewCatalogHandler(cat, users, l),
		handler.NewMessageHandler(service.NewMessageService(store, l), l),
		handler.NewTradeHandler(service.NewTradeService(store, l), l),
		handler.NewUploadHandler(signer, l),
		handler.NewAdminHandler(users, records, l),
	)

	checks := map[string]router.HealthCheck{"db": func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}
	if rc != nil {
		checks["redis"] = rc.Ping
	}

	return &App{
		Cfg:   cfg,
		Log:   l,
		DB:    db,
		Cache: rc,
		JWT:   jwter,
		Deps: router.Deps{
			Log:     l,
			HTTP:    cfg.App.HTTP,
			JWT:     jwter,
			Revoker: rc,
			Modules: mods,
			Checks:  checks,
		},
	}, nil
}

func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Log.Warn("redis close", zap.Error(err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
