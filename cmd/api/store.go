package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tara-call/backend/internal/config"
	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
	"github.com/zhouzirui/tara-call/backend/internal/storage/postgrest"
	"github.com/zhouzirui/tara-call/backend/internal/storage/sqlstore"
)

// openFeedbackStore 在进程启动时构造唯一的反馈存储，由调用方在退出时关闭。
func openFeedbackStore(ctx context.Context, cfg config.StorageConfig) (feedback.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgREST:
		if !cfg.PostgRESTReady() {
			log.Warn().Msg("Supabase 地址或密钥未配置，反馈仅保存在内存中")
			return feedback.NewMemoryStore(), nil
		}
		store, err := postgrest.New(postgrest.Config{
			BaseURL: cfg.SupabaseURL,
			APIKey:  cfg.SupabaseKey,
			Table:   cfg.Table,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres, config.DriverSQLite:
		store, err := openSQLStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		return feedback.NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unsupported feedback store %q", cfg.Driver)
	}
}

func openSQLStore(ctx context.Context, cfg config.StorageConfig) (*sqlstore.Store, error) {
	if cfg.Driver == config.DriverPostgres {
		return sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	return sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
}

// migrate 只对 SQL 存储生效，PostgREST 的表由 Supabase 管理。
func migrate(ctx context.Context, cfg config.StorageConfig) error {
	if cfg.Driver != config.DriverPostgres && cfg.Driver != config.DriverSQLite {
		return errors.Errorf("migrate needs FEEDBACK_STORE=postgres or sqlite, got %q", cfg.Driver)
	}

	store, err := openSQLStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return errors.Wrap(store.Migrate(ctx), "apply migrations")
}
