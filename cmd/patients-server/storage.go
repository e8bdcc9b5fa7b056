package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/migrations"
)

// storage is the repository selected by STORE_BACKEND together with what the
// health endpoint and metrics need to observe it.
type storage struct {
	repo    patient.Repository
	backend string
	check   db.Checker
	stats   func() interface{}
	counts  func() (total, idle int32)
	close   func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	switch cfg.StoreBackend {
	case config.BackendFile:
		repo, err := patient.NewFileRepository(cfg.DataFile, logger)
		if err != nil {
			return nil, err
		}
		return &storage{
			repo:    repo,
			backend: cfg.StoreBackend,
			check: db.PingFunc(func(ctx context.Context) error {
				_, err := repo.List(ctx)
				return err
			}),
			close: func() {},
		}, nil

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		applied, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		if applied > 0 {
			logger.Info().Int("applied", applied).Msg("database migrations applied")
		}
		return &storage{
			repo:    patient.NewPostgresRepo(pool),
			backend: cfg.StoreBackend,
			check:   db.PingFunc(pool.Ping),
			stats:   func() interface{} { return db.GetPoolStats(pool) },
			counts:  db.PoolCounts(pool),
			close:   pool.Close,
		}, nil

	case config.BackendSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlStorage(ctx, conn, cfg.StoreBackend, patient.SQLiteDialect)

	case config.BackendMySQL:
		conn, err := db.OpenMySQL(ctx, cfg.MySQLDSN, int(cfg.DBMaxConns), int(cfg.DBMinConns))
		if err != nil {
			return nil, err
		}
		return sqlStorage(ctx, conn, cfg.StoreBackend, patient.MySQLDialect)
	}
	return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
}

func sqlStorage(ctx context.Context, conn *sql.DB, backend string, dialect patient.Dialect) (*storage, error) {
	repo, err := patient.NewSQLRepository(ctx, conn, dialect)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &storage{
		repo:    repo,
		backend: backend,
		check:   db.PingFunc(conn.PingContext),
		stats:   func() interface{} { return conn.Stats() },
		counts: func() (int32, int32) {
			s := conn.Stats()
			return int32(s.OpenConnections), int32(s.Idle)
		},
		close: func() { conn.Close() },
	}, nil
}
