package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/blobstore"
	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/internal/platform/events"
	"github.com/ehr/patients/internal/platform/middleware"
	"github.com/ehr/patients/internal/platform/telemetry"
	"github.com/ehr/patients/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "patients-server",
		Short:        "Patient records API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(backupCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

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

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patients API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.StoreBackend, err)
	}
	defer store.close()
	logger.Info().Str("backend", store.backend).Msg("storage ready")

	metrics := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "patients-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	if store.counts != nil {
		metrics.RegisterPoolGauges(store.counts)
	}

	var cache middleware.CacheStore
	if cfg.RedisURL != "" {
		client, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		cache = middleware.NewRedisCacheStore(client, "patients:cache:", logger)
		logger.Info().Msg("using redis response cache")
	} else {
		mem := middleware.NewInMemoryCacheStore()
		mem.StartCleanup(ctx, time.Minute)
		cache = mem
	}

	deps := serverDeps{storage: store, cache: cache, metrics: metrics, logger: logger}
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsQueue, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		deps.events = pub
		logger.Info().Str("queue", cfg.EventsQueue).Msg("publishing change events")
	}

	e := newServer(cfg, deps)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
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
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run PostgreSQL migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot, list, restore and delete patient record backups",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Upload a snapshot of every patient record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackup(cmd.Context(), func(ctx context.Context, b *patient.Backup) error {
				info, err := b.Snapshot(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%d bytes, sha256 %s)\n", info.Key, info.Size, info.SHA256)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackup(cmd.Context(), func(ctx context.Context, b *patient.Backup) error {
				infos, err := b.List(ctx)
				if err != nil {
					return err
				}
				printBackups(cmd.OutOrStdout(), infos)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <key>",
		Short: "Insert records from a snapshot, skipping IDs that already exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackup(cmd.Context(), func(ctx context.Context, b *patient.Backup) error {
				res, err := b.Restore(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %d record(s), skipped %d existing, %d invalid.\n",
					res.Created, res.Skipped, res.Invalid)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackup(cmd.Context(), func(ctx context.Context, b *patient.Backup) error {
				if err := b.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

func withBackup(ctx context.Context, fn func(context.Context, *patient.Backup) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, closeFn, err := openBackup(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, b)
}

func openBackup(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*patient.Backup, func(), error) {
	if err := cfg.ValidateBackup(); err != nil {
		return nil, nil, err
	}
	blobs, err := blobstore.Open(ctx, blobConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s storage: %w", cfg.StoreBackend, err)
	}
	return patient.NewBackup(store.repo, blobs, logger), store.close, nil
}

func blobConfig(cfg *config.Config) blobstore.Config {
	return blobstore.Config{
		Driver:      cfg.BlobDriver,
		Dir:         cfg.BlobDir,
		S3Bucket:    cfg.BlobS3Bucket,
		S3Region:    cfg.BlobS3Region,
		S3Endpoint:  cfg.BlobS3Endpoint,
		S3PathStyle: cfg.BlobS3PathStyle,
	}
}
