// Package main provides the pettrail CLI: a localhost treatment-logging
// engine with an offline operation queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"

	"github.com/pettrail/pettrail/internal/cache"
	"github.com/pettrail/pettrail/internal/clock"
	"github.com/pettrail/pettrail/internal/config"
	"github.com/pettrail/pettrail/internal/db"
	"github.com/pettrail/pettrail/internal/httpapi"
	"github.com/pettrail/pettrail/internal/kv"
	"github.com/pettrail/pettrail/internal/orchestrator"
	"github.com/pettrail/pettrail/internal/queue"
	"github.com/pettrail/pettrail/internal/remote"
	"github.com/pettrail/pettrail/internal/validate"
	"github.com/pettrail/pettrail/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

var errStoreDeleted = errors.New("local store deleted")

var (
	configPath string
	debug      bool
)

func main() {
	root := &cobra.Command{
		Use:     "pettrail",
		Short:   "Offline-tolerant treatment logging engine",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: <data-dir>/config.yaml)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(serveCmd(), statusCmd(), sweepCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		cfg := config.Default()
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to load config, using defaults")
		cfg = config.Default()
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	return cfg, nil
}

func openComponents(cfg *config.Config) (*db.Store, *orchestrator.Orchestrator, error) {
	store, err := db.NewStore(db.Config{Path: cfg.DBPath(), LogLevel: logger.Silent})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	var kvStore kv.Store = kv.NewSQLiteStore(store)
	if cfg.RedisAddr != "" {
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis for summary cache persistence")
		kvStore = kv.NewRedisStore(cfg.RedisAddr, "pettrail:")
	}

	clk := clock.System{}
	orc := orchestrator.New(
		validate.New(clk, validate.Options{DuplicateWindow: cfg.DuplicateWindow()}),
		remote.NewMemory(), // standalone mode; deployments inject the cloud-backed store
		cache.New(kvStore, clk),
		queue.New(store, clk, queue.Options{
			SoftCap: cfg.QueueSoftCap,
			HardCap: cfg.QueueHardCap,
			TTL:     cfg.OperationTTL(),
		}),
		clk,
		orchestrator.Options{
			MaxPerDaySessions: float64(cfg.MonthlyMaxPerDay),
			WriteTimeout:      cfg.WriteTimeout(),
		},
	)
	return store, orc, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// If the user wipes the data directory the whole stack is torn
			// down and rebuilt against a fresh store.
			for {
				err := serveOnce(ctx, cfg)
				if errors.Is(err, errStoreDeleted) {
					log.Info().Msg("restarting after store deletion")
					continue
				}
				return err
			}
		},
	}
}

func serveOnce(ctx context.Context, cfg *config.Config) error {
	store, orc, err := openComponents(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	serveCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	w, err := watcher.New(cfg.DBPath(), func() {
		cancel(errStoreDeleted)
	})
	if err != nil {
		return fmt.Errorf("create store watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("start store watcher: %w", err)
	}
	defer w.Stop()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.New(orc).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if cause := context.Cause(serveCtx); errors.Is(cause, errStoreDeleted) {
		return errStoreDeleted
	}
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show offline queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, orc, err := openComponents(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			size, err := orc.QueueSize(ctx)
			if err != nil {
				return err
			}
			warn, err := orc.ShouldShowWarning(ctx)
			if err != nil {
				return err
			}
			pending, err := orc.PendingOperations(ctx)
			if err != nil {
				return err
			}
			failed, err := orc.FailedOperations(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("queue size:    %d\n", size)
			fmt.Printf("pending:       %d\n", len(pending))
			fmt.Printf("failed:        %d\n", len(failed))
			fmt.Printf("near capacity: %v\n", warn)
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire old queued operations and stale cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, orc, err := openComponents(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			clk := clock.System{}
			q := queue.New(store, clk, queue.Options{TTL: cfg.OperationTTL()})
			swept, err := q.SweepExpired(ctx)
			if err != nil {
				return err
			}
			if err := orc.ClearExpiredCaches(ctx); err != nil {
				return err
			}

			fmt.Printf("expired operations removed: %d\n", swept)
			fmt.Println("stale cache entries removed")
			return nil
		},
	}
}
