// Command backfill rebuilds derived inventory and inspects cross-ledger matching.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/xelth-com/orderledger/internal/cache"
	"github.com/xelth-com/orderledger/internal/catalog"
	"github.com/xelth-com/orderledger/internal/config"
	"github.com/xelth-com/orderledger/internal/database"
	"github.com/xelth-com/orderledger/internal/inventory"
	"github.com/xelth-com/orderledger/internal/ledger"
	"github.com/xelth-com/orderledger/internal/notify"
	"github.com/xelth-com/orderledger/internal/syncevent"
)

// env is everything a subcommand needs, opened once per invocation
type env struct {
	logger       *logrus.Logger
	db           *database.DB
	redis        *cache.Client
	catalog      *catalog.Catalog
	matcher      *ledger.WindowMatcher
	materializer *inventory.Materializer
}

func open(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	redisClient, err := cache.Connect(ctx, cfg.Redis, logger)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable; backfill runs without the distributed lock")
		redisClient = nil
	}

	registry := notify.NewRegistry(logger)
	if err := registry.Register(notify.NewLogChannel(logger)); err != nil {
		db.Close()
		return nil, err
	}
	events := syncevent.NewLog(db.DB, logger)
	cat := catalog.New(redisClient, logger)

	return &env{
		logger:  logger,
		db:      db,
		redis:   redisClient,
		catalog: cat,
		matcher: ledger.NewWindowMatcher(cfg.Reconcile.MatchWindow, cfg.Reconcile.LegacyIDFallback),
		materializer: inventory.NewMaterializer(
			cat,
			notify.NewService(registry, cfg.Reconcile.DedupWindow, logger),
			events,
			redisClient,
			cfg.Reconcile.BackfillLockTTL,
			logger,
		),
	}, nil
}

func (e *env) Close() {
	if err := e.redis.Close(); err != nil {
		e.logger.WithError(err).Warn("redis close error")
	}
	if err := e.db.Close(); err != nil {
		e.logger.WithError(err).Error("database close error")
	}
}

// withEnv adapts a subcommand body to cobra's RunE
func withEnv(fn func(ctx context.Context, e *env, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := open(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(ctx, e, cmd)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "backfill",
		Short:         "Inventory backfill and reconciliation diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSyncAllCmd(),
		newSyncOneCmd(),
		newMatchCmd(),
		newShowCmd(),
		newSeedCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
