// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LeeDigitalWorks/subsync/pkg/billing"
	"github.com/LeeDigitalWorks/subsync/pkg/config"
	"github.com/LeeDigitalWorks/subsync/pkg/credentials"
	"github.com/LeeDigitalWorks/subsync/pkg/directory"
	"github.com/LeeDigitalWorks/subsync/pkg/engine"
	"github.com/LeeDigitalWorks/subsync/pkg/logger"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one settlement and reconciliation pass",
	Long: `Run one full sync against the configured billing store and panel.

Settlement runs first: accrued panel traffic counters are credited to the
billing store and reset. Reconciliation follows: panel entries are created
for newly eligible accounts and removed for churned ones. The command prints
a summary and exits; schedule it externally (cron, systemd timer).`,
	Run: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("dry_run", false, "Compute and log the reconciliation plan without writing")
}

func runSync(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configDir, "config")
	if err != nil {
		logger.Fatal().Err(err).Msg("load configuration")
	}
	if cmd.Flags().Changed("dry_run") {
		cfg.Sync.DryRun, _ = cmd.Flags().GetBool("dry_run")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := billing.NewStore(billing.Config{
		DSN:             cfg.Billing.DSN,
		GraceBytes:      cfg.Sync.GraceBytes,
		DiscountFactor:  cfg.Sync.DiscountFactor,
		MaxOpenConns:    cfg.Billing.MaxOpenConns,
		MaxIdleConns:    cfg.Billing.MaxIdleConns,
		ConnMaxLifetime: cfg.Billing.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open billing store")
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		// Not fatal here: settlement degrades to zero updates and
		// reconciliation may still run from the cached eligible set.
		logger.Warn().Err(err).Msg("billing store unreachable")
	}

	dir, err := newDirectoryClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open directory backend")
	}
	defer dir.Close()

	var cache engine.EligibleCache
	if cfg.Cache.Enabled {
		c, err := billing.NewEligibleCache(billing.CacheConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("eligible-set cache unavailable, continuing without it")
		} else {
			defer c.Close()
			cache = c
		}
	}

	creds := credentials.NewGenerator(linkServers(cfg))

	settler := engine.NewSettler(store, dir)
	reconciler := engine.NewReconciler(store, dir, creds, cache, cfg.Sync.DryRun)

	var hook func(context.Context) error
	if ps, ok := dir.(directory.PostSettler); ok {
		hook = ps.PostSettlement
	}

	summary, err := engine.NewOrchestrator(settler, reconciler, hook).Run(ctx)

	fmt.Printf("Sync completed - Traffic updated: %d, Users added: %d, Users removed: %d\n",
		summary.TrafficUpdated, summary.UsersAdded, summary.UsersRemoved)

	if err != nil {
		logger.Error().Err(err).Msg("sync finished with errors")
		os.Exit(1)
	}
}

// newDirectoryClient builds the configured panel backend.
func newDirectoryClient(cfg config.Config) (directory.Client, error) {
	switch cfg.Panel.Backend {
	case config.BackendSQLite:
		return directory.NewSQLiteClient(directory.SQLiteConfig{
			Path:           cfg.Panel.SQLitePath,
			RestartCommand: cfg.Panel.RestartCommand,
			Inbounds:       cfg.Links.Inbounds,
		})
	default:
		return directory.NewAPIClient(directory.APIConfig{
			BaseURL:  cfg.Panel.BaseURL,
			Token:    cfg.Panel.Token,
			Timeout:  cfg.Panel.Timeout,
			WriteRPS: cfg.Panel.WriteRPS,
			Inbounds: cfg.Links.Inbounds,
		}), nil
	}
}

// linkServers translates configured servers for link generation.
func linkServers(cfg config.Config) []credentials.Server {
	servers := make([]credentials.Server, 0, len(cfg.Links.Servers))
	for _, s := range cfg.Links.Servers {
		servers = append(servers, credentials.Server{
			Name:         s.Name,
			Address:      s.Address,
			Port:         s.Port,
			Obfs:         s.Obfs,
			ObfsPassword: s.ObfsPassword,
		})
	}
	return servers
}
