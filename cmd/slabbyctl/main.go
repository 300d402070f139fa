// Command slabbyctl is the operator CLI for a slabby shop store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/slabby/internal/adapter/itemcodec"
	"github.com/rl1809/slabby/internal/adapter/storage"
	"github.com/rl1809/slabby/internal/bootstrap"
	"github.com/rl1809/slabby/internal/config"
	"github.com/rl1809/slabby/internal/core/service"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "slabbyctl",
	Short: "Inspect and maintain the slabby shop store",
	Long: `Inspect and maintain the slabby shop store.

Configuration is read from the environment (and .env) exactly as the
server reads it, so slabbyctl operates on the same database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.AddCommand(importCmd, shopCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// env is the opened store and service a subcommand runs against.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	repo   *storage.Repository
	svc    *service.CommerceService
	codec  *itemcodec.JSONCodec
}

func openEnv(ctx context.Context) (*env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	repo, err := bootstrap.OpenRepository(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	svc, err := bootstrap.NewService(cfg, repo, bootstrap.NewStandalone(), nil, logger)
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}

	closeFn := func() {
		_ = repo.Close()
		_ = logger.Sync()
	}
	return &env{cfg: cfg, logger: logger, repo: repo, svc: svc, codec: itemcodec.New()}, closeFn, nil
}
