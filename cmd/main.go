package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pancudaniel7/blockwatch-service/internal/infra"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "blockwatch",
		Short:        "Watch an Ethereum node and apply new blocks to a Redis index and a Kafka topic",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return infra.LoadConfig(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the control API and start watching when watcher.auto_start is set",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), false)
			},
		},
		&cobra.Command{
			Use:   "replay",
			Short: "Serve the control API and re-apply blocks from the configured start without publishing",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), true)
			},
		},
	)
	return root
}

func run(ctx context.Context, replay bool) error {
	logger := applog.NewAppDefaultLogger()
	defer func() { _ = logger.Close() }()
	v := validator.New()

	server := fiber.New(fiber.Config{AppName: viper.GetString("service.name")})
	infra.InitMetrics(server)

	reader, err := infra.InitReader(logger, v)
	if err != nil {
		return err
	}
	defer reader.Close()

	store, err := infra.InitIndexStore(logger, v)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Ping(ctx); err != nil {
		return err
	}

	publisher, err := infra.InitBlockPublisher(logger, v)
	if err != nil {
		return err
	}
	defer publisher.Close()

	handler, err := infra.InitBlockHandler(logger, store, publisher, v)
	if err != nil {
		return err
	}

	watcher, err := infra.InitWatcher(logger, reader, handler)
	if err != nil {
		return err
	}
	infra.InitRoutes(server, logger, watcher)

	var wg sync.WaitGroup
	stopPprof := infra.StartPprof(logger, &wg)

	addr := viper.GetString("http.addr")
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	logger.Info("HTTP server listening", "addr", addr)

	switch {
	case replay:
		watcher.Replay()
	case viper.GetBool("watcher.auto_start"):
		watcher.Start()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-serveErr:
		if runErr != nil {
			logger.Error("HTTP server stopped", "err", runErr)
		}
	}

	watcher.Close()

	timeout := time.Duration(viper.GetInt("http.shutdown_timeout_seconds")) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", "err", err)
	}
	if err := stopPprof(shutdownCtx); err != nil {
		logger.Warn("pprof shutdown failed", "err", err)
	}
	wg.Wait()

	info := watcher.Info()
	logger.Info("Watcher stopped",
		"status", info.Status,
		"last_processed_block", info.LastProcessedBlockNumber,
		"handler_version", info.HandlerVersionName)
	return runErr
}
