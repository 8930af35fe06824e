package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"exchange-rate-watcher/internal/adapter/cache"
	httpRouter "exchange-rate-watcher/internal/adapter/http"
	"exchange-rate-watcher/internal/adapter/parser"
	"exchange-rate-watcher/internal/adapter/repository"
	"exchange-rate-watcher/internal/config"
	"exchange-rate-watcher/internal/domain/model"
	"exchange-rate-watcher/internal/metrics"
	"exchange-rate-watcher/internal/service"
	"exchange-rate-watcher/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:          "rates-watcher",
		Short:        "Poll the daily exchange rate feed and serve the latest snapshot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := root.PersistentFlags()
	flags.String("strategy", "", "initial fetch strategy (JSON or XML)")
	flags.String("json-url", "", "JSON feed URL")
	flags.String("xml-url", "", "XML feed URL")
	flags.Duration("interval", 0, "poll interval")
	flags.Int("forced-failure-every", 0, "treat every Nth tick as failed, 0 disables")
	flags.Int("port", 0, "HTTP listen port")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")

	bindings := map[string]string{
		"poller.initial_strategy":     "strategy",
		"source.json_url":             "json-url",
		"source.xml_url":              "xml-url",
		"poller.interval":             "interval",
		"poller.forced_failure_every": "forced-failure-every",
		"server.port":                 "port",
		"log.level":                   "log-level",
		"log.format":                  "log-format",
	}
	for key, flag := range bindings {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the poller and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "fetch",
		Short: "Fetch one snapshot with the configured strategy and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			return runFetch(cmd.Context(), cfg, cmd)
		},
	})

	return root
}

func runServe(parent context.Context, v *viper.Viper) error {
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("Starting exchange rate watcher")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	snapshotCache := cache.NewMemoryCache(cfg.Cache.TTL, log)

	source := repository.NewStrategies(
		cfg.Source.JSONURL,
		cfg.Source.XMLURL,
		repository.NewHTTPTransport(cfg.Source.Timeout, log),
		appMetrics,
		log,
	)

	opts, err := service.NewOptions(cfg.Poller)
	if err != nil {
		return err
	}
	poller := service.NewPoller(source, opts, appMetrics, log.With("component", "poller"))
	poller.SubscribeSnapshots(snapshotCache.Store)
	poller.SubscribeFailures(func(failure model.FetchFailure) {
		log.Debug("Fetch failure observed", "strategy", failure.Strategy.String(), "tick", failure.Tick)
	})

	handler := httpRouter.NewHandler(poller, snapshotCache, log, appMetrics)
	router := httpRouter.NewRouter(handler, log, appMetrics, prometheus.DefaultGatherer)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := poller.Start(gctx); err != nil {
			return err
		}
		<-poller.Done()
		return nil
	})

	g.Go(func() error {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		poller.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Watcher exited with error", "error", err)
		return err
	}

	log.Info("Server exited")
	return nil
}

// runFetch performs a single fetch without fallback, for checking a feed by
// hand.
func runFetch(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

	strategy, err := cfg.Poller.Strategy()
	if err != nil {
		return err
	}

	source := repository.NewStrategies(
		cfg.Source.JSONURL,
		cfg.Source.XMLURL,
		repository.NewHTTPTransport(cfg.Source.Timeout, log),
		nil,
		log,
	)
	defer source.Close()

	log.Info("Fetching snapshot", "strategy", strategy.String(), "url", source.Endpoint(strategy))
	snapshot, err := source.Fetch(ctx, strategy)
	if err != nil {
		return err
	}

	body, err := parser.EncodeJSON(snapshot)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return err
}
