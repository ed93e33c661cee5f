package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ygkn/video-sync-watch/config"
	"github.com/ygkn/video-sync-watch/metrics"
	"github.com/ygkn/video-sync-watch/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync relay",
	RunE:  runServe,
}

var (
	flagPort      int
	flagAccessKey string
)

func init() {
	registerServeFlags(serveCmd)
}

func registerServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&flagPort, "port", 0, "listen port (overrides PORT)")
	flags.StringVar(&flagAccessKey, "access-key", "", "shared access key (overrides ACCESS_KEY)")
}

func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = flagPort
	}
	if cmd.Flags().Changed("access-key") {
		cfg.Relay.AccessKey = flagAccessKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg.Log)

	if cfg.EnsureAccessKey() {
		log.Warn().Str("accessKey", cfg.Relay.AccessKey).Msg("no access key configured, generated one for this run")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(reg)

	relay := server.NewRelay(server.RelayOptions{
		AccessKey:      cfg.Relay.AccessKey,
		QueueSize:      cfg.Relay.QueueSize,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Recorder:       recorder,
		MetricsHandler: recorder.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           relay.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		relay.Run(ctx)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("server shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
