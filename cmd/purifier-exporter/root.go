package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cirocosta/purifier-exporter/pkg/collector"
	"github.com/cirocosta/purifier-exporter/pkg/config"
	"github.com/cirocosta/purifier-exporter/pkg/exporter"
	"github.com/cirocosta/purifier-exporter/pkg/miot"
	"github.com/cirocosta/purifier-exporter/pkg/poller"
)

type command struct {
	telemetryPath string
	port          int
}

func (c *command) Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "purifier-exporter <config-file>",
		Short:         "Prometheus exporter for Xiaomi air purifier metrics",
		Args:          configFileArg,
		RunE:          c.RunE,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.Flags().IntVar(&c.port, "port",
		0, "port to serve metrics on, overriding listening_port "+
			"from the config file")

	cmd.Flags().StringVar(&c.telemetryPath, "telemetry-path",
		"/metrics", "endpoint at which prometheus metrics are served")

	cmd.AddCommand(versionCmd)

	return cmd
}

// configFileArg requires the single positional argument, naming it in the
// error so that a bare invocation tells what's missing.
//
func configFileArg(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one argument, the path to "+
			"the <config-file>, got %d", len(args))
	}

	return nil
}

func (c *command) RunE(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	port := cfg.ListeningPort
	if cmd.Flags().Changed("port") {
		if c.port <= 0 || c.port > 65535 {
			return fmt.Errorf("invalid port %d", c.port)
		}

		port = c.port
	}

	zapLogger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("zap new development: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	log := zapr.NewLogger(zapLogger)

	registry, err := collector.NewRegistry(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("new registry: %w", err)
	}

	targets, err := newTargets(cfg, log)
	if err != nil {
		return fmt.Errorf("new targets: %w", err)
	}

	p, err := poller.New(registry, cfg.PollingInterval, targets,
		poller.WithFetchTimeout(cfg.FetchTimeout),
		poller.WithLogger(log.WithName("poller")),
	)
	if err != nil {
		return fmt.Errorf("new poller: %w", err)
	}

	prometheusExporter, err := exporter.New(
		exporter.WithBindAddress(fmt.Sprintf(":%d", port)),
		exporter.WithTelemetryPath(c.telemetryPath),
		exporter.WithLogger(log.WithName("exporter")),
	)
	if err != nil {
		return fmt.Errorf("new exporter: %w", err)
	}
	defer prometheusExporter.Close()

	if err := prometheusExporter.Listen(); err != nil {
		return fmt.Errorf("exporter listen: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := prometheusExporter.Run(ctx); err != nil {
			return fmt.Errorf("prometheus exporter run: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		if err := p.Run(ctx); err != nil {
			return fmt.Errorf("poller run: %w", err)
		}

		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("terminated")
		return nil
	}

	return err
}

func newTargets(cfg *config.Config, log logr.Logger) ([]poller.Target, error) {
	httpClient := &http.Client{Timeout: cfg.FetchTimeout}

	targets := make([]poller.Target, 0, len(cfg.Devices))

	for _, d := range cfg.Devices {
		client, err := miot.NewClientFor(d, miot.WithHTTPClient(httpClient))
		if err != nil {
			return nil, fmt.Errorf("client for '%s': %w", d.Name, err)
		}

		log.Info("device configured",
			"device", d.Name,
			"address", d.Address,
			"model", d.Model,
			"fields", len(client.Capabilities()))

		targets = append(targets, poller.Target{
			Name:   d.Name,
			Client: client,
		})
	}

	return targets, nil
}
