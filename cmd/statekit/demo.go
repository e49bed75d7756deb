package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/statekit-dev/statekit/internal/config"
	"github.com/statekit-dev/statekit/pkg/inspect"
	"github.com/statekit-dev/statekit/pkg/metrics"
	"github.com/statekit-dev/statekit/pkg/prop"
	"github.com/statekit-dev/statekit/pkg/registry"
)

func demoCmd() *cobra.Command {
	var (
		configDir string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a shared-state demo with a live inspector",
		Long: `Runs two demo components sharing a counter and a clock through a
registry, and serves the inspector API over it. Connect a WebSocket
client to /ws to watch writes live, or curl /api/keys for a snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Inspector.Port = port
			}
			return runDemo(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configDir, "config", "c", ".", "directory containing statekit.json")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "inspector port (overrides config)")
	return cmd
}

func runDemo(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	reg := registry.New(registry.WithLogger(logger))

	inspectOpts := []inspect.Option{inspect.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		metrics.Instrument(reg, metrics.WithNamespace(cfg.Metrics.Namespace))
		inspectOpts = append(inspectOpts, inspect.WithMetricsHandler(promhttp.Handler()))
	}
	if cfg.Inspector.Tracing {
		inspectOpts = append(inspectOpts, inspect.WithTracing(cfg.Name))
	}

	insp := inspect.NewServer(reg, inspectOpts...)
	defer insp.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Two components sharing state: a ticker writes, a watcher reads.
	ticker := newDemoTicker(reg, logger)
	watcher := newDemoWatcher(reg, logger)
	go ticker.run(ctx)
	defer reg.UnregisterComponent(watcher)

	server := &http.Server{
		Addr:    cfg.InspectorAddr(),
		Handler: insp,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("inspector listening", "addr", cfg.InspectorAddr(), "app", cfg.Name)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// demoTicker writes the shared counter and clock keys once per second.
type demoTicker struct {
	count prop.Of[int]
	now   *prop.Prop
	log   *slog.Logger
}

func newDemoTicker(reg *registry.Registry, log *slog.Logger) *demoTicker {
	t := &demoTicker{log: log}
	t.count = prop.As[int](prop.Bind(reg, t, "count", prop.WithKey("demo.count")))
	t.now = prop.Bind(reg, t, "now", prop.WithKey("demo.now"))
	return t
}

// RequestUpdate implements registry.Component. The ticker only writes, so
// it never subscribes and this is not expected to fire.
func (t *demoTicker) RequestUpdate(property string, oldValue any) {}

func (t *demoTicker) run(ctx context.Context) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			n++
			t.count.Set(n)
			t.now.Set(now.Format(time.RFC3339))
		}
	}
}

// demoWatcher reads the shared keys and logs the update requests it
// receives for them.
type demoWatcher struct {
	log *slog.Logger
}

func newDemoWatcher(reg *registry.Registry, log *slog.Logger) *demoWatcher {
	w := &demoWatcher{log: log}

	// Reading subscribes the watcher to both keys.
	count := prop.Bind(reg, w, "count", prop.WithKey("demo.count"))
	now := prop.Bind(reg, w, "now", prop.WithKey("demo.now"))
	count.Get()
	now.Get()
	return w
}

// RequestUpdate implements registry.Component.
func (w *demoWatcher) RequestUpdate(property string, oldValue any) {
	w.log.Info("watcher refresh", "property", property, "old", oldValue)
}
