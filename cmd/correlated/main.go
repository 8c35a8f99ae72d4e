// correlated: multi-source sensor correlation daemon.
// Accepts readings over WebSocket, MQTT or an upstream feed, correlates them
// and publishes results over HTTP, /ws/events and an optional webhook.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-correlate/internal/config"
	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/correlation"
	"github.com/teslashibe/go-correlate/pkg/feed"
	"github.com/teslashibe/go-correlate/pkg/gateway"
	"github.com/teslashibe/go-correlate/pkg/hub"
	"github.com/teslashibe/go-correlate/pkg/mqttsource"
	"github.com/teslashibe/go-correlate/pkg/notify"
	"github.com/teslashibe/go-correlate/pkg/web"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to YAML config file")
	addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
	debug      = flag.Bool("debug", false, "Enable debug logging and request logs")
	noStart    = flag.Bool("no-start", false, "Do not start the analysis scheduler at boot")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *debug {
		cfg.Server.Debug = true
		cfg.Log.Level = "debug"
	}
	if *noStart {
		cfg.Engine.AutoStart = false
	}
	log.Init(cfg.Log.Level)

	fmt.Println()
	fmt.Println("📡 correlated v" + version)
	fmt.Println("   Multi-source sensor correlation engine")
	fmt.Println()

	if err := run(cfg); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event fan-out
	events := hub.New("events")
	go events.Run(ctx)

	sinks := []correlation.Sink{
		notify.LogSink{Logger: log.With("component", "events")},
		notify.HubSink{Hub: events},
	}
	if cfg.Webhook.URL != "" {
		wh := notify.NewWebhookSink(cfg.Webhook.URL, cfg.Webhook.Timeout)
		go wh.Run(ctx)
		kinds := cfg.Webhook.Kinds
		if len(kinds) == 0 {
			kinds = notify.WebhookKinds
		}
		sinks = append(sinks, notify.Filter(wh, kinds...))
		log.Info("webhook enabled", "url", cfg.Webhook.URL, "kinds", kinds)
	}
	dispatcher := notify.NewDispatcher(cfg.Engine.QueueSize, sinks...)
	dispatchDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatchDone)
	}()

	engine, err := correlation.New(cfg.Engine.Config,
		correlation.WithLogger(log.With("component", "engine")),
		correlation.WithScorer(cfg.Engine.NewScorer()),
		correlation.WithSink(dispatcher),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	// Sensor inputs
	gw := gateway.New(engine)

	if cfg.MQTT.Broker != "" {
		src, err := mqttsource.New(cfg.MQTT, engine)
		if err != nil {
			return err
		}
		if err := src.Start(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer src.Stop()
	}

	if cfg.Feed.URL != "" {
		fc := feed.NewClient(cfg.Feed.URL, engine)
		fc.MinBackoff = cfg.Feed.MinBackoff
		fc.MaxBackoff = cfg.Feed.MaxBackoff
		go fc.Run(ctx)
	}

	srv := web.NewServer(web.Options{
		Addr:    cfg.Server.Addr,
		Version: version,
		Debug:   cfg.Server.Debug,
		Engine:  engine,
		Events:  events,
		Gateway: gw,
	})

	if cfg.Engine.AutoStart {
		if err := engine.Start(); err != nil {
			return err
		}
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server",
			"addr", cfg.Server.Addr,
			"events", "/ws/events",
			"sensors", "/ws/sensor/:id",
			"api", "/api/status")
		errc <- srv.Listen()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return errors.New("server stopped unexpectedly")
	}

	log.Info("shutting down")
	engine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "error", err)
	}

	cancel()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
	}
	log.Info("goodbye")
	return nil
}
