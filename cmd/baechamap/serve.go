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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"baechamap/internal/api"
	"baechamap/internal/config"
	"baechamap/internal/dashboard"
	"baechamap/internal/logger"
	"baechamap/internal/maphost"
	"baechamap/internal/metrics"
	"baechamap/internal/model"
	"baechamap/internal/subscriber"
	"baechamap/internal/webhooks"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(cfg.Log.Level)
	log := logger.New("main")
	metrics.RegisterDefault()

	ch, err := newChannel(cfg.Upstream)
	if err != nil {
		return err
	}
	sub := subscriber.New(ch, subscriber.Options{
		DispatchRate:  cfg.Dashboard.DispatchRatePerSec,
		DispatchBurst: cfg.Dashboard.DispatchBurst,
	}, logger.New("subscriber"))
	defer func() {
		if err := sub.Close(); err != nil {
			log.Errorf("subscriber close: %v", err)
		}
	}()

	broker, closeBroker, err := newBroker(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer closeBroker()

	opts := dashboard.Options{
		SuccessDisplay: cfg.Dashboard.SuccessDisplay(),
		Map: maphost.Options{
			Center: model.LatLng{Lat: cfg.Map.CenterLat, Lng: cfg.Map.CenterLng},
			Zoom:   cfg.Map.Zoom,
		},
		Sink: api.FrameRelay{Broker: broker},
	}
	var hooks *webhooks.Queue
	if len(cfg.Webhooks.Targets) > 0 {
		hooks = webhooks.NewQueue()
		targets := make([]webhooks.Target, 0, len(cfg.Webhooks.Targets))
		for _, t := range cfg.Webhooks.Targets {
			targets = append(targets, webhooks.Target{URL: t.URL, Secret: t.Secret})
		}
		opts.Notifier = webhooks.NewPublisher(hooks, targets)
		worker := webhooks.NewWorker(hooks, cfg.Webhooks.MaxAttempts, logger.New("webhooks"))
		worker.Start()
		defer close(worker.Stop)
	}
	dash := dashboard.New(sub, opts, logger.New("dashboard"))

	srv := api.NewServer(dash, broker, hooks, logger.New("api"))
	srv.Info = cfg.Public()
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sub.Run(gctx) })
	g.Go(func() error { return dash.Run(gctx) })
	g.Go(func() error { return srv.Relay().Run(gctx) })
	g.Go(func() error {
		log.Infof("listening on %s (upstream %s)", cfg.HTTP.Addr, cfg.Upstream.Transport)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = sub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	log.Infof("stopped")
	return err
}

func newChannel(cfg config.UpstreamConfig) (subscriber.Channel, error) {
	switch cfg.Transport {
	case config.TransportMQTT:
		return subscriber.NewMQTTChannel(subscriber.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		}, logger.New("mqtt")), nil
	case config.TransportWebsocket:
		header := http.Header{}
		for k, v := range cfg.Headers {
			header.Set(k, v)
		}
		return subscriber.NewWebsocketChannel(subscriber.WebsocketOptions{
			URL:        cfg.URL,
			Header:     header,
			BackoffMin: cfg.BackoffMin(),
			BackoffMax: cfg.BackoffMax(),
		}, logger.New("websocket")), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func newBroker(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (api.EventBroker, func(), error) {
	if cfg.URL == "" {
		return api.NewBroker(), func() {}, nil
	}
	rb, err := api.NewRedisBroker(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis broker: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rb.Ping(pctx); err != nil {
		log.Warnf("redis ping failed, frames will fan out once it is reachable: %v", err)
	}
	return rb, func() { _ = rb.Close() }, nil
}
