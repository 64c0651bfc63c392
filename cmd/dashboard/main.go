package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sakumikko/lammonsaato-sub000/internal/cache"
	"github.com/sakumikko/lammonsaato-sub000/internal/config"
	"github.com/sakumikko/lammonsaato-sub000/internal/derived"
	"github.com/sakumikko/lammonsaato-sub000/internal/hass"
	"github.com/sakumikko/lammonsaato-sub000/internal/logger"
	"github.com/sakumikko/lammonsaato-sub000/internal/observability"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level).Named("dashboard")
	defer log.Sync()

	metrics := observability.NewMetrics("")

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			log.Infow("starting metrics server", "addr", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil && err != http.ErrServerClosed {
				log.Errorw("metrics server error", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One-shot REST probe before committing to the websocket loop.
	if cfg.HomeAssistant.RESTURL != "" {
		probeCtx, probeCancel := context.WithTimeout(ctx, 10*time.Second)
		rest := hass.NewRESTClient(cfg.HomeAssistant.RESTURL, cfg.HomeAssistant.Token)
		if err := rest.Ping(probeCtx); err != nil {
			log.Warnw("connectivity probe failed, continuing anyway", "error", err)
		}
		probeCancel()
	}

	stateCache := cache.New()
	client := hass.NewClient(cfg.ClientConfig(), stateCache, log.Named("hass"), metrics)

	client.SubscribeConnection(func(ch hass.ConnectionChange) {
		if ch.Connected {
			log.Infow("connected", "entities", stateCache.Len())
		} else {
			log.Warnw("disconnected", "reason", ch.Reason)
		}
	})

	// Rebuild the domain projection on every applied push.
	client.SubscribeStates(func(s hass.Snapshot) {
		st := derived.Build(stateCache)
		metrics.DerivedBuilds.Inc()
		metrics.CacheEntities.Set(float64(stateCache.Len()))
		metrics.CacheVersion.Set(float64(stateCache.Version()))
		log.Debugw("state updated",
			"entity", s.EntityID,
			"pool_temp", st.Pool.Temperature,
			"pump_running", st.HeatPump.Running)
	})

	go client.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("shutting down", "signal", sig.String())

	cancel()
	if err := client.Close(); err != nil {
		log.Errorw("close client", "error", err)
	}
}
