// graphdump fetches one graph window and prints the derived data as JSON.
// Useful for inspecting alignment, integrals and smoothing without the UI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sakumikko/lammonsaato-sub000/internal/cache"
	"github.com/sakumikko/lammonsaato-sub000/internal/config"
	"github.com/sakumikko/lammonsaato-sub000/internal/derived"
	"github.com/sakumikko/lammonsaato-sub000/internal/hass"
	"github.com/sakumikko/lammonsaato-sub000/internal/history"
	"github.com/sakumikko/lammonsaato-sub000/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	entities := flag.String("entities", "", "Comma-separated entity ids to chart")
	window := flag.Duration("window", 24*time.Hour, "History window ending now")
	poolSensor := flag.String("pool-sensor", string(derived.EntPoolTemp), "Pool temperature sensor to smooth (empty to skip)")
	heatingSensor := flag.String("heating-sensor", string(derived.EntPoolHeatingOn), "Boolean sensor gating the smoother")
	integralEntity := flag.String("integral", "", "Entity whose rolling integral to derive")
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

	log := logger.New(cfg.Logging.Level).Named("graphdump")
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	stateCache := cache.New()
	client := hass.NewClient(cfg.ClientConfig(), stateCache, log.Named("hass"), nil)

	connected := make(chan struct{}, 1)
	client.SubscribeConnection(func(ch hass.ConnectionChange) {
		if ch.Connected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	go client.Run(ctx)
	defer client.Close()

	select {
	case <-connected:
	case <-ctx.Done():
		log.Fatalw("connection timed out")
	}

	req := history.GraphRequest{
		Ranges:        cfg.GraphRanges(),
		End:           time.Now(),
		PoolSensor:    hass.EntityID(*poolSensor),
		HeatingSensor: hass.EntityID(*heatingSensor),
	}
	req.Start = req.End.Add(-*window)
	for _, id := range strings.Split(*entities, ",") {
		if id = strings.TrimSpace(id); id != "" {
			req.Entities = append(req.Entities, hass.EntityID(id))
		}
	}
	if len(req.Entities) == 0 {
		req.Entities = []hass.EntityID{derived.EntPoolTemp, derived.EntSupplyTemp, derived.EntOutdoorTemp}
	}
	if *integralEntity != "" {
		req.IntegralEntity = hass.EntityID(*integralEntity)
	}

	svc := history.NewService(client, cfg.SmoothConfig(), log, nil)
	data, err := svc.FetchGraph(ctx, req)
	if err != nil {
		log.Fatalw("fetch graph", "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		log.Fatalw("encode output", "error", err)
	}
}
