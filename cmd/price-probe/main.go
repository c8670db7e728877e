// Command price-probe fetches one listing page and prints the asking price
// the watcher would read from it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"prospect-portal/internal/config"
	"prospect-portal/internal/listing"
	"prospect-portal/internal/logger"
)

func main() {
	configPath := flag.String("config", config.GetEnv("CONFIG_PATH", "config/config.yaml"), "config file")
	headless := flag.Bool("headless", false, "allow the headless browser fallback")
	timeout := flag.Duration("timeout", 90*time.Second, "overall timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: price-probe [flags] <listing-url>")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	log := logger.New("debug", "console")
	defer func() { _ = log.Sync() }()

	fetcherCfg := cfg.Watcher.ToFetcherConfig()
	fetcherCfg.Headless = *headless
	fetcherCfg.HostDelay = 0
	fetcherCfg.HostJitter = 0
	fetcher := listing.NewFetcher(fetcherCfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	quote, err := fetcher.FetchPrice(ctx, flag.Arg(0))
	if err != nil {
		log.Error("probe failed", zap.String("url", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(quote); err != nil {
		log.Error("failed to encode quote", zap.Error(err))
		os.Exit(1)
	}
}
