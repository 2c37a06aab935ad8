// Package main installs daily bar CSV files into ClickHouse so the server
// and CLI can run without touching the filesystem.
package main

import (
	"context"
	"flag"
	"log"
	"sort"
	"time"

	"go.uber.org/zap"

	ch "meanrev-backtest/services/clickhouse"
	"meanrev-backtest/services/config"
	"meanrev-backtest/services/marketdata"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	barsDir := flag.String("bars", "", "directory of per-ticker daily CSVs (default from config)")
	tickersFile := flag.String("tickers", "", "universe file with blacklist section (default from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *barsDir != "" {
		cfg.Data.BarsDir = *barsDir
	}
	if *tickersFile != "" {
		cfg.Data.TickersFile = *tickersFile
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	bars, err := marketdata.LoadBarDir(cfg.Data.BarsDir)
	if err != nil {
		logger.Fatal("load bars", zap.Error(err))
	}
	if cfg.Data.TickersFile != "" {
		universe, err := marketdata.LoadTickerList(cfg.Data.TickersFile)
		if err != nil {
			logger.Fatal("load universe", zap.Error(err))
		}
		allowed := make(map[string]bool, len(universe))
		for _, t := range universe {
			allowed[t] = true
		}
		for t := range bars {
			if !allowed[t] {
				delete(bars, t)
			}
		}
	}
	if len(bars) == 0 {
		logger.Fatal("no bar series to ingest")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := ch.NewStore(ctx, cfg.ClickHouse, logger.Named("clickhouse"))
	cancel()
	if err != nil {
		logger.Fatal("clickhouse", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureSchema(ctx)
	cancel()
	if err != nil {
		logger.Fatal("schema", zap.Error(err))
	}

	tickers := make([]string, 0, len(bars))
	for t := range bars {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	total := 0
	for _, ticker := range tickers {
		series := bars[ticker]
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		err := store.SaveDailyBars(ctx, ticker, series)
		cancel()
		if err != nil {
			// non-fatal: keep going so one bad file does not sink the batch
			logger.Warn("ingest failed", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		total += len(series)
		logger.Info("ingested", zap.String("ticker", ticker), zap.Int("rows", len(series)))
	}
	logger.Info("done", zap.Int("tickers", len(bars)), zap.Int("rows", total))
}
