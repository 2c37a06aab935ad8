// Package main runs backtests from the command line: one prioritization
// method or a sweep over several, with optional markdown, Arrow and
// ClickHouse outputs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meanrev-backtest/services/arrowexport"
	ch "meanrev-backtest/services/clickhouse"
	"meanrev-backtest/services/config"
	"meanrev-backtest/services/engine"
	"meanrev-backtest/services/marketdata"
	"meanrev-backtest/services/report"
)

type runOutcome struct {
	method  engine.Method
	result  *engine.Result
	summary report.Summary
	err     error
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	methodFlag := flag.String("method", "", "prioritization method, comma list, or ALL (default from config)")
	startFlag := flag.String("start", "", "simulation start date YYYY-MM-DD")
	endFlag := flag.String("end", "", "simulation end date YYYY-MM-DD")
	writeReport := flag.Bool("report", false, "write a markdown report per run")
	arrowDir := flag.String("arrow-dir", "", "write Arrow IPC snapshot/trade files into this directory")
	save := flag.Bool("save", false, "persist runs to ClickHouse")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *startFlag != "" {
		cfg.Simulation.Start = *startFlag
	}
	if *endFlag != "" {
		cfg.Simulation.End = *endFlag
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	methods, err := resolveMethods(*methodFlag, cfg.Simulation.Method)
	if err != nil {
		logger.Fatal("methods", zap.Error(err))
	}

	data, feed, err := loadMarketData(cfg, logger)
	if err != nil {
		logger.Fatal("market data", zap.Error(err))
	}
	logger.Info("market data loaded",
		zap.Int("tickers", len(data.Tickers())),
		zap.Int("sessions", len(data.Calendar())),
	)

	var store *ch.Store
	if *save {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err = ch.NewStore(ctx, cfg.ClickHouse, logger.Named("clickhouse"))
		cancel()
		if err != nil {
			logger.Fatal("clickhouse", zap.Error(err))
		}
		defer store.Close()
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		err = store.EnsureSchema(ctx)
		cancel()
		if err != nil {
			logger.Fatal("clickhouse schema", zap.Error(err))
		}
	}

	// runs only share read-only data, so the sweep is safe to parallelize.
	outcomes := make([]runOutcome, len(methods))
	var wg sync.WaitGroup
	for i, method := range methods {
		wg.Add(1)
		go func(i int, method engine.Method) {
			defer wg.Done()
			outcomes[i] = runOne(cfg, method, data, feed, logger)
		}(i, method)
	}
	wg.Wait()

	printSweepTable(outcomes)

	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		runID := uuid.New().String()
		if *writeReport {
			if path, err := writeMarkdown(cfg, o); err != nil {
				logger.Error("report", zap.Error(err))
			} else {
				logger.Info("report written", zap.String("path", path))
			}
		}
		if *arrowDir != "" {
			if err := writeArrow(*arrowDir, runID, o); err != nil {
				logger.Error("arrow export", zap.Error(err))
			}
		}
		if store != nil {
			ec, _ := configFor(cfg, o.method)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := store.SaveRun(ctx, runID, ec, o.result)
			cancel()
			if err != nil {
				logger.Error("persist", zap.String("run_id", runID), zap.Error(err))
			}
		}
	}
}

func resolveMethods(flagValue, configured string) ([]engine.Method, error) {
	raw := flagValue
	if raw == "" {
		raw = configured
	}
	if strings.EqualFold(raw, "ALL") {
		return engine.AllMethods, nil
	}
	var out []engine.Method
	for _, part := range strings.Split(raw, ",") {
		m, err := engine.ParseMethod(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func configFor(cfg config.Config, method engine.Method) (engine.Config, error) {
	cfg.Simulation.Method = string(method)
	return cfg.Engine()
}

func runOne(cfg config.Config, method engine.Method, data *engine.Dataset, feed *engine.RegimeFeed, logger *zap.Logger) runOutcome {
	o := runOutcome{method: method}
	ec, err := configFor(cfg, method)
	if err != nil {
		o.err = err
		return o
	}
	res, err := engine.New(ec, data, feed, logger.Named(string(method))).Run()
	if err != nil {
		o.err = err
		return o
	}
	o.result = res
	o.summary, o.err = report.BuildSummary(res.Snapshots, res.Trades)
	return o
}

func printSweepTable(outcomes []runOutcome) {
	fmt.Println()
	fmt.Printf("%-10s %14s %10s %12s %8s %8s\n",
		"METHOD", "FINAL VALUE", "RETURN", "ANNUALIZED", "TRADES", "WINRATE")
	for _, o := range outcomes {
		if o.err != nil {
			fmt.Printf("%-10s failed: %v\n", o.method, o.err)
			continue
		}
		s := o.summary
		note := ""
		if o.result.Insolvent {
			note = "  MARGIN CALL"
		}
		fmt.Printf("%-10s %14.2f %9.2f%% %11.2f%% %8d %7.2f%%%s\n",
			o.method, s.FinalValue, s.TotalReturnPct, s.AnnualizedReturnPct,
			s.TotalTrades, s.WinRatePct, note)
	}
	fmt.Println()
}

func writeMarkdown(cfg config.Config, o runOutcome) (string, error) {
	sim := cfg.Simulation
	doc := report.Document{
		Config: []report.ConfigLine{
			{Key: "METHOD", Value: string(o.method)},
			{Key: "INITIAL_CAPITAL", Value: fmt.Sprintf("%.2f", sim.InitialCapital)},
			{Key: "LEVERAGE_FACTOR", Value: fmt.Sprintf("%.1f", sim.LeverageFactor)},
			{Key: "MAX_POSITIONS", Value: fmt.Sprintf("%d", sim.MaxPositions)},
			{Key: "TIME_STOP_DAYS", Value: fmt.Sprintf("%d", sim.TimeStopDays)},
			{Key: "VOL_CEILING", Value: fmt.Sprintf("%.1f", sim.VolCeiling)},
			{Key: "ENTRY_THRESHOLD", Value: fmt.Sprintf("%.2f", sim.EntryThreshold)},
			{Key: "ALLOW_SHORTS", Value: fmt.Sprintf("%t", sim.AllowShorts)},
			{Key: "START_DATE", Value: sim.Start},
			{Key: "END_DATE", Value: sim.End},
		},
		Summary:  o.summary,
		Periodic: report.PeriodicReturns(o.result.Snapshots),
		Switches: o.result.Switches,
		Trades:   o.result.Trades,
		Open:     o.result.OpenPositions,
	}
	if ec, err := configFor(cfg, o.method); err == nil {
		doc.End = ec.End
	}
	base := fmt.Sprintf("%s-%s-%s", sim.Start, sim.End, strings.ToLower(string(o.method)))
	base = strings.Trim(strings.ReplaceAll(base, "--", "-"), "-")
	return report.Write(cfg.Report.OutputDir, base, doc)
}

func writeArrow(dir, runID string, o runOutcome) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	exporter := arrowexport.NewExporter()
	snaps, err := exporter.SnapshotsIPC(runID, o.result.Snapshots)
	if err != nil {
		return err
	}
	name := strings.ToLower(string(o.method))
	if err := os.WriteFile(filepath.Join(dir, name+"-snapshots.arrow"), snaps, 0o644); err != nil {
		return err
	}
	if len(o.result.Trades) == 0 {
		return nil
	}
	trades, err := exporter.TradesIPC(runID, o.result.Trades)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+"-trades.arrow"), trades, 0o644)
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}

func loadMarketData(cfg config.Config, logger *zap.Logger) (*engine.Dataset, *engine.RegimeFeed, error) {
	bars, err := marketdata.LoadBarDir(cfg.Data.BarsDir)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Data.TickersFile != "" {
		universe, err := marketdata.LoadTickerList(cfg.Data.TickersFile)
		if err != nil {
			return nil, nil, err
		}
		allowed := make(map[string]bool, len(universe))
		for _, t := range universe {
			allowed[t] = true
		}
		var missing []string
		for t := range bars {
			if !allowed[t] {
				delete(bars, t)
			}
		}
		for _, t := range universe {
			if _, ok := bars[t]; !ok {
				missing = append(missing, t)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			logger.Warn("universe tickers without bar files", zap.Strings("tickers", missing))
		}
	}
	ds, err := marketdata.BuildDataset(bars)
	if err != nil {
		return nil, nil, err
	}

	var src marketdata.FeedSources
	for _, f := range []struct {
		name string
		path string
		dst  *[]marketdata.Bar
	}{
		{"benchmark", cfg.Data.BenchmarkFile, &src.Benchmark},
		{"vol index", cfg.Data.VolIndexFile, &src.VolIndex},
		{"base rate", cfg.Data.BaseRateFile, &src.BaseRate},
	} {
		if f.path == "" {
			logger.Warn("feed series not configured, filter disabled", zap.String("series", f.name))
			continue
		}
		series, err := marketdata.LoadBars(f.path)
		if err != nil {
			return nil, nil, err
		}
		*f.dst = series
	}
	return ds, marketdata.BuildRegimeFeed(ds.Calendar(), src), nil
}
