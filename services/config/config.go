// Package config loads the application configuration: defaults, then an
// optional YAML file, then environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"meanrev-backtest/services/engine"
)

type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Data       DataConfig       `yaml:"data"`
	Report     ReportConfig     `yaml:"report"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type SimulationConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	LeverageFactor float64 `yaml:"leverage_factor"`
	MaxPositions   int     `yaml:"max_positions"`
	MinTradeSize   float64 `yaml:"min_trade_size"`
	TimeStopDays   int     `yaml:"time_stop_days"`
	Method         string  `yaml:"method"`
	InitialRegime  string  `yaml:"initial_regime"`
	VolCeiling     float64 `yaml:"vol_ceiling"`
	EntryThreshold float64 `yaml:"entry_threshold"`
	PanicOnShutoff bool    `yaml:"panic_on_shutoff"`
	AllowShorts    bool    `yaml:"allow_shorts"`
	Start          string  `yaml:"start"`
	End            string  `yaml:"end"`
}

type DataConfig struct {
	BarsDir       string `yaml:"bars_dir"`
	TickersFile   string `yaml:"tickers_file"`
	BenchmarkFile string `yaml:"benchmark_file"`
	VolIndexFile  string `yaml:"vol_index_file"`
	BaseRateFile  string `yaml:"base_rate_file"`
}

type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Workers    int    `yaml:"workers"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default mirrors the production parameter set.
func Default() Config {
	return Config{
		Simulation: SimulationConfig{
			InitialCapital: 1700,
			LeverageFactor: 5,
			MaxPositions:   8,
			MinTradeSize:   5,
			TimeStopDays:   10,
			Method:         string(engine.MethodRSI),
			InitialRegime:  engine.Normal.String(),
			VolCeiling:     45,
			EntryThreshold: 1.02,
		},
		Data: DataConfig{
			BarsDir:     "data/bars",
			TickersFile: "data/tickers.csv",
		},
		Report: ReportConfig{OutputDir: "reports"},
		ClickHouse: ClickHouseConfig{
			Addr:     "127.0.0.1:9000",
			Database: "backtest",
			Username: "default",
		},
		Server:  ServerConfig{ListenAddr: ":8080", Workers: 4},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the effective configuration. An empty path skips the file step;
// a named file that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"BACKTEST_CLICKHOUSE_ADDR", &c.ClickHouse.Addr},
		{"BACKTEST_CLICKHOUSE_DATABASE", &c.ClickHouse.Database},
		{"BACKTEST_CLICKHOUSE_USERNAME", &c.ClickHouse.Username},
		{"BACKTEST_CLICKHOUSE_PASSWORD", &c.ClickHouse.Password},
		{"BACKTEST_LISTEN_ADDR", &c.Server.ListenAddr},
		{"BACKTEST_LOG_LEVEL", &c.Logging.Level},
		{"BACKTEST_BARS_DIR", &c.Data.BarsDir},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

func (c Config) Validate() error {
	if _, err := c.Engine(); err != nil {
		return err
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server workers must be positive, got %d", c.Server.Workers)
	}
	return nil
}

// Engine converts the simulation section into the engine's parameter set.
func (c Config) Engine() (engine.Config, error) {
	method, err := engine.ParseMethod(c.Simulation.Method)
	if err != nil {
		return engine.Config{}, err
	}
	regime, err := engine.ParseRegime(c.Simulation.InitialRegime)
	if err != nil {
		return engine.Config{}, err
	}
	start, err := parseDate(c.Simulation.Start)
	if err != nil {
		return engine.Config{}, fmt.Errorf("simulation start: %w", err)
	}
	end, err := parseDate(c.Simulation.End)
	if err != nil {
		return engine.Config{}, fmt.Errorf("simulation end: %w", err)
	}

	ec := engine.Config{
		InitialCapital: c.Simulation.InitialCapital,
		LeverageFactor: c.Simulation.LeverageFactor,
		MaxPositions:   c.Simulation.MaxPositions,
		MinTradeSize:   c.Simulation.MinTradeSize,
		TimeStopDays:   c.Simulation.TimeStopDays,
		Method:         method,
		InitialRegime:  regime,
		VolCeiling:     c.Simulation.VolCeiling,
		EntryThreshold: c.Simulation.EntryThreshold,
		PanicOnShutoff: c.Simulation.PanicOnShutoff,
		AllowShorts:    c.Simulation.AllowShorts,
		Start:          start,
		End:            end,
	}
	if err := ec.Validate(); err != nil {
		return engine.Config{}, err
	}
	return ec, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	}
	return t.UTC(), nil
}
