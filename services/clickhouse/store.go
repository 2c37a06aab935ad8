// Package clickhouse persists run results and daily bars.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"meanrev-backtest/services/config"
	"meanrev-backtest/services/engine"
	"meanrev-backtest/services/marketdata"
)

// Store wraps one native-protocol connection pool.
type Store struct {
	conn   clickhouse.Conn
	db     string
	logger *zap.Logger
}

func NewStore(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Store{conn: conn, db: cfg.Database, logger: logger}, nil
}

func (s *Store) Close() error { return s.conn.Close() }

// EnsureSchema creates the database and tables. ReplacingMergeTree keyed on a
// version column keeps re-saves of the same run idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.db)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	ddls := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.runs (
			run_id String,
			created_at DateTime64(3),
			method LowCardinality(String),
			initial_regime LowCardinality(String),
			initial_capital Decimal(18, 6),
			leverage_factor Float64,
			max_positions UInt32,
			final_cash Decimal(18, 6),
			final_value Decimal(18, 6),
			total_trades UInt64,
			insolvent UInt8,
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY run_id
		SETTINGS index_granularity = 8192`, s.db),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.snapshots (
			run_id String,
			date Date,
			value Decimal(18, 6),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (run_id, date)
		SETTINGS index_granularity = 8192`, s.db),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.trades (
			run_id String,
			ticker String,
			quantity Int64,
			position_type LowCardinality(String),
			strategy LowCardinality(String),
			entry_date Date,
			exit_date Date,
			duration_days Int32,
			exit_price Decimal(18, 6),
			pnl Decimal(18, 6),
			investment_cost Decimal(18, 6),
			financing Decimal(18, 6),
			reason LowCardinality(String),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (run_id, exit_date, ticker)
		SETTINGS index_granularity = 8192`, s.db),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.daily_bars (
			ticker String,
			date Date,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (ticker, date)
		SETTINGS index_granularity = 8192`, s.db),
	}
	for _, ddl := range ddls {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// SaveRun writes one finished run: header row, snapshot series, trade log.
// One version stamp covers all three batches.
func (s *Store) SaveRun(ctx context.Context, runID string, cfg engine.Config, res *engine.Result) error {
	now := time.Now().UTC()
	ver := uint64(now.UnixNano())

	finalValue := res.FinalCash
	if n := len(res.Snapshots); n > 0 {
		finalValue = res.Snapshots[n-1].Value
	}
	insolvent := uint8(0)
	if res.Insolvent {
		insolvent = 1
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.runs", s.db))
	if err != nil {
		return fmt.Errorf("prepare runs batch: %w", err)
	}
	if err := batch.Append(
		runID, now,
		string(cfg.Method), cfg.InitialRegime.String(),
		money(cfg.InitialCapital), cfg.LeverageFactor, uint32(cfg.MaxPositions),
		money(res.FinalCash), money(finalValue),
		uint64(len(res.Trades)), insolvent, ver,
	); err != nil {
		return fmt.Errorf("runs append: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("runs send: %w", err)
	}

	batch, err = s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.snapshots", s.db))
	if err != nil {
		return fmt.Errorf("prepare snapshots batch: %w", err)
	}
	for _, snap := range res.Snapshots {
		if err := batch.Append(runID, snap.Date, money(snap.Value), ver); err != nil {
			return fmt.Errorf("snapshots append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("snapshots send: %w", err)
	}

	batch, err = s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.trades", s.db))
	if err != nil {
		return fmt.Errorf("prepare trades batch: %w", err)
	}
	for _, t := range res.Trades {
		if err := batch.Append(
			runID, t.Ticker, t.Quantity,
			t.Type.String(), t.Strategy.String(),
			t.EntryDate, t.ExitDate, int32(t.DurationDays),
			money(t.ExitPrice), money(t.PnL), money(t.InvestmentCost), money(t.Financing),
			t.Reason.String(), ver,
		); err != nil {
			return fmt.Errorf("trades append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("trades send: %w", err)
	}

	s.logger.Info("run saved",
		zap.String("run_id", runID),
		zap.Int("snapshots", len(res.Snapshots)),
		zap.Int("trades", len(res.Trades)),
	)
	return nil
}

// SaveDailyBars batches one ticker's history into daily_bars.
func (s *Store) SaveDailyBars(ctx context.Context, ticker string, bars []marketdata.Bar) error {
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.daily_bars", s.db))
	if err != nil {
		return fmt.Errorf("prepare bars batch: %w", err)
	}
	ver := uint64(time.Now().UTC().UnixNano())
	for _, b := range bars {
		if err := batch.Append(ticker, b.Date, b.Open, b.High, b.Low, b.Close, ver); err != nil {
			return fmt.Errorf("bars append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("bars send: %w", err)
	}
	return nil
}

// LoadDailyBars reads every ticker's deduplicated history from daily_bars.
func (s *Store) LoadDailyBars(ctx context.Context) (map[string][]marketdata.Bar, error) {
	query := fmt.Sprintf(`
		SELECT ticker, date, open, high, low, close
		FROM %s.daily_bars FINAL
		ORDER BY ticker, date`, s.db)
	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	defer rows.Close()

	out := map[string][]marketdata.Bar{}
	for rows.Next() {
		var ticker string
		var date time.Time
		var b marketdata.Bar
		if err := rows.Scan(&ticker, &date, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		out[ticker] = append(out[ticker], b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	return out, nil
}

// money keeps six fractional digits, matching the Decimal(18, 6) columns.
func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(6)
}
