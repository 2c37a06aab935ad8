// Package arrowexport serializes run results to Apache Arrow IPC for
// downstream analysis tooling.
package arrowexport

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"meanrev-backtest/services/engine"
)

// Exporter builds Arrow record batches from run results.
type Exporter struct {
	pool memory.Allocator
}

func NewExporter() *Exporter {
	return &Exporter{pool: memory.NewGoAllocator()}
}

// SnapshotsIPC serializes the portfolio value series as one record batch.
func (e *Exporter) SnapshotsIPC(runID string, snapshots []engine.PortfolioSnapshot) ([]byte, error) {
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no snapshots to export")
	}
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "run_id", Type: arrow.BinaryTypes.String},
		{Name: "date", Type: arrow.FixedWidthTypes.Date32},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	runIDs := array.NewStringBuilder(e.pool)
	dates := array.NewDate32Builder(e.pool)
	values := array.NewFloat64Builder(e.pool)
	for _, s := range snapshots {
		runIDs.Append(runID)
		dates.Append(arrow.Date32FromTime(s.Date))
		values.Append(s.Value)
	}

	record := array.NewRecord(schema, []arrow.Array{
		runIDs.NewStringArray(),
		dates.NewDate32Array(),
		values.NewFloat64Array(),
	}, int64(len(snapshots)))
	defer record.Release()

	return serialize(schema, record)
}

// TradesIPC serializes the completed-trade log as one record batch.
func (e *Exporter) TradesIPC(runID string, trades []engine.CompletedTrade) ([]byte, error) {
	if len(trades) == 0 {
		return nil, fmt.Errorf("no trades to export")
	}
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "run_id", Type: arrow.BinaryTypes.String},
		{Name: "ticker", Type: arrow.BinaryTypes.String},
		{Name: "quantity", Type: arrow.PrimitiveTypes.Int64},
		{Name: "position_type", Type: arrow.BinaryTypes.String},
		{Name: "strategy", Type: arrow.BinaryTypes.String},
		{Name: "entry_date", Type: arrow.FixedWidthTypes.Date32},
		{Name: "exit_date", Type: arrow.FixedWidthTypes.Date32},
		{Name: "duration_days", Type: arrow.PrimitiveTypes.Int32},
		{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
		{Name: "pnl", Type: arrow.PrimitiveTypes.Float64},
		{Name: "investment_cost", Type: arrow.PrimitiveTypes.Float64},
		{Name: "financing", Type: arrow.PrimitiveTypes.Float64},
		{Name: "reason", Type: arrow.BinaryTypes.String},
	}, nil)

	runIDs := array.NewStringBuilder(e.pool)
	tickers := array.NewStringBuilder(e.pool)
	quantities := array.NewInt64Builder(e.pool)
	types := array.NewStringBuilder(e.pool)
	strategies := array.NewStringBuilder(e.pool)
	entries := array.NewDate32Builder(e.pool)
	exits := array.NewDate32Builder(e.pool)
	durations := array.NewInt32Builder(e.pool)
	prices := array.NewFloat64Builder(e.pool)
	pnls := array.NewFloat64Builder(e.pool)
	costs := array.NewFloat64Builder(e.pool)
	financings := array.NewFloat64Builder(e.pool)
	reasons := array.NewStringBuilder(e.pool)

	for _, t := range trades {
		runIDs.Append(runID)
		tickers.Append(t.Ticker)
		quantities.Append(t.Quantity)
		types.Append(t.Type.String())
		strategies.Append(t.Strategy.String())
		entries.Append(arrow.Date32FromTime(t.EntryDate))
		exits.Append(arrow.Date32FromTime(t.ExitDate))
		durations.Append(int32(t.DurationDays))
		prices.Append(t.ExitPrice)
		pnls.Append(t.PnL)
		costs.Append(t.InvestmentCost)
		financings.Append(t.Financing)
		reasons.Append(t.Reason.String())
	}

	record := array.NewRecord(schema, []arrow.Array{
		runIDs.NewStringArray(),
		tickers.NewStringArray(),
		quantities.NewInt64Array(),
		types.NewStringArray(),
		strategies.NewStringArray(),
		entries.NewDate32Array(),
		exits.NewDate32Array(),
		durations.NewInt32Array(),
		prices.NewFloat64Array(),
		pnls.NewFloat64Array(),
		costs.NewFloat64Array(),
		financings.NewFloat64Array(),
		reasons.NewStringArray(),
	}, int64(len(trades)))
	defer record.Release()

	return serialize(schema, record)
}

func serialize(schema *arrow.Schema, record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}
