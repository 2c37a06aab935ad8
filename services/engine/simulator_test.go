package engine

import (
	"math"
	"reflect"
	"testing"
	"time"
)

// weekdays returns n consecutive weekdays starting at the first weekday >= start.
func weekdays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := midnightUTC(start); len(out) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}

func flatDays(n int, close float64) []Day {
	nan := math.NaN()
	out := make([]Day, n)
	for i := range out {
		out[i] = Day{Close: close, RSI2: nan, SMA5: nan, SMA200: nan, HV100: nan, ADX14: nan}
	}
	return out
}

func simConfig() Config {
	return Config{
		InitialCapital: 1000,
		LeverageFactor: 1,
		MaxPositions:   1,
		MinTradeSize:   5,
		Method:         MethodRSI,
		EntryThreshold: 1.02,
	}
}

func TestSimulatorFlatRoundTrip(t *testing.T) {
	cal := weekdays(date(2024, 1, 1), 3)
	days := flatDays(3, 10)
	days[0].BuyNormal = true
	days[0].RSI2 = 2
	days[2].ExitNormal = true
	ds := testDataset(t, cal, map[string][]Day{"AAA": days})

	sim := New(simConfig(), ds, nil, nil)
	res, err := sim.Run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Insolvent {
		t.Fatal("flat run reported insolvent")
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.PnL != 0 || tr.Reason != ExitSignal || tr.DurationDays != 2 {
		t.Fatalf("trade = %+v", tr)
	}
	if res.FinalCash != 1000 {
		t.Fatalf("final cash = %f", res.FinalCash)
	}
	if len(res.Snapshots) != 3 {
		t.Fatalf("snapshots = %d", len(res.Snapshots))
	}
	for _, s := range res.Snapshots {
		if s.Value != 1000 {
			t.Fatalf("snapshot %s = %f, want 1000", s.Date.Format("2006-01-02"), s.Value)
		}
	}
	if len(res.OpenPositions) != 0 {
		t.Fatalf("open positions = %+v", res.OpenPositions)
	}
}

func TestSimulatorDeterministic(t *testing.T) {
	cal := weekdays(date(2024, 1, 1), 15)
	series := map[string][]Day{}
	for _, ticker := range []string{"AAA", "BBB", "CCC", "DDD"} {
		days := flatDays(15, 10)
		for i := range days {
			if i%3 == 0 {
				days[i].BuyNormal = true
				days[i].RSI2 = float64(len(ticker) + i)
			}
			if i%5 == 4 {
				days[i].ExitNormal = true
			}
		}
		series[ticker] = days
	}
	cfg := simConfig()
	cfg.MaxPositions = 3
	cfg.TimeStopDays = 10

	run := func() *Result {
		ds := testDataset(t, cal, series)
		res, err := New(cfg, ds, nil, nil).Run()
		if err != nil {
			t.Fatal(err)
		}
		return res
	}
	if a, b := run(), run(); !reflect.DeepEqual(a, b) {
		t.Fatal("two identical runs diverged")
	}
}

func TestSimulatorMarginCall(t *testing.T) {
	cal := weekdays(date(2024, 1, 1), 3)
	days := flatDays(3, 10)
	days[0].BuyNormal = true
	days[0].RSI2 = 2
	days[1].Close = 7 // -60% of margin at 5x before financing
	days[2].Close = 7
	ds := testDataset(t, cal, map[string][]Day{"AAA": days})

	cfg := simConfig()
	cfg.LeverageFactor = 5
	res, err := New(cfg, ds, nil, nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Insolvent || !res.InsolvencyDate.Equal(cal[1]) {
		t.Fatalf("insolvency = %v at %s", res.Insolvent, res.InsolvencyDate)
	}
	// the run stops on the margin-call day.
	if len(res.Snapshots) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(res.Snapshots))
	}
	if len(res.Trades) != 1 || res.Trades[0].Reason != ExitMarginCall {
		t.Fatalf("trades = %+v", res.Trades)
	}
	// day-1 carry: 5000 notional at fallback 4% + spread over 360.
	carry := 5000 * (FallbackBaseRate/100 + FinancingSpread) / 360
	wantCash := 1000 + (3500 - 5000) - carry
	if math.Abs(res.FinalCash-wantCash) > 1e-9 {
		t.Fatalf("final cash = %f, want %f", res.FinalCash, wantCash)
	}
	last := res.Snapshots[len(res.Snapshots)-1]
	if math.Abs(last.Value-wantCash) > 1e-9 {
		t.Fatalf("final snapshot = %f, want post-liquidation cash %f", last.Value, wantCash)
	}
}

func TestSimulatorFinancingAccrual(t *testing.T) {
	cal := weekdays(date(2024, 1, 1), 11) // Jan 1 .. Jan 15, ten business days apart
	days := flatDays(11, 10)
	days[0].BuyNormal = true
	days[0].RSI2 = 2
	ds := testDataset(t, cal, map[string][]Day{"AAA": days})

	cfg := simConfig()
	cfg.LeverageFactor = 5
	cfg.TimeStopDays = 10
	res, err := New(cfg, ds, nil, nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Reason != ExitTimeStop || tr.DurationDays != 10 {
		t.Fatalf("trade = %+v", tr)
	}
	// entry day carries nothing; the ten following sessions each accrue.
	want := 10 * 5000 * (FallbackBaseRate/100 + FinancingSpread) / 360
	if math.Abs(tr.Financing-want) > 1e-9 {
		t.Fatalf("financing = %f, want %f", tr.Financing, want)
	}
	if math.Abs(tr.PnL-(-want)) > 1e-9 {
		t.Fatalf("pnl = %f, want %f", tr.PnL, -want)
	}
}

func TestSimulatorPanicLiquidation(t *testing.T) {
	cal := weekdays(date(2024, 1, 1), 3)
	days := flatDays(3, 10)
	days[0].BuyNormal = true
	days[0].RSI2 = 2
	ds := testDataset(t, cal, map[string][]Day{"AAA": days})

	nan := math.NaN()
	feed := NewRegimeFeed([]RegimeSample{
		{BenchmarkClose: 110, BenchmarkSMA: 100, VolIndex: 20, BaseRate: nan},
		{BenchmarkClose: 110, BenchmarkSMA: 100, VolIndex: 50, BaseRate: nan},
		{BenchmarkClose: 110, BenchmarkSMA: 100, VolIndex: 50, BaseRate: nan},
	})

	cfg := simConfig()
	cfg.VolCeiling = 45
	cfg.PanicOnShutoff = true
	res, err := New(cfg, ds, feed, nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Switches) != 1 || res.Switches[0].To != Inverse || !res.Switches[0].Date.Equal(cal[1]) {
		t.Fatalf("switches = %+v", res.Switches)
	}
	if len(res.Trades) != 1 || res.Trades[0].Reason != ExitPanicLiquidation {
		t.Fatalf("trades = %+v", res.Trades)
	}
	if res.FinalCash != 1000 {
		t.Fatalf("final cash = %f", res.FinalCash)
	}
}

func TestSimulatorEndDateBound(t *testing.T) {
	cal := weekdays(date(2024, 1, 1), 10)
	ds := testDataset(t, cal, map[string][]Day{"AAA": flatDays(10, 10)})

	cfg := simConfig()
	cfg.End = cal[4]
	res, err := New(cfg, ds, nil, nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Snapshots) != 5 {
		t.Fatalf("snapshots = %d, want 5", len(res.Snapshots))
	}
}

func TestSimulatorStartBeyondCalendar(t *testing.T) {
	cal := weekdays(date(2024, 1, 1), 3)
	ds := testDataset(t, cal, map[string][]Day{"AAA": flatDays(3, 10)})

	cfg := simConfig()
	cfg.Start = date(2025, 1, 1)
	if _, err := New(cfg, ds, nil, nil).Run(); err == nil {
		t.Fatal("expected error for start past the calendar")
	}
}
