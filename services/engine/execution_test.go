package engine

import (
	"math"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		InitialCapital: 1000,
		LeverageFactor: 5,
		MaxPositions:   8,
		MinTradeSize:   5,
		TimeStopDays:   10,
		Method:         MethodRSI,
	}
}

func testDataset(t *testing.T, calendar []time.Time, series map[string][]Day) *Dataset {
	t.Helper()
	ds := NewDataset(calendar)
	for ticker, days := range series {
		if err := ds.AddSeries(ticker, days); err != nil {
			t.Fatal(err)
		}
	}
	return ds
}

func TestAdmitEntriesSizing(t *testing.T) {
	cfg := testConfig()
	l := NewLedger(1000)
	b := NewPositionBook(1)
	e := NewExecutionEngine(cfg, l, b, nil)

	e.AdmitEntries([]Candidate{{Ticker: "AAA", Price: 10, RSI: 2}}, date(2024, 1, 2), Normal)

	p, ok := b.Get("AAA")
	if !ok {
		t.Fatal("no position opened")
	}
	if p.Quantity != 500 {
		t.Errorf("quantity = %d, want 500", p.Quantity)
	}
	if p.NotionalValue != 5000 || p.InvestmentCost != 1000 {
		t.Errorf("notional = %f cost = %f", p.NotionalValue, p.InvestmentCost)
	}
	if l.Cash() != 0 {
		t.Errorf("cash = %f, want 0", l.Cash())
	}
	if p.Type != Long || p.Strategy != Normal {
		t.Errorf("type = %s strategy = %s", p.Type, p.Strategy)
	}
}

func TestAdmitEntriesSequentialBudget(t *testing.T) {
	cfg := testConfig()
	cfg.LeverageFactor = 1
	l := NewLedger(900)
	b := NewPositionBook(2)
	e := NewExecutionEngine(cfg, l, b, nil)

	ranked := []Candidate{
		{Ticker: "AAA", Price: 10},
		{Ticker: "BBB", Price: 10},
	}
	e.AdmitEntries(ranked, date(2024, 1, 2), Normal)

	// first fill: 900/2 slots = 450 budget; second: 450/1 slot = 450.
	a, _ := b.Get("AAA")
	bb, _ := b.Get("BBB")
	if a == nil || bb == nil {
		t.Fatal("expected both fills")
	}
	if a.Quantity != 45 || bb.Quantity != 45 {
		t.Errorf("quantities = %d, %d, want 45 each", a.Quantity, bb.Quantity)
	}
	if l.Cash() != 0 {
		t.Errorf("cash = %f, want 0", l.Cash())
	}
}

func TestAdmitEntriesCapIsOpeningSlotCount(t *testing.T) {
	cfg := testConfig()
	cfg.LeverageFactor = 1
	l := NewLedger(100)
	b := NewPositionBook(2)
	e := NewExecutionEngine(cfg, l, b, nil)

	// AAA sizes to zero shares and is rejected; CCC sits beyond the two-slot
	// cap and must not inherit the freed slot.
	ranked := []Candidate{
		{Ticker: "AAA", Price: 1e6},
		{Ticker: "BBB", Price: 10},
		{Ticker: "CCC", Price: 10},
	}
	e.AdmitEntries(ranked, date(2024, 1, 2), Normal)

	if b.Has("AAA") || b.Has("CCC") {
		t.Fatalf("admitted beyond the cap: %v", b.Tickers())
	}
	if !b.Has("BBB") || b.Len() != 1 {
		t.Fatalf("book = %v", b.Tickers())
	}
}

func TestAdmitEntriesMinTradeSize(t *testing.T) {
	cfg := testConfig()
	cfg.LeverageFactor = 1
	l := NewLedger(8)
	b := NewPositionBook(2)
	e := NewExecutionEngine(cfg, l, b, nil)

	e.AdmitEntries([]Candidate{{Ticker: "AAA", Price: 1}, {Ticker: "BBB", Price: 1}}, date(2024, 1, 2), Normal)
	if b.Len() != 0 {
		t.Fatalf("sub-minimum fills admitted: %v", b.Tickers())
	}
	if l.Cash() != 8 {
		t.Fatalf("cash = %f, want untouched", l.Cash())
	}
}

func TestAdmitEntriesBadPrice(t *testing.T) {
	cfg := testConfig()
	l := NewLedger(1000)
	b := NewPositionBook(8)
	e := NewExecutionEngine(cfg, l, b, nil)

	e.AdmitEntries([]Candidate{
		{Ticker: "AAA", Price: math.NaN()},
		{Ticker: "BBB", Price: 0},
		{Ticker: "CCC", Price: -3},
	}, date(2024, 1, 2), Normal)
	if b.Len() != 0 {
		t.Fatalf("admitted unpriceable candidates: %v", b.Tickers())
	}
}

func TestAdmitEntriesInverseOpensShorts(t *testing.T) {
	cfg := testConfig()
	l := NewLedger(1000)
	b := NewPositionBook(1)
	e := NewExecutionEngine(cfg, l, b, nil)

	e.AdmitEntries([]Candidate{{Ticker: "AAA", Price: 10, RSI: 95}}, date(2024, 1, 2), Inverse)
	p, ok := b.Get("AAA")
	if !ok || p.Type != Short || p.Strategy != Inverse {
		t.Fatalf("position = %+v", p)
	}
}

func TestCloseDuePositionsTimeStopPrecedence(t *testing.T) {
	cfg := testConfig()
	l := NewLedger(0)
	b := NewPositionBook(8)
	e := NewExecutionEngine(cfg, l, b, nil)

	cal := []time.Time{date(2024, 1, 15)} // 10 business days after Jan 1
	ds := testDataset(t, cal, map[string][]Day{
		"AAA": {{Close: 10, ExitNormal: true}},
	})
	b.Open(&Position{Ticker: "AAA", Quantity: 10, EntryDate: date(2024, 1, 1), InvestmentCost: 100, NotionalValue: 100, Strategy: Normal})

	e.CloseDuePositions(ds, 0, cal[0])
	trades := l.Trades()
	if len(trades) != 1 {
		t.Fatal("position not closed")
	}
	if trades[0].Reason != ExitTimeStop {
		t.Fatalf("reason = %s, want TIME_STOP when both fire", trades[0].Reason)
	}
}

func TestCloseDuePositionsSignalBeforeTimeStop(t *testing.T) {
	cfg := testConfig()
	l := NewLedger(0)
	b := NewPositionBook(8)
	e := NewExecutionEngine(cfg, l, b, nil)

	cal := []time.Time{date(2024, 1, 12)} // 9 business days after Jan 1
	ds := testDataset(t, cal, map[string][]Day{
		"AAA": {{Close: 10, ExitNormal: true}},
	})
	b.Open(&Position{Ticker: "AAA", Quantity: 10, EntryDate: date(2024, 1, 1), InvestmentCost: 100, NotionalValue: 100, Strategy: Normal})

	e.CloseDuePositions(ds, 0, cal[0])
	trades := l.Trades()
	if len(trades) != 1 || trades[0].Reason != ExitSignal {
		t.Fatalf("trades = %+v", trades)
	}
}

func TestCloseDuePositionsKeyedByEntryStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.TimeStopDays = 0
	l := NewLedger(0)
	b := NewPositionBook(8)
	e := NewExecutionEngine(cfg, l, b, nil)

	cal := []time.Time{date(2024, 1, 2)}
	ds := testDataset(t, cal, map[string][]Day{
		"AAA": {{Close: 10, ExitNormal: true, ExitInverse: false}},
	})
	// opened under INVERSE: today's NORMAL exit signal must not close it.
	b.Open(&Position{Ticker: "AAA", Quantity: 10, EntryDate: date(2024, 1, 1), InvestmentCost: 100, NotionalValue: 100, Type: Short, Strategy: Inverse})

	e.CloseDuePositions(ds, 0, cal[0])
	if len(l.Trades()) != 0 {
		t.Fatal("closed on the wrong strategy's exit signal")
	}
}

func TestLiquidateAllClosesEverything(t *testing.T) {
	cfg := testConfig()
	l := NewLedger(0)
	b := NewPositionBook(8)
	e := NewExecutionEngine(cfg, l, b, nil)

	cal := []time.Time{date(2024, 1, 2)}
	ds := testDataset(t, cal, map[string][]Day{
		"AAA": {{Close: 10}},
		"BBB": {{Close: 20}},
	})
	b.Open(&Position{Ticker: "AAA", Quantity: 10, EntryDate: date(2024, 1, 1), InvestmentCost: 100, NotionalValue: 100, Strategy: Normal})
	b.Open(&Position{Ticker: "BBB", Quantity: 5, EntryDate: date(2024, 1, 1), InvestmentCost: 100, NotionalValue: 100, Strategy: Normal})

	e.LiquidateAll(ds, 0, cal[0], ExitPanicLiquidation)
	if b.Len() != 0 {
		t.Fatalf("book not emptied: %v", b.Tickers())
	}
	for _, tr := range l.Trades() {
		if tr.Reason != ExitPanicLiquidation {
			t.Errorf("reason = %s", tr.Reason)
		}
	}
}
