package marketdata

import (
	"math"
	"testing"
	"time"
)

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func barsAt(closes map[int]float64) []Bar {
	var out []Bar
	for d := 1; d <= 31; d++ {
		if c, ok := closes[d]; ok {
			out = append(out, Bar{Date: day(d), Open: c, High: c, Low: c, Close: c})
		}
	}
	return out
}

func TestBuildCalendarUnion(t *testing.T) {
	cal := BuildCalendar(map[string][]Bar{
		"AAA": barsAt(map[int]float64{2: 1, 4: 1}),
		"BBB": barsAt(map[int]float64{3: 1, 4: 1}),
	})
	want := []time.Time{day(2), day(3), day(4)}
	if len(cal) != len(want) {
		t.Fatalf("calendar = %v", cal)
	}
	for i := range want {
		if !cal[i].Equal(want[i]) {
			t.Fatalf("calendar = %v, want %v", cal, want)
		}
	}
}

func TestBuildDatasetForwardFills(t *testing.T) {
	ds, err := BuildDataset(map[string][]Bar{
		"AAA": barsAt(map[int]float64{2: 10, 3: 11, 4: 12}),
		"BBB": barsAt(map[int]float64{3: 50, 4: 51}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Calendar()) != 3 {
		t.Fatalf("calendar = %v", ds.Calendar())
	}

	// BBB has no observation on the first session: all-NaN row, no signals.
	d, ok := ds.Day("BBB", 0)
	if !ok || !math.IsNaN(d.Close) {
		t.Fatalf("pre-listing row = %+v", d)
	}
	if d.BuyNormal || d.BuyInverse || d.ExitNormal || d.ExitInverse {
		t.Fatalf("signals on a pre-listing row: %+v", d)
	}

	// AAA trades every session; its closes come through as observed.
	for i, want := range []float64{10, 11, 12} {
		d, _ := ds.Day("AAA", i)
		if d.Close != want {
			t.Fatalf("AAA day %d close = %f, want %f", i, d.Close, want)
		}
	}
}

func TestBuildDatasetReusesStaleRow(t *testing.T) {
	ds, err := BuildDataset(map[string][]Bar{
		"AAA": barsAt(map[int]float64{2: 10, 4: 12}),
		"BBB": barsAt(map[int]float64{2: 1, 3: 1, 4: 1}),
	})
	if err != nil {
		t.Fatal(err)
	}
	stale, _ := ds.Day("AAA", 1) // Jan 3, AAA did not trade
	fresh, _ := ds.Day("AAA", 0)
	if stale.Close != fresh.Close {
		t.Fatalf("stale row close = %f, want carried %f", stale.Close, fresh.Close)
	}
}

func TestBuildDatasetEmpty(t *testing.T) {
	if _, err := BuildDataset(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestBuildRegimeFeedAlignment(t *testing.T) {
	cal := []time.Time{day(2), day(3), day(4)}
	feed := BuildRegimeFeed(cal, FeedSources{
		VolIndex: barsAt(map[int]float64{2: 20, 4: 50}),
		BaseRate: barsAt(map[int]float64{3: 5.25}),
	})

	s := feed.At(0)
	if s.VolIndex != 20 {
		t.Fatalf("vol = %f", s.VolIndex)
	}
	if !math.IsNaN(s.BaseRate) {
		t.Fatal("rate before first observation must be NaN")
	}
	if !math.IsNaN(s.BenchmarkClose) || !math.IsNaN(s.BenchmarkSMA) {
		t.Fatal("missing benchmark series must stay NaN")
	}

	s = feed.At(1)
	if s.VolIndex != 20 { // forward-filled
		t.Fatalf("vol = %f, want carried 20", s.VolIndex)
	}
	if s.BaseRate != 5.25 {
		t.Fatalf("rate = %f", s.BaseRate)
	}

	s = feed.At(2)
	if s.VolIndex != 50 || s.BaseRate != 5.25 {
		t.Fatalf("sample = %+v", s)
	}
}

func TestBuildRegimeFeedBenchmarkSMA(t *testing.T) {
	// 200 observations warm the long average up exactly on the last session.
	var bench []Bar
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		bench = append(bench, Bar{Date: base.AddDate(0, 0, i), Close: 100})
	}
	cal := make([]time.Time, len(bench))
	for i, b := range bench {
		cal[i] = b.Date
	}

	feed := BuildRegimeFeed(cal, FeedSources{Benchmark: bench})
	if s := feed.At(198); !math.IsNaN(s.BenchmarkSMA) {
		t.Fatalf("sma before warmup = %f", s.BenchmarkSMA)
	}
	s := feed.At(199)
	if s.BenchmarkSMA != 100 || s.BenchmarkClose != 100 {
		t.Fatalf("sample = %+v", s)
	}
}
