package engine

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Day is one ticker's precomputed daily row. Indicator fields are NaN until
// their warmup window is satisfied; the signal flags are NaN-safe (a flag is
// false whenever any of its operands was NaN).
type Day struct {
	Close  float64
	RSI2   float64
	SMA5   float64
	SMA200 float64
	HV100  float64
	ADX14  float64

	BuyNormal   bool
	ExitNormal  bool
	BuyInverse  bool
	ExitInverse bool
}

// Dataset is the immutable per-ticker market data, every series aligned and
// forward-filled to one shared trading calendar. It is built once, before any
// simulation run, and never mutated afterwards; concurrent runs share it
// read-only.
type Dataset struct {
	calendar []time.Time
	tickers  []string
	series   map[string][]Day
}

func NewDataset(calendar []time.Time) *Dataset {
	cal := make([]time.Time, len(calendar))
	for i, d := range calendar {
		cal[i] = midnightUTC(d)
	}
	return &Dataset{calendar: cal, series: make(map[string][]Day)}
}

// AddSeries registers a ticker's days, which must be aligned to the calendar.
func (d *Dataset) AddSeries(ticker string, days []Day) error {
	if len(days) != len(d.calendar) {
		return fmt.Errorf("series %s: %d days, calendar has %d", ticker, len(days), len(d.calendar))
	}
	if _, ok := d.series[ticker]; ok {
		return fmt.Errorf("series %s already registered", ticker)
	}
	d.series[ticker] = days
	d.tickers = append(d.tickers, ticker)
	sort.Strings(d.tickers)
	return nil
}

func (d *Dataset) Calendar() []time.Time { return d.calendar }

// Tickers returns all registered tickers in ascending order. Iteration over
// this slice, never over the underlying map, keeps runs deterministic.
func (d *Dataset) Tickers() []string { return d.tickers }

func (d *Dataset) Day(ticker string, i int) (Day, bool) {
	s, ok := d.series[ticker]
	if !ok || i < 0 || i >= len(s) {
		return Day{}, false
	}
	return s[i], true
}

// IndexAtOrAfter returns the first calendar index with date >= t, or -1.
func (d *Dataset) IndexAtOrAfter(t time.Time) int {
	t = midnightUTC(t)
	i := sort.Search(len(d.calendar), func(i int) bool {
		return !d.calendar[i].Before(t)
	})
	if i == len(d.calendar) {
		return -1
	}
	return i
}

// RegimeSample is one day's broad-market reading. Fields default to NaN;
// a NaN field disables whatever filter depends on it.
type RegimeSample struct {
	BenchmarkClose float64
	BenchmarkSMA   float64
	VolIndex       float64
	BaseRate       float64 // annualized financing base rate, in percent
}

// NaNSample is the fully-disabled reading used when no feed is present.
func NaNSample() RegimeSample {
	nan := math.NaN()
	return RegimeSample{BenchmarkClose: nan, BenchmarkSMA: nan, VolIndex: nan, BaseRate: nan}
}

func (s RegimeSample) hasBenchmark() bool {
	return !math.IsNaN(s.BenchmarkClose) && !math.IsNaN(s.BenchmarkSMA)
}

// RegimeFeed is the daily benchmark/volatility/rate series aligned to the
// dataset calendar. A nil feed degrades every regime filter to a no-op.
type RegimeFeed struct {
	samples []RegimeSample
}

func NewRegimeFeed(samples []RegimeSample) *RegimeFeed {
	return &RegimeFeed{samples: samples}
}

func (f *RegimeFeed) At(i int) RegimeSample {
	if f == nil || i < 0 || i >= len(f.samples) {
		return NaNSample()
	}
	return f.samples[i]
}
