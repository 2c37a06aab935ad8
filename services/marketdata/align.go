package marketdata

import (
	"errors"
	"math"
	"sort"
	"time"

	"meanrev-backtest/services/engine"
	"meanrev-backtest/services/indicators"
)

// BuildCalendar returns the sorted union of every series' observation dates.
// Tickers that trade on different exchanges rarely share an exact calendar;
// the union plus forward-fill gives every ticker a row on every session.
func BuildCalendar(barsByTicker map[string][]Bar) []time.Time {
	seen := map[time.Time]bool{}
	var out []time.Time
	for _, bars := range barsByTicker {
		for _, b := range bars {
			if !seen[b.Date] {
				seen[b.Date] = true
				out = append(out, b.Date)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// BuildDataset computes each ticker's indicator rows on its own observed
// history, then aligns the rows to the union calendar: a session the ticker
// did not trade reuses its previous row, sessions before its first
// observation get an all-NaN row with no signals.
func BuildDataset(barsByTicker map[string][]Bar) (*engine.Dataset, error) {
	if len(barsByTicker) == 0 {
		return nil, errors.New("no bar series loaded")
	}
	calendar := BuildCalendar(barsByTicker)
	ds := engine.NewDataset(calendar)

	tickers := make([]string, 0, len(barsByTicker))
	for t := range barsByTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		bars := barsByTicker[ticker]
		high := make([]float64, len(bars))
		low := make([]float64, len(bars))
		close := make([]float64, len(bars))
		dates := make([]time.Time, len(bars))
		for i, b := range bars {
			high[i], low[i], close[i], dates[i] = b.High, b.Low, b.Close, b.Date
		}
		days := indicators.ComputeDays(high, low, close)
		if err := ds.AddSeries(ticker, alignDays(calendar, dates, days)); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// FeedSources are the broad-market series behind the regime filter. Any nil
// series leaves its sample fields NaN, which disables the dependent filter.
type FeedSources struct {
	Benchmark []Bar // trend benchmark, long average computed here
	VolIndex  []Bar // volatility index close
	BaseRate  []Bar // financing base rate in percent
}

// BuildRegimeFeed aligns the broad-market series to the dataset calendar with
// the same forward-fill rule the price series use.
func BuildRegimeFeed(calendar []time.Time, src FeedSources) *engine.RegimeFeed {
	benchClose := alignValues(calendar, src.Benchmark, func(b Bar) float64 { return b.Close })
	benchSMA := alignSeries(calendar, src.Benchmark, func(bars []Bar) []float64 {
		closes := make([]float64, len(bars))
		for i, b := range bars {
			closes[i] = b.Close
		}
		return indicators.SMA(closes, indicators.TrendWindow)
	})
	vol := alignValues(calendar, src.VolIndex, func(b Bar) float64 { return b.Close })
	rate := alignValues(calendar, src.BaseRate, func(b Bar) float64 { return b.Close })

	samples := make([]engine.RegimeSample, len(calendar))
	for i := range calendar {
		samples[i] = engine.RegimeSample{
			BenchmarkClose: benchClose[i],
			BenchmarkSMA:   benchSMA[i],
			VolIndex:       vol[i],
			BaseRate:       rate[i],
		}
	}
	return engine.NewRegimeFeed(samples)
}

func alignValues(calendar []time.Time, bars []Bar, value func(Bar) float64) []float64 {
	return alignSeries(calendar, bars, func(bars []Bar) []float64 {
		out := make([]float64, len(bars))
		for i, b := range bars {
			out[i] = value(b)
		}
		return out
	})
}

// alignSeries computes derive over the raw bars, then forward-fills the result
// onto the calendar. Calendar dates before the first observation stay NaN.
func alignSeries(calendar []time.Time, bars []Bar, derive func([]Bar) []float64) []float64 {
	out := make([]float64, len(calendar))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(bars) == 0 {
		return out
	}
	values := derive(bars)
	j := -1
	for i, date := range calendar {
		for j+1 < len(bars) && !bars[j+1].Date.After(date) {
			j++
		}
		if j >= 0 {
			out[i] = values[j]
		}
	}
	return out
}

func alignDays(calendar []time.Time, dates []time.Time, days []engine.Day) []engine.Day {
	nan := math.NaN()
	blank := engine.Day{Close: nan, RSI2: nan, SMA5: nan, SMA200: nan, HV100: nan, ADX14: nan}

	out := make([]engine.Day, len(calendar))
	j := -1
	for i, date := range calendar {
		for j+1 < len(dates) && !dates[j+1].After(date) {
			j++
		}
		if j >= 0 {
			out[i] = days[j]
		} else {
			out[i] = blank
		}
	}
	return out
}
