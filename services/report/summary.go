// Package report turns a finished run into performance figures and a
// markdown document.
package report

import (
	"errors"
	"math"
	"time"

	"meanrev-backtest/services/engine"
)

// TradeRef points at the trade that set a record, by ticker.
type TradeRef struct {
	Ticker string
	Value  float64
}

// Summary is the headline performance of one run.
type Summary struct {
	InitialValue        float64
	FinalValue          float64
	MaxValue            float64
	TotalReturnPct      float64
	AnnualizedReturnPct float64

	TotalTrades      int
	WinRatePct       float64
	AvgDurationDays  float64
	AvgPercentReturn float64

	BestTradeUSD  TradeRef
	WorstTradeUSD TradeRef
	BestTradePct  TradeRef
	WorstTradePct TradeRef
	LongestTrade  TradeRef // Value holds the duration in business days
}

// BuildSummary computes the run's headline figures. Annualization uses the
// calendar span of the snapshot series over a 365.25-day year.
func BuildSummary(snapshots []engine.PortfolioSnapshot, trades []engine.CompletedTrade) (Summary, error) {
	if len(snapshots) == 0 {
		return Summary{}, errors.New("no portfolio history")
	}

	s := Summary{
		InitialValue: snapshots[0].Value,
		FinalValue:   snapshots[len(snapshots)-1].Value,
		MaxValue:     math.Inf(-1),
	}
	for _, snap := range snapshots {
		if snap.Value > s.MaxValue {
			s.MaxValue = snap.Value
		}
	}
	if s.InitialValue != 0 {
		s.TotalReturnPct = (s.FinalValue - s.InitialValue) / s.InitialValue * 100
	}

	days := snapshots[len(snapshots)-1].Date.Sub(snapshots[0].Date) / (24 * time.Hour)
	years := float64(days) / 365.25
	growth := 1 + s.TotalReturnPct/100
	if years > 0 && growth > 0 {
		s.AnnualizedReturnPct = (math.Pow(growth, 1/years) - 1) * 100
	}

	s.TotalTrades = len(trades)
	if len(trades) == 0 {
		return s, nil
	}

	wins := 0
	var durationSum, pctSum float64
	s.BestTradeUSD = TradeRef{trades[0].Ticker, trades[0].PnL}
	s.WorstTradeUSD = s.BestTradeUSD
	s.BestTradePct = TradeRef{trades[0].Ticker, trades[0].PercentReturn()}
	s.WorstTradePct = s.BestTradePct
	s.LongestTrade = TradeRef{trades[0].Ticker, float64(trades[0].DurationDays)}

	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
		durationSum += float64(t.DurationDays)
		pct := t.PercentReturn()
		pctSum += pct

		if t.PnL > s.BestTradeUSD.Value {
			s.BestTradeUSD = TradeRef{t.Ticker, t.PnL}
		}
		if t.PnL < s.WorstTradeUSD.Value {
			s.WorstTradeUSD = TradeRef{t.Ticker, t.PnL}
		}
		if pct > s.BestTradePct.Value {
			s.BestTradePct = TradeRef{t.Ticker, pct}
		}
		if pct < s.WorstTradePct.Value {
			s.WorstTradePct = TradeRef{t.Ticker, pct}
		}
		if float64(t.DurationDays) > s.LongestTrade.Value {
			s.LongestTrade = TradeRef{t.Ticker, float64(t.DurationDays)}
		}
	}
	s.WinRatePct = float64(wins) / float64(len(trades)) * 100
	s.AvgDurationDays = durationSum / float64(len(trades))
	s.AvgPercentReturn = pctSum / float64(len(trades))
	return s, nil
}
