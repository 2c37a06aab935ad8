package report

import (
	"time"

	"meanrev-backtest/services/engine"
)

// MonthReturn is one calendar month's P&L against its first daily value.
type MonthReturn struct {
	Month     time.Month
	PnL       float64
	ReturnPct float64
}

// YearReturn is one calendar year's P&L with its monthly breakdown.
type YearReturn struct {
	Year           int
	InitialCapital float64
	PnL            float64
	ReturnPct      float64
	Months         []MonthReturn
}

// PeriodicReturns expands the trading-day snapshots to a daily series with
// forward-fill, then cuts it into calendar years and months. Partial edge
// periods use the days actually covered.
func PeriodicReturns(snapshots []engine.PortfolioSnapshot) []YearReturn {
	daily := expandDaily(snapshots)
	if len(daily) == 0 {
		return nil
	}

	var out []YearReturn
	for start := 0; start < len(daily); {
		year := daily[start].Date.Year()
		end := start
		for end < len(daily) && daily[end].Date.Year() == year {
			end++
		}
		yr := YearReturn{
			Year:           year,
			InitialCapital: daily[start].Value,
			PnL:            daily[end-1].Value - daily[start].Value,
		}
		if yr.InitialCapital > 0 {
			yr.ReturnPct = yr.PnL / yr.InitialCapital * 100
		}
		yr.Months = monthlyReturns(daily[start:end])
		out = append(out, yr)
		start = end
	}
	return out
}

func monthlyReturns(daily []engine.PortfolioSnapshot) []MonthReturn {
	var out []MonthReturn
	for start := 0; start < len(daily); {
		month := daily[start].Date.Month()
		end := start
		for end < len(daily) && daily[end].Date.Month() == month {
			end++
		}
		m := MonthReturn{
			Month: month,
			PnL:   daily[end-1].Value - daily[start].Value,
		}
		if daily[start].Value > 0 {
			m.ReturnPct = m.PnL / daily[start].Value * 100
		}
		out = append(out, m)
		start = end
	}
	return out
}

// expandDaily forward-fills the trading-day series onto every calendar day
// between its first and last snapshot.
func expandDaily(snapshots []engine.PortfolioSnapshot) []engine.PortfolioSnapshot {
	if len(snapshots) == 0 {
		return nil
	}
	var out []engine.PortfolioSnapshot
	j := 0
	last := snapshots[len(snapshots)-1].Date
	for d := snapshots[0].Date; !d.After(last); d = d.AddDate(0, 0, 1) {
		for j+1 < len(snapshots) && !snapshots[j+1].Date.After(d) {
			j++
		}
		out = append(out, engine.PortfolioSnapshot{Date: d, Value: snapshots[j].Value})
	}
	return out
}
