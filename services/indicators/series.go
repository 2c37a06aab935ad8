package indicators

import "meanrev-backtest/services/engine"

// Indicator windows and signal thresholds. The long average defines the trend
// filter, the short one the mean-reversion exit.
const (
	RSIWindow   = 2
	ExitWindow  = 5
	TrendWindow = 200
	VolWindow   = 100
	ADXWindow   = 14

	oversoldLevel   = 5.0
	overboughtLevel = 85.0
	shortCoverLevel = 30.0
)

// ComputeDays turns one ticker's aligned OHLC history into the engine's daily
// rows: indicator columns plus the four entry/exit flags. A flag is false
// whenever any operand is NaN, because NaN comparisons are false.
func ComputeDays(high, low, close []float64) []engine.Day {
	rsi := RSI(close, RSIWindow)
	smaExit := SMA(close, ExitWindow)
	smaTrend := SMA(close, TrendWindow)
	hv := HistVol(close, VolWindow)
	adx := ADX(high, low, close, ADXWindow)

	days := make([]engine.Day, len(close))
	for i := range close {
		c := close[i]
		days[i] = engine.Day{
			Close:  c,
			RSI2:   rsi[i],
			SMA5:   smaExit[i],
			SMA200: smaTrend[i],
			HV100:  hv[i],
			ADX14:  adx[i],

			BuyNormal:   c > smaTrend[i] && rsi[i] < oversoldLevel && c < smaExit[i],
			ExitNormal:  c > smaExit[i],
			BuyInverse:  c < smaTrend[i] && rsi[i] > overboughtLevel,
			ExitInverse: rsi[i] < shortCoverLevel || c < smaExit[i],
		}
	}
	return days
}
