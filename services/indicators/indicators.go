// Package indicators computes the daily indicator columns and signal flags
// the simulation engine consumes. It runs once per dataset, before any run.
package indicators

import "math"

// SMA returns the n-period simple moving average, NaN until warmup.
func SMA(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	if n <= 0 || len(values) < n {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// RSI returns the n-period Relative Strength Index with Wilder smoothing,
// seeded by the simple average of the first n gains/losses. NaN until warmup.
func RSI(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	if n <= 0 || len(values) <= n {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= n; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)
	out[n] = rsiValue(avgGain, avgLoss)

	for i := n + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgGain+avgLoss == 0 {
		return 50
	}
	return 100 * avgGain / (avgGain + avgLoss)
}

// tradingDaysPerYear annualizes daily return volatility.
const tradingDaysPerYear = 252

// HistVol returns the annualized standard deviation of log returns over a
// rolling window (sample variance), NaN until warmup.
func HistVol(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window < 2 || len(values) <= window {
		return out
	}

	returns := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		returns[i] = math.Log(values[i] / values[i-1])
	}

	for i := window; i < len(values); i++ {
		sum, count := 0.0, 0
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(returns[j]) {
				continue
			}
			sum += returns[j]
			count++
		}
		if count < window {
			continue
		}
		mean := sum / float64(count)
		ss := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := returns[j] - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss/float64(count-1)) * math.Sqrt(tradingDaysPerYear)
	}
	return out
}

// ADX returns Wilder's Average Directional Index over n periods. Warmup is
// 2n bars: n to seed the smoothed TR/DM averages, n more to seed the DX
// average.
func ADX(high, low, close []float64, n int) []float64 {
	length := len(close)
	out := nanSlice(length)
	if n <= 0 || length <= 2*n {
		return out
	}

	tr := make([]float64, length)
	plusDM := make([]float64, length)
	minusDM := make([]float64, length)
	for i := 1; i < length; i++ {
		tr[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	var smTR, smPlus, smMinus float64
	for i := 1; i <= n; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := nanSlice(length)
	dx[n] = dxValue(smPlus, smMinus, smTR)
	for i := n + 1; i < length; i++ {
		smTR = smTR - smTR/float64(n) + tr[i]
		smPlus = smPlus - smPlus/float64(n) + plusDM[i]
		smMinus = smMinus - smMinus/float64(n) + minusDM[i]
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}

	var adx float64
	for i := n; i < 2*n; i++ {
		adx += dx[i]
	}
	adx /= float64(n)
	out[2*n-1] = adx
	for i := 2 * n; i < length; i++ {
		adx = (adx*float64(n-1) + dx[i]) / float64(n)
		out[i] = adx
	}
	return out
}

func dxValue(plus, minus, tr float64) float64 {
	if tr == 0 {
		return 0
	}
	diPlus := 100 * plus / tr
	diMinus := 100 * minus / tr
	if diPlus+diMinus == 0 {
		return 0
	}
	return 100 * math.Abs(diPlus-diMinus) / (diPlus + diMinus)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	nan := math.NaN()
	for i := range out {
		out[i] = nan
	}
	return out
}
