package engine

import (
	"fmt"
	"math"
	"sort"
)

// Method selects how same-day entry candidates are prioritized.
type Method string

const (
	MethodRSI     Method = "RSI"
	MethodRSIDesc Method = "RSI_DESC"
	MethodAZ      Method = "A-Z"
	MethodZA      Method = "Z-A"
	MethodHVDesc  Method = "HV_DESC"
	MethodADXDesc Method = "ADX_DESC"
)

// AllMethods lists every supported prioritization method, in sweep order.
var AllMethods = []Method{MethodRSI, MethodRSIDesc, MethodAZ, MethodZA, MethodHVDesc, MethodADXDesc}

func ParseMethod(s string) (Method, error) {
	for _, m := range AllMethods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown prioritization method %q", s)
}

// Candidate is a ticker with an active buy signal, carrying the indicator
// values the ranking methods key on.
type Candidate struct {
	Ticker string
	Price  float64
	RSI    float64
	HV     float64
	ADX    float64
}

// SortKey names the candidate field a method sorts by.
type SortKey int

const (
	KeyRSI SortKey = iota
	KeyHV
	KeyADX
	KeyTicker
)

// SortSpec maps (method, regime) to a key and direction. Under the default
// RSI method the direction is regime-dependent: ascending in NORMAL (low RSI,
// most oversold, favors long mean-reversion) and descending in INVERSE (high
// RSI, most overbought, favors shorts).
func SortSpec(method Method, regime Regime) (SortKey, bool) {
	switch method {
	case MethodRSI:
		return KeyRSI, regime == Inverse
	case MethodRSIDesc:
		return KeyRSI, true
	case MethodHVDesc:
		return KeyHV, true
	case MethodADXDesc:
		return KeyADX, true
	case MethodAZ:
		return KeyTicker, false
	case MethodZA:
		return KeyTicker, true
	default:
		return KeyRSI, false
	}
}

// Rank orders candidates by the method's key, stable, ties broken by ticker
// ascending. NaN indicator values always rank last regardless of direction.
// The input slice is not modified.
func Rank(candidates []Candidate, method Method, regime Regime) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	key, desc := SortSpec(method, regime)
	if key == KeyTicker {
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return out[i].Ticker > out[j].Ticker
			}
			return out[i].Ticker < out[j].Ticker
		})
		return out
	}

	val := func(c Candidate) float64 {
		var v float64
		switch key {
		case KeyHV:
			v = c.HV
		case KeyADX:
			v = c.ADX
		default:
			v = c.RSI
		}
		if math.IsNaN(v) {
			// lowest priority in either direction
			if desc {
				return math.Inf(-1)
			}
			return math.Inf(1)
		}
		return v
	}

	sort.SliceStable(out, func(i, j int) bool {
		vi, vj := val(out[i]), val(out[j])
		if vi != vj {
			if desc {
				return vi > vj
			}
			return vi < vj
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}
