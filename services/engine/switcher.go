package engine

import (
	"math"
	"time"
)

// reentryVolFraction is the hysteresis band: once the volatility ceiling has
// shut the system off, readings must fall below ceiling × 0.8 before NORMAL
// can resume. Between the bearish line and the strength line no new entries
// open in either regime, but open positions keep being managed for exit.
const reentryVolFraction = 0.8

// SwitcherConfig controls the regime state machine.
type SwitcherConfig struct {
	// VolCeiling shuts the system off when the volatility index exceeds it.
	// Zero disables the volatility trigger entirely.
	VolCeiling float64
	// EntryThreshold (> 1) is how far above its long average the benchmark
	// must trade before NORMAL resumes and NORMAL entries are allowed.
	EntryThreshold float64
	// PanicOnShutoff force-liquidates every open position on the day the
	// system switches away from NORMAL.
	PanicOnShutoff bool
	// AllowShorts permits INVERSE entries. With it off the INVERSE state
	// degrades to a pure entries-halted mode.
	AllowShorts bool
}

// StrategySwitcher decides the active regime once per day, after position
// closes and before new entries. Exit evaluation of already-open positions
// never consults it; positions carry the regime they were opened under.
type StrategySwitcher struct {
	cfg     SwitcherConfig
	regime  Regime
	history []RegimeSwitch
}

func NewStrategySwitcher(cfg SwitcherConfig, initial Regime) *StrategySwitcher {
	return &StrategySwitcher{cfg: cfg, regime: initial}
}

func (s *StrategySwitcher) Regime() Regime { return s.regime }

func (s *StrategySwitcher) History() []RegimeSwitch { return s.history }

// Evaluate applies the day's transition rules. It reports whether a switch
// happened and whether the panic flag demands full liquidation today.
// Asymmetric thresholds: the shutoff fires at the ceiling or at the bearish
// line, the resume needs volatility below ceiling × 0.8 AND the benchmark
// above average × EntryThreshold.
func (s *StrategySwitcher) Evaluate(date time.Time, sample RegimeSample) (switched, panicked bool) {
	prev := s.regime

	switch s.regime {
	case Normal:
		volTrigger := s.cfg.VolCeiling > 0 && !math.IsNaN(sample.VolIndex) && sample.VolIndex > s.cfg.VolCeiling
		if volTrigger || s.benchmarkBearish(sample) {
			s.regime = Inverse
		}
	case Inverse:
		volOK := s.cfg.VolCeiling == 0 ||
			(!math.IsNaN(sample.VolIndex) && sample.VolIndex < s.cfg.VolCeiling*reentryVolFraction)
		if volOK && s.benchmarkStrong(sample) {
			s.regime = Normal
		}
	}

	if s.regime != prev {
		s.history = append(s.history, RegimeSwitch{Date: midnightUTC(date), From: prev, To: s.regime})
		return true, s.regime == Inverse && s.cfg.PanicOnShutoff
	}
	return false, false
}

// EntriesAllowed reports whether the current regime may open positions today.
// NORMAL requires a confirmed-strong benchmark, INVERSE a bearish one. A
// missing benchmark feed disables the trend filter rather than blocking the
// run, except that shorts stay gated behind AllowShorts.
func (s *StrategySwitcher) EntriesAllowed(sample RegimeSample) bool {
	if s.regime == Inverse {
		if !s.cfg.AllowShorts {
			return false
		}
		if !sample.hasBenchmark() {
			return true
		}
		return s.benchmarkBearish(sample)
	}
	if !sample.hasBenchmark() {
		return true
	}
	return s.benchmarkStrong(sample)
}

func (s *StrategySwitcher) benchmarkBearish(sample RegimeSample) bool {
	return sample.hasBenchmark() && sample.BenchmarkClose < sample.BenchmarkSMA
}

func (s *StrategySwitcher) benchmarkStrong(sample RegimeSample) bool {
	return sample.hasBenchmark() && sample.BenchmarkClose > sample.BenchmarkSMA*s.cfg.EntryThreshold
}
