package engine

import (
	"errors"
	"fmt"
	"time"
)

// Financing terms: base rate (percent, from the regime feed, with a fixed
// fallback when the feed is silent) plus a broker spread, prorated over a
// 360-day year.
const (
	FallbackBaseRate = 4.0
	FinancingSpread  = 0.025
)

// Config is the immutable parameter set for one simulation run. Construct it
// once and hand it to New; nothing in the engine reads process-wide state.
type Config struct {
	InitialCapital float64
	LeverageFactor float64
	MaxPositions   int
	MinTradeSize   float64

	// TimeStopDays closes any position held that many business days.
	// Zero disables the time-stop.
	TimeStopDays int

	Method        Method
	InitialRegime Regime

	VolCeiling     float64
	EntryThreshold float64
	PanicOnShutoff bool
	AllowShorts    bool

	Start time.Time
	End   time.Time
}

func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return errors.New("initial capital must be positive")
	}
	if c.LeverageFactor < 1 {
		return errors.New("leverage factor must be >= 1")
	}
	if c.MaxPositions <= 0 {
		return errors.New("max positions must be positive")
	}
	if c.MinTradeSize < 0 {
		return errors.New("min trade size must be non-negative")
	}
	if c.TimeStopDays < 0 {
		return errors.New("time stop days must be non-negative")
	}
	if c.VolCeiling < 0 {
		return errors.New("volatility ceiling must be non-negative")
	}
	if c.EntryThreshold < 1 {
		return errors.New("entry threshold must be >= 1")
	}
	if _, err := ParseMethod(string(c.Method)); err != nil {
		return err
	}
	if !c.End.IsZero() && c.End.Before(c.Start) {
		return fmt.Errorf("end %s before start %s", c.End.Format("2006-01-02"), c.Start.Format("2006-01-02"))
	}
	return nil
}

func (c Config) switcher() SwitcherConfig {
	return SwitcherConfig{
		VolCeiling:     c.VolCeiling,
		EntryThreshold: c.EntryThreshold,
		PanicOnShutoff: c.PanicOnShutoff,
		AllowShorts:    c.AllowShorts,
	}
}
