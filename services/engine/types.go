package engine

import (
	"fmt"
	"time"
)

// PositionType distinguishes long exposure from short exposure.
type PositionType int

const (
	Long PositionType = iota
	Short
)

func (t PositionType) String() string {
	if t == Short {
		return "SHORT"
	}
	return "LONG"
}

// Regime identifies the active trading strategy.
type Regime int

const (
	Normal Regime = iota
	Inverse
)

func (r Regime) String() string {
	if r == Inverse {
		return "INVERSE"
	}
	return "NORMAL"
}

func ParseRegime(s string) (Regime, error) {
	switch s {
	case "NORMAL":
		return Normal, nil
	case "INVERSE":
		return Inverse, nil
	}
	return Normal, fmt.Errorf("unknown regime %q", s)
}

// ExitReason records why a position was closed.
type ExitReason int

const (
	ExitSignal ExitReason = iota
	ExitTimeStop
	ExitMarginCall
	ExitPanicLiquidation
)

func (r ExitReason) String() string {
	switch r {
	case ExitTimeStop:
		return "TIME_STOP"
	case ExitMarginCall:
		return "MARGIN_CALL"
	case ExitPanicLiquidation:
		return "PANIC_LIQUIDATION"
	default:
		return "EXIT_SIGNAL"
	}
}

// Position is one open holding. Created on entry, mutated only by financing
// accrual, destroyed on close. Quantity is an integer floor of the notional
// budget, so it never goes fractional under leverage.
type Position struct {
	Ticker               string
	Quantity             int64
	EntryDate            time.Time
	InvestmentCost       float64
	NotionalValue        float64
	AccumulatedFinancing float64
	Type                 PositionType
	Strategy             Regime
}

// UnrealizedPnL values the position at price, gross of financing.
func (p *Position) UnrealizedPnL(price float64) float64 {
	market := price * float64(p.Quantity)
	if p.Type == Short {
		return p.NotionalValue - market
	}
	return market - p.NotionalValue
}

// Equity is the margin posted plus the unrealized move.
func (p *Position) Equity(price float64) float64 {
	return p.InvestmentCost + p.UnrealizedPnL(price)
}

// CompletedTrade is the append-only record produced exactly once per close.
type CompletedTrade struct {
	Ticker         string
	Quantity       int64
	Type           PositionType
	Strategy       Regime
	EntryDate      time.Time
	ExitDate       time.Time
	DurationDays   int
	ExitPrice      float64
	PnL            float64
	InvestmentCost float64
	Financing      float64
	Reason         ExitReason
}

// PercentReturn is PnL relative to the margin posted.
func (t CompletedTrade) PercentReturn() float64 {
	if t.InvestmentCost <= 0 {
		return 0
	}
	return t.PnL / t.InvestmentCost * 100
}

// PortfolioSnapshot is the end-of-day account value, one per simulated day.
type PortfolioSnapshot struct {
	Date  time.Time
	Value float64
}

// RegimeSwitch records one strategy transition.
type RegimeSwitch struct {
	Date time.Time
	From Regime
	To   Regime
}
