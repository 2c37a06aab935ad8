package engine

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// ExecutionEngine turns ranked candidates into sized entries under the
// leverage budget and evaluates per-position exit conditions.
type ExecutionEngine struct {
	cfg    Config
	ledger *Ledger
	book   *PositionBook
	logger *zap.Logger
}

func NewExecutionEngine(cfg Config, ledger *Ledger, book *PositionBook, logger *zap.Logger) *ExecutionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionEngine{cfg: cfg, ledger: ledger, book: book, logger: logger}
}

// shouldClose evaluates one open position against the day's data. The exit
// signal is keyed by the strategy tag stored on the position at entry, never
// by the currently active regime. When time-stop and signal fire together the
// time-stop wins the reported reason.
func (e *ExecutionEngine) shouldClose(p *Position, day Day, date time.Time) (bool, ExitReason) {
	if e.cfg.TimeStopDays > 0 && BusinessDaysBetween(p.EntryDate, date) >= e.cfg.TimeStopDays {
		return true, ExitTimeStop
	}
	exitSignal := day.ExitNormal
	if p.Strategy == Inverse {
		exitSignal = day.ExitInverse
	}
	if exitSignal {
		return true, ExitSignal
	}
	return false, ExitSignal
}

// CloseDuePositions realizes every open position whose time-stop or technical
// exit fires today.
func (e *ExecutionEngine) CloseDuePositions(data *Dataset, dayIdx int, date time.Time) {
	for _, ticker := range e.book.Tickers() {
		day, ok := data.Day(ticker, dayIdx)
		if !ok {
			continue
		}
		p, _ := e.book.Get(ticker)
		due, reason := e.shouldClose(p, day, date)
		if !due {
			continue
		}
		trade, _ := e.ledger.Realize(e.book, ticker, date, day.Close, reason)
		e.logTrade("close", trade)
	}
}

// LiquidateAll force-closes every open position at the day's close price,
// used for margin calls and panic liquidation.
func (e *ExecutionEngine) LiquidateAll(data *Dataset, dayIdx int, date time.Time, reason ExitReason) {
	for _, ticker := range e.book.Tickers() {
		day, _ := data.Day(ticker, dayIdx)
		trade, _ := e.ledger.Realize(e.book, ticker, date, day.Close, reason)
		e.logTrade("liquidate", trade)
	}
}

// AdmitEntries fills ranked candidates sequentially. The per-candidate budget
// is cash / currentOpenSlots, recomputed after every fill: each admission
// consumes capital and shrinks the denominator for the next one. At most the
// day's opening slot count of candidates is considered; a candidate rejected
// on sizing grounds does not hand its slot to candidates beyond that cap.
func (e *ExecutionEngine) AdmitEntries(ranked []Candidate, date time.Time, regime Regime) {
	openSlots := e.book.OpenSlots()
	if openSlots <= 0 {
		return
	}
	if len(ranked) > openSlots {
		ranked = ranked[:openSlots]
	}

	for _, c := range ranked {
		slots := e.book.OpenSlots()
		if slots <= 0 {
			break
		}
		if c.Price <= 0 || math.IsNaN(c.Price) {
			continue
		}

		cashPerSlot := e.ledger.Cash() / float64(slots)
		targetNotional := cashPerSlot * e.cfg.LeverageFactor
		quantity := int64(math.Floor(targetNotional / c.Price))
		if quantity <= 0 {
			continue
		}

		actualNotional := float64(quantity) * c.Price
		actualCost := actualNotional / e.cfg.LeverageFactor
		if actualCost < e.cfg.MinTradeSize || actualCost > e.ledger.Cash() {
			continue
		}

		posType := Long
		if regime == Inverse {
			posType = Short
		}
		p := &Position{
			Ticker:         c.Ticker,
			Quantity:       quantity,
			EntryDate:      midnightUTC(date),
			InvestmentCost: actualCost,
			NotionalValue:  actualNotional,
			Type:           posType,
			Strategy:       regime,
		}
		if err := e.book.Open(p); err != nil {
			continue
		}
		e.ledger.Debit(actualCost)

		e.logger.Info("open",
			zap.String("date", p.EntryDate.Format("2006-01-02")),
			zap.String("ticker", c.Ticker),
			zap.String("type", posType.String()),
			zap.Int64("quantity", quantity),
			zap.Float64("price", c.Price),
			zap.Float64("cost", actualCost),
			zap.Float64("notional", actualNotional),
			zap.Float64("rsi", c.RSI),
		)
	}
}

func (e *ExecutionEngine) logTrade(event string, t CompletedTrade) {
	e.logger.Info(event,
		zap.String("date", t.ExitDate.Format("2006-01-02")),
		zap.String("ticker", t.Ticker),
		zap.String("type", t.Type.String()),
		zap.Int64("quantity", t.Quantity),
		zap.Float64("price", t.ExitPrice),
		zap.Float64("pnl", t.PnL),
		zap.Float64("financing", t.Financing),
		zap.String("reason", t.Reason.String()),
		zap.Int("days_held", t.DurationDays),
	)
}
