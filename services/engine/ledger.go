package engine

import "time"

// Ledger owns the cash balance and the realized-trade log. Realize is the
// only path by which a position's economic outcome is booked.
type Ledger struct {
	cash   float64
	trades []CompletedTrade
}

func NewLedger(initialCapital float64) *Ledger {
	return &Ledger{cash: initialCapital}
}

func (l *Ledger) Cash() float64 { return l.cash }

func (l *Ledger) Debit(amount float64) { l.cash -= amount }

func (l *Ledger) Trades() []CompletedTrade { return l.trades }

// TotalValue is cash plus every open position's equity at the day's prices.
// Pure with respect to ledger and book state.
func (l *Ledger) TotalValue(book *PositionBook, price func(ticker string) float64) float64 {
	total := l.cash
	for _, ticker := range book.Tickers() {
		p, _ := book.Get(ticker)
		total += p.Equity(price(ticker))
	}
	return total
}

// Realize closes a position at exitPrice: PnL net of accumulated financing is
// booked, cash is credited with margin plus PnL, a CompletedTrade is appended
// and the position leaves the book.
func (l *Ledger) Realize(book *PositionBook, ticker string, exitDate time.Time, exitPrice float64, reason ExitReason) (CompletedTrade, bool) {
	p, ok := book.Get(ticker)
	if !ok {
		return CompletedTrade{}, false
	}
	pnl := p.UnrealizedPnL(exitPrice) - p.AccumulatedFinancing
	l.cash += p.InvestmentCost + pnl

	trade := CompletedTrade{
		Ticker:         p.Ticker,
		Quantity:       p.Quantity,
		Type:           p.Type,
		Strategy:       p.Strategy,
		EntryDate:      p.EntryDate,
		ExitDate:       midnightUTC(exitDate),
		DurationDays:   BusinessDaysBetween(p.EntryDate, exitDate),
		ExitPrice:      exitPrice,
		PnL:            pnl,
		InvestmentCost: p.InvestmentCost,
		Financing:      p.AccumulatedFinancing,
		Reason:         reason,
	}
	l.trades = append(l.trades, trade)
	book.Remove(ticker)
	return trade, true
}
