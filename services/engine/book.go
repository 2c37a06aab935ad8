package engine

import (
	"errors"
	"sort"
)

var (
	ErrDuplicatePosition = errors.New("ticker already has an open position")
	ErrBookFull          = errors.New("position book at capacity")
)

// PositionBook owns the open positions, keyed by ticker: at most one position
// per ticker, at most maxPositions concurrently.
type PositionBook struct {
	maxPositions int
	positions    map[string]*Position
}

func NewPositionBook(maxPositions int) *PositionBook {
	return &PositionBook{
		maxPositions: maxPositions,
		positions:    make(map[string]*Position),
	}
}

func (b *PositionBook) Open(p *Position) error {
	if _, ok := b.positions[p.Ticker]; ok {
		return ErrDuplicatePosition
	}
	if len(b.positions) >= b.maxPositions {
		return ErrBookFull
	}
	b.positions[p.Ticker] = p
	return nil
}

func (b *PositionBook) Get(ticker string) (*Position, bool) {
	p, ok := b.positions[ticker]
	return p, ok
}

func (b *PositionBook) Has(ticker string) bool {
	_, ok := b.positions[ticker]
	return ok
}

func (b *PositionBook) Remove(ticker string) {
	delete(b.positions, ticker)
}

func (b *PositionBook) Len() int { return len(b.positions) }

func (b *PositionBook) OpenSlots() int { return b.maxPositions - len(b.positions) }

// Tickers returns open tickers in ascending order so that every loop over the
// book is deterministic.
func (b *PositionBook) Tickers() []string {
	out := make([]string, 0, len(b.positions))
	for t := range b.positions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// AccrueFinancing charges one calendar day of carry on every open position:
// notional × annualRate / 360, simple proration, not compounded. Charged
// unconditionally while leverage > 1, longs and shorts alike.
func (b *PositionBook) AccrueFinancing(annualRate float64) {
	for _, p := range b.positions {
		p.AccumulatedFinancing += p.NotionalValue * annualRate / 360
	}
}
