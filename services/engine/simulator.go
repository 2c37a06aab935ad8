package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Simulator replays the trading calendar once through the strategy. Each day
// runs a fixed sequence: financing accrual, equity/insolvency check, position
// closes, regime re-evaluation, new entries, snapshot. Strictly sequential —
// every day depends on the previous day's cash and positions. Independent
// runs may execute concurrently as long as they share the Dataset and
// RegimeFeed read-only.
type Simulator struct {
	cfg    Config
	data   *Dataset
	feed   *RegimeFeed
	logger *zap.Logger
}

// Result is everything one run produces.
type Result struct {
	Snapshots     []PortfolioSnapshot
	Trades        []CompletedTrade
	OpenPositions []Position
	Switches      []RegimeSwitch
	FinalCash     float64

	// Insolvent marks a run terminated by margin call; no snapshots exist
	// past InsolvencyDate.
	Insolvent      bool
	InsolvencyDate time.Time
}

func New(cfg Config, data *Dataset, feed *RegimeFeed, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{cfg: cfg, data: data, feed: feed, logger: logger}
}

func (s *Simulator) Run() (*Result, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	start := s.data.IndexAtOrAfter(s.cfg.Start)
	if start < 0 {
		return nil, fmt.Errorf("start date %s beyond calendar", s.cfg.Start.Format("2006-01-02"))
	}

	ledger := NewLedger(s.cfg.InitialCapital)
	book := NewPositionBook(s.cfg.MaxPositions)
	switcher := NewStrategySwitcher(s.cfg.switcher(), s.cfg.InitialRegime)
	exec := NewExecutionEngine(s.cfg, ledger, book, s.logger)

	result := &Result{}
	calendar := s.data.Calendar()

	for i := start; i < len(calendar); i++ {
		date := calendar[i]
		if !s.cfg.End.IsZero() && date.After(s.cfg.End) {
			break
		}
		sample := s.feed.At(i)
		price := func(ticker string) float64 {
			day, ok := s.data.Day(ticker, i)
			if !ok {
				return math.NaN()
			}
			return day.Close
		}

		// (a) financing accrual — open positions pay today's carry even if
		// they close later in the same step; entries made today do not.
		if s.cfg.LeverageFactor > 1 {
			book.AccrueFinancing(financingRate(sample))
		}

		// (b) equity and insolvency
		total := ledger.TotalValue(book, price)
		if total <= 0 {
			s.logger.Warn("margin call",
				zap.String("date", date.Format("2006-01-02")),
				zap.Float64("total_value", total),
				zap.Int("open_positions", book.Len()),
			)
			exec.LiquidateAll(s.data, i, date, ExitMarginCall)
			result.Snapshots = append(result.Snapshots, PortfolioSnapshot{Date: date, Value: ledger.Cash()})
			result.Insolvent = true
			result.InsolvencyDate = date
			break
		}

		// (c) close due positions
		exec.CloseDuePositions(s.data, i, date)

		// (d) regime re-evaluation
		if switched, panicked := switcher.Evaluate(date, sample); switched {
			s.logger.Info("switch",
				zap.String("date", date.Format("2006-01-02")),
				zap.String("regime", switcher.Regime().String()),
				zap.Float64("vol_index", sample.VolIndex),
			)
			if panicked {
				exec.LiquidateAll(s.data, i, date, ExitPanicLiquidation)
			}
		}

		// (e) new entries
		if book.OpenSlots() > 0 && switcher.EntriesAllowed(sample) {
			ranked := Rank(s.collectCandidates(book, i, switcher.Regime()), s.cfg.Method, switcher.Regime())
			exec.AdmitEntries(ranked, date, switcher.Regime())
		}

		// (f) snapshot — the value computed before closes and entries, as
		// both only move money between cash and position equity.
		result.Snapshots = append(result.Snapshots, PortfolioSnapshot{Date: date, Value: total})
	}

	result.Trades = ledger.Trades()
	result.Switches = switcher.History()
	result.FinalCash = ledger.Cash()
	for _, ticker := range book.Tickers() {
		p, _ := book.Get(ticker)
		result.OpenPositions = append(result.OpenPositions, *p)
	}
	sort.Slice(result.OpenPositions, func(a, b int) bool {
		return result.OpenPositions[a].Ticker < result.OpenPositions[b].Ticker
	})
	return result, nil
}

// collectCandidates gathers tickers without an open position whose buy flag
// for the active regime is set and whose price is known and positive.
// Iteration order is the dataset's sorted ticker list, keeping candidate
// order (and with it every downstream tie-break) deterministic.
func (s *Simulator) collectCandidates(book *PositionBook, dayIdx int, regime Regime) []Candidate {
	var out []Candidate
	for _, ticker := range s.data.Tickers() {
		if book.Has(ticker) {
			continue
		}
		day, ok := s.data.Day(ticker, dayIdx)
		if !ok {
			continue
		}
		buy := day.BuyNormal
		if regime == Inverse {
			buy = day.BuyInverse
		}
		if !buy || math.IsNaN(day.Close) || day.Close <= 0 {
			continue
		}
		out = append(out, Candidate{
			Ticker: ticker,
			Price:  day.Close,
			RSI:    day.RSI2,
			HV:     day.HV100,
			ADX:    day.ADX14,
		})
	}
	return out
}

// financingRate is the annualized carry: feed base rate (percent) plus the
// broker spread, falling back to a fixed base when the feed is silent.
func financingRate(sample RegimeSample) float64 {
	base := sample.BaseRate
	if math.IsNaN(base) {
		base = FallbackBaseRate
	}
	return base/100 + FinancingSpread
}
