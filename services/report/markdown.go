package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"meanrev-backtest/services/engine"
)

// ConfigLine is one key/value pair echoed into the report's configuration
// section, in the order given.
type ConfigLine struct {
	Key   string
	Value string
}

// Document is everything one markdown report renders.
type Document struct {
	Title    string
	Config   []ConfigLine
	Summary  Summary
	Periodic []YearReturn
	Switches []engine.RegimeSwitch
	Trades   []engine.CompletedTrade
	Open     []engine.Position
	End      time.Time // valuation date for open position holding periods
}

var printer = message.NewPrinter(language.English)

func usd(v float64) string { return printer.Sprintf("$%.2f", v) }

// Render produces the markdown text.
func (d Document) Render() string {
	var b strings.Builder
	title := d.Title
	if title == "" {
		title = "Backtest Report"
	}
	fmt.Fprintf(&b, "# %s\n", title)

	if len(d.Config) > 0 {
		b.WriteString("## Configuration\n")
		for _, line := range d.Config {
			fmt.Fprintf(&b, "- **%s:** %s\n", line.Key, line.Value)
		}
	}

	s := d.Summary
	b.WriteString("\n## Performance Summary\n")
	fmt.Fprintf(&b, "- **Initial Value:** %s\n", usd(s.InitialValue))
	fmt.Fprintf(&b, "- **Final Value:** %s\n", usd(s.FinalValue))
	fmt.Fprintf(&b, "- **Max Value:** %s\n", usd(s.MaxValue))
	fmt.Fprintf(&b, "- **Total Return:** %.2f%%\n", s.TotalReturnPct)
	fmt.Fprintf(&b, "- **Annualized Return:** %.2f%%\n", s.AnnualizedReturnPct)
	fmt.Fprintf(&b, "- **Total Trades:** %d\n", s.TotalTrades)
	fmt.Fprintf(&b, "- **Winrate:** %.2f%%\n", s.WinRatePct)
	fmt.Fprintf(&b, "- **Avg Duration (d):** %.2f\n", s.AvgDurationDays)
	fmt.Fprintf(&b, "- **Avg Profit per Trade:** %.2f%%\n", s.AvgPercentReturn)
	if s.TotalTrades > 0 {
		fmt.Fprintf(&b, "- **Best Trade ($):** %s (%s)\n", usd(s.BestTradeUSD.Value), s.BestTradeUSD.Ticker)
		fmt.Fprintf(&b, "- **Worst Trade ($):** %s (%s)\n", usd(s.WorstTradeUSD.Value), s.WorstTradeUSD.Ticker)
		fmt.Fprintf(&b, "- **Best Trade (%%):** %.2f%% (%s)\n", s.BestTradePct.Value, s.BestTradePct.Ticker)
		fmt.Fprintf(&b, "- **Worst Trade (%%):** %.2f%% (%s)\n", s.WorstTradePct.Value, s.WorstTradePct.Ticker)
		fmt.Fprintf(&b, "- **Longest Trade:** %.0f days (%s)\n", s.LongestTrade.Value, s.LongestTrade.Ticker)
	}

	if len(d.Periodic) > 0 {
		b.WriteString("\n## Periodic Returns\n")
		for _, year := range d.Periodic {
			fmt.Fprintf(&b, "### %d\n", year.Year)
			fmt.Fprintf(&b, "- **Initial Capital:** %s\n", usd(year.InitialCapital))
			fmt.Fprintf(&b, "- **Yearly P&L:** %s (%.2f%%)\n", usd(year.PnL), year.ReturnPct)
			for _, m := range year.Months {
				fmt.Fprintf(&b, "  - **%s:** %s (%.2f%%)\n", m.Month, usd(m.PnL), m.ReturnPct)
			}
		}
	}

	if len(d.Switches) > 0 {
		b.WriteString("\n## Strategy Switching History\n")
		for _, sw := range d.Switches {
			fmt.Fprintf(&b, "- **%s:** %s -> %s\n", sw.Date.Format("2006-01-02"), sw.From, sw.To)
		}
	}

	if len(d.Trades) > 0 {
		b.WriteString("\n## Trade Log\n")
		b.WriteString("| Exit Date | Ticker | Type | Qty | Exit Price | P&L | Return | Days | Reason |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
		for _, t := range d.Trades {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %.2f | %s | %.2f%% | %d | %s |\n",
				t.ExitDate.Format("2006-01-02"), t.Ticker, t.Type, t.Quantity,
				t.ExitPrice, usd(t.PnL), t.PercentReturn(), t.DurationDays, t.Reason)
		}
	}

	b.WriteString("\n## Open Positions at End of Backtest\n")
	if len(d.Open) == 0 {
		b.WriteString("No positions were open at the end of the backtest.\n")
	} else {
		for _, p := range d.Open {
			held := 0
			if !d.End.IsZero() {
				held = engine.BusinessDaysBetween(p.EntryDate, d.End)
			}
			fmt.Fprintf(&b, "- **%s:** held %d days (quantity %d, cost %s)\n",
				p.Ticker, held, p.Quantity, usd(p.InvestmentCost))
		}
	}
	return b.String()
}

// Write renders the document into dir under baseName.md; when that file
// already exists the name gets a numeric suffix instead of overwriting.
// Returns the path written.
func Write(dir, baseName string, d Document) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report dir: %w", err)
	}
	path := filepath.Join(dir, baseName+".md")
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d.md", baseName, i))
	}
	if err := os.WriteFile(path, []byte(d.Render()), 0o644); err != nil {
		return "", fmt.Errorf("report write: %w", err)
	}
	return path, nil
}
