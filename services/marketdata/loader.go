// Package marketdata loads ticker universes and daily bar files and aligns
// them onto one shared trading calendar for the simulation engine.
package marketdata

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Bar is one raw daily OHLC observation.
type Bar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// LoadTickerList reads a universe file: one ticker per line, first CSV column
// only. A line starting with "Blacklist" (any case) opens an exclusion
// section; everything after it is removed from the universe. Blank lines are
// skipped. The result is deduplicated and sorted.
func LoadTickerList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ticker list: %w", err)
	}
	defer f.Close()

	var tickers []string
	blacklist := map[string]bool{}
	inBlacklist := false

	sc := bufio.NewScanner(decodeReader(f))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "blacklist") {
			inBlacklist = true
			continue
		}
		symbol := strings.TrimSpace(strings.SplitN(line, ",", 2)[0])
		if symbol == "" {
			continue
		}
		if inBlacklist {
			blacklist[symbol] = true
		} else {
			tickers = append(tickers, symbol)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ticker list %s: %w", path, err)
	}

	seen := map[string]bool{}
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if blacklist[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// LoadBars reads a daily OHLC CSV. The header names the columns (Date, Open,
// High, Low, Close; extras like Adj Close and Volume are ignored). Rows come
// back sorted by date with exact duplicates collapsed to the last occurrence.
func LoadBars(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bars: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(decodeReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("bars %s: header: %w", path, err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("bars %s: missing column %q", path, required)
		}
	}

	var bars []Bar
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bars %s: %w", path, err)
		}
		b, err := parseBar(rec, col)
		if err != nil {
			return nil, fmt.Errorf("bars %s: %w", path, err)
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	out := bars[:0]
	for _, b := range bars {
		if len(out) > 0 && out[len(out)-1].Date.Equal(b.Date) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// LoadBarDir loads every *.csv in dir as one ticker's bar history, the ticker
// being the uppercased file name without extension.
func LoadBarDir(dir string) (map[string][]Bar, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("bar dir: %w", err)
	}
	out := map[string][]Bar{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		ticker := strings.ToUpper(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		bars, err := LoadBars(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if len(bars) > 0 {
			out[ticker] = bars
		}
	}
	return out, nil
}

func parseBar(rec []string, col map[string]int) (Bar, error) {
	field := func(name string) (string, error) {
		i := col[name]
		if i >= len(rec) {
			return "", fmt.Errorf("row too short for column %q", name)
		}
		return strings.TrimSpace(rec[i]), nil
	}
	dateStr, err := field("date")
	if err != nil {
		return Bar{}, err
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return Bar{}, err
	}
	b := Bar{Date: date}
	for _, c := range []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
	} {
		s, err := field(c.name)
		if err != nil {
			return Bar{}, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Bar{}, fmt.Errorf("column %q: %w", c.name, err)
		}
		*c.dst = v
	}
	return b, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// decodeReader sniffs a UTF-16 BOM and decodes to UTF-8 when present; plain
// UTF-8 files (with or without BOM) pass through untouched.
func decodeReader(f io.Reader) io.Reader {
	br := bufio.NewReader(f)
	if b, _ := br.Peek(2); len(b) >= 2 {
		if b[0] == 0xFF && b[1] == 0xFE {
			return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
		}
		if b[0] == 0xFE && b[1] == 0xFF {
			return transform.NewReader(br, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder())
		}
	}
	if b, _ := br.Peek(3); len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		br.Discard(3)
	}
	return br
}
