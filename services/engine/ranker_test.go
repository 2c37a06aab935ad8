package engine

import (
	"math"
	"testing"
)

func tickersOf(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Ticker
	}
	return out
}

func sameOrder(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestSortSpecRSIFlipsWithRegime(t *testing.T) {
	key, desc := SortSpec(MethodRSI, Normal)
	if key != KeyRSI || desc {
		t.Fatalf("NORMAL: got (%v, desc=%v), want (KeyRSI, asc)", key, desc)
	}
	key, desc = SortSpec(MethodRSI, Inverse)
	if key != KeyRSI || !desc {
		t.Fatalf("INVERSE: got (%v, desc=%v), want (KeyRSI, desc)", key, desc)
	}
}

func TestSortSpecFixedMethods(t *testing.T) {
	for _, regime := range []Regime{Normal, Inverse} {
		if key, desc := SortSpec(MethodRSIDesc, regime); key != KeyRSI || !desc {
			t.Errorf("RSI_DESC in %s: got (%v, %v)", regime, key, desc)
		}
		if key, desc := SortSpec(MethodHVDesc, regime); key != KeyHV || !desc {
			t.Errorf("HV_DESC in %s: got (%v, %v)", regime, key, desc)
		}
		if key, desc := SortSpec(MethodADXDesc, regime); key != KeyADX || !desc {
			t.Errorf("ADX_DESC in %s: got (%v, %v)", regime, key, desc)
		}
		if key, desc := SortSpec(MethodAZ, regime); key != KeyTicker || desc {
			t.Errorf("A-Z in %s: got (%v, %v)", regime, key, desc)
		}
		if key, desc := SortSpec(MethodZA, regime); key != KeyTicker || !desc {
			t.Errorf("Z-A in %s: got (%v, %v)", regime, key, desc)
		}
	}
}

func TestRankRSIByRegime(t *testing.T) {
	cs := []Candidate{
		{Ticker: "AAA", RSI: 4.0},
		{Ticker: "BBB", RSI: 1.5},
		{Ticker: "CCC", RSI: 3.0},
	}
	got := tickersOf(Rank(cs, MethodRSI, Normal))
	if !sameOrder(got, []string{"BBB", "CCC", "AAA"}) {
		t.Errorf("NORMAL ascending: got %v", got)
	}
	got = tickersOf(Rank(cs, MethodRSI, Inverse))
	if !sameOrder(got, []string{"AAA", "CCC", "BBB"}) {
		t.Errorf("INVERSE descending: got %v", got)
	}
}

func TestRankNaNAlwaysLast(t *testing.T) {
	nan := math.NaN()
	cs := []Candidate{
		{Ticker: "AAA", RSI: nan},
		{Ticker: "BBB", RSI: 2.0},
		{Ticker: "CCC", RSI: 1.0},
	}
	got := tickersOf(Rank(cs, MethodRSI, Normal))
	if got[len(got)-1] != "AAA" {
		t.Errorf("ascending: NaN not last, got %v", got)
	}
	got = tickersOf(Rank(cs, MethodRSI, Inverse))
	if got[len(got)-1] != "AAA" {
		t.Errorf("descending: NaN not last, got %v", got)
	}
}

func TestRankTiesBreakByTicker(t *testing.T) {
	cs := []Candidate{
		{Ticker: "ZZZ", RSI: 2.0},
		{Ticker: "AAA", RSI: 2.0},
		{Ticker: "MMM", RSI: 2.0},
	}
	got := tickersOf(Rank(cs, MethodRSI, Normal))
	if !sameOrder(got, []string{"AAA", "MMM", "ZZZ"}) {
		t.Errorf("tie-break: got %v", got)
	}
	got = tickersOf(Rank(cs, MethodRSI, Inverse))
	if !sameOrder(got, []string{"AAA", "MMM", "ZZZ"}) {
		t.Errorf("tie-break under desc: got %v", got)
	}
}

func TestRankAlphabetical(t *testing.T) {
	cs := []Candidate{{Ticker: "B"}, {Ticker: "C"}, {Ticker: "A"}}
	if got := tickersOf(Rank(cs, MethodAZ, Normal)); !sameOrder(got, []string{"A", "B", "C"}) {
		t.Errorf("A-Z: got %v", got)
	}
	if got := tickersOf(Rank(cs, MethodZA, Normal)); !sameOrder(got, []string{"C", "B", "A"}) {
		t.Errorf("Z-A: got %v", got)
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	cs := []Candidate{{Ticker: "B", RSI: 2}, {Ticker: "A", RSI: 1}}
	Rank(cs, MethodRSI, Normal)
	if cs[0].Ticker != "B" {
		t.Fatal("input slice was reordered")
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range AllMethods {
		got, err := ParseMethod(string(m))
		if err != nil || got != m {
			t.Errorf("ParseMethod(%q) = %v, %v", m, got, err)
		}
	}
	if _, err := ParseMethod("BOGUS"); err == nil {
		t.Error("expected error for unknown method")
	}
}
