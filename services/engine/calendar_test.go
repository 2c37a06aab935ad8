package engine

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBusinessDaysBetween(t *testing.T) {
	cases := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{"same day", date(2024, 1, 1), date(2024, 1, 1), 0},
		{"mon to tue", date(2024, 1, 1), date(2024, 1, 2), 1},
		{"mon to next mon", date(2024, 1, 1), date(2024, 1, 8), 5},
		{"fri to mon", date(2024, 1, 5), date(2024, 1, 8), 1},
		{"sat to mon", date(2024, 1, 6), date(2024, 1, 8), 0},
		{"two weeks", date(2024, 1, 1), date(2024, 1, 15), 10},
		{"reversed", date(2024, 1, 8), date(2024, 1, 1), 0},
	}
	for _, tc := range cases {
		if got := BusinessDaysBetween(tc.from, tc.to); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestBusinessDaysBetweenIgnoresClock(t *testing.T) {
	from := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC)
	if got := BusinessDaysBetween(from, to); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}
