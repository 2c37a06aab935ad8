package engine

import "time"

// BusinessDaysBetween counts weekdays in [from, to), Saturdays and Sundays
// excluded, public holidays not excluded. Matches numpy busday_count, which
// the trade-duration numbers are calibrated against.
func BusinessDaysBetween(from, to time.Time) int {
	from = midnightUTC(from)
	to = midnightUTC(to)
	if !from.Before(to) {
		return 0
	}
	days := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			days++
		}
	}
	return days
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
