package domain

import "time"

// Period bounds. The school day has eight teaching periods; the clock table
// below is identical for all weekdays.
const (
	MinPeriod = 1
	MaxPeriod = 8

	// LunchAfterPeriod is the fixed lunch break boundary. Contiguous
	// periods of the same course are never merged across it.
	LunchAfterPeriod = 4
)

// PeriodClock holds the start and end of one period as minute offsets from
// midnight.
type PeriodClock struct {
	StartMinute int
	EndMinute   int
}

// periodTable maps period number (1-based) to its clock times. Periods run
// 50 minutes on the hour from 09:00, with lunch between periods 4 and 5.
var periodTable = [MaxPeriod + 1]PeriodClock{
	1: {StartMinute: 9 * 60, EndMinute: 9*60 + 50},
	2: {StartMinute: 10 * 60, EndMinute: 10*60 + 50},
	3: {StartMinute: 11 * 60, EndMinute: 11*60 + 50},
	4: {StartMinute: 12 * 60, EndMinute: 12*60 + 50},
	5: {StartMinute: 14 * 60, EndMinute: 14*60 + 50},
	6: {StartMinute: 15 * 60, EndMinute: 15*60 + 50},
	7: {StartMinute: 16 * 60, EndMinute: 16*60 + 50},
	8: {StartMinute: 17 * 60, EndMinute: 17*60 + 50},
}

// ClockForPeriod returns the clock times for a period. Period must be in
// [MinPeriod, MaxPeriod].
func ClockForPeriod(period int) PeriodClock {
	return periodTable[period]
}

// SlotTimes resolves a slot position to absolute start/end timestamps:
// date = weekStart + (weekday-1) days, clock from the period table.
func SlotTimes(weekStart time.Time, weekday, periodStart, periodEnd int) (time.Time, time.Time) {
	day := weekStart.AddDate(0, 0, weekday-1)
	start := day.Add(time.Duration(periodTable[periodStart].StartMinute) * time.Minute)
	end := day.Add(time.Duration(periodTable[periodEnd].EndMinute) * time.Minute)
	return start, end
}
