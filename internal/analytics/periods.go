package analytics

import "time"

// Period is a named reporting window ending now.
type Period string

const (
	PeriodDay     Period = "24h"
	PeriodWeek    Period = "7d"
	PeriodMonth   Period = "30d"
	PeriodQuarter Period = "90d"
)

// ParsePeriod maps a query string value to a Period, defaulting to 30 days
// for anything unrecognized.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter:
		return Period(s)
	default:
		return PeriodMonth
	}
}

// Duration returns the window length of the period.
func (p Period) Duration() time.Duration {
	switch p {
	case PeriodDay:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodQuarter:
		return 90 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Range returns the [from, to] window for the period ending at now.
func (p Period) Range(now time.Time) (from, to time.Time) {
	to = now.UTC()
	return to.Add(-p.Duration()), to
}
