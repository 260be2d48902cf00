package core

import (
	"fmt"
	"strings"
	"time"
)

// Period names a reporting window relative to the current date.
type Period string

const (
	PeriodWeekly      Period = "weekly"
	PeriodMonthly     Period = "monthly"
	PeriodThreeMonths Period = "3months"
	PeriodSixMonths   Period = "6months"
	PeriodYearly      Period = "yearly"
	PeriodAll         Period = "all"
)

// Periods lists every period in display order.
func Periods() []Period {
	return []Period{PeriodWeekly, PeriodMonthly, PeriodThreeMonths, PeriodSixMonths, PeriodYearly, PeriodAll}
}

// Label returns the human readable name of the period.
func (p Period) Label() string {
	switch p {
	case PeriodWeekly:
		return "This Week"
	case PeriodMonthly:
		return "This Month"
	case PeriodThreeMonths:
		return "Last 3 Months"
	case PeriodSixMonths:
		return "Last 6 Months"
	case PeriodYearly:
		return "This Year"
	case PeriodAll:
		return "All Time"
	default:
		return string(p)
	}
}

// IsValid reports whether p is a known period.
func (p Period) IsValid() bool {
	for _, known := range Periods() {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePeriod parses a period name. An empty string yields PeriodMonthly.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PeriodMonthly, nil
	}
	p := Period(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown period %q", ErrValidation, s)
	}
	return p, nil
}

// DateRange is an inclusive window of epoch milliseconds.
type DateRange struct {
	StartDate int64 `json:"startDate"`
	EndDate   int64 `json:"endDate"`
}

// Start returns the start of the range in loc.
func (r DateRange) Start(loc *time.Location) time.Time { return time.UnixMilli(r.StartDate).In(loc) }

// End returns the end of the range in loc.
func (r DateRange) End(loc *time.Location) time.Time { return time.UnixMilli(r.EndDate).In(loc) }

// Contains reports whether ms falls inside the range.
func (r DateRange) Contains(ms int64) bool {
	return ms >= r.StartDate && ms <= r.EndDate
}

// farFutureYear bounds PeriodAll; later than any realistic expense date.
const farFutureYear = 2099

// Resolve maps a period to a concrete range using the calendar date of now
// in now's location. Weeks start on Sunday. Month ends are computed as day 0
// of the following month so month lengths and leap years come from the
// calendar. Unknown periods resolve like PeriodMonthly.
func Resolve(p Period, now time.Time) DateRange {
	loc := now.Location()
	y, m, d := now.Date()

	switch p {
	case PeriodWeekly:
		wd := int(now.Weekday())
		return span(startOfDay(y, m, d-wd, loc), endOfDay(y, m, d-wd+6, loc))
	case PeriodThreeMonths:
		return span(startOfDay(y, m-2, 1, loc), endOfDay(y, m+1, 0, loc))
	case PeriodSixMonths:
		return span(startOfDay(y, m-5, 1, loc), endOfDay(y, m+1, 0, loc))
	case PeriodYearly:
		return span(startOfDay(y, time.January, 1, loc), endOfDay(y, time.December, 31, loc))
	case PeriodAll:
		return DateRange{StartDate: 0, EndDate: endOfDay(farFutureYear, time.December, 31, loc).UnixMilli()}
	default:
		return span(startOfDay(y, m, 1, loc), endOfDay(y, m+1, 0, loc))
	}
}

func span(start, end time.Time) DateRange {
	return DateRange{StartDate: start.UnixMilli(), EndDate: end.UnixMilli()}
}

func startOfDay(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func endOfDay(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
}
