package attendance

import (
	"fmt"
	"strconv"
	"time"
)

// RangeAll disables the date-range filter.
const RangeAll = "ALL"

// HistoryFilter narrows the history view. Empty or "ALL" fields match everything.
type HistoryFilter struct {
	WorkerID  string
	DateRange string // number of days, or "ALL"
}

// Validate checks that DateRange is "ALL", empty, or a positive day count.
func (f HistoryFilter) Validate() error {
	if f.DateRange == "" || f.DateRange == RangeAll {
		return nil
	}
	n, err := strconv.Atoi(f.DateRange)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid date range %q", f.DateRange)
	}
	return nil
}

// FilterHistory keeps records matching the worker and whose age is at most DateRange days.
// An invalid DateRange is treated as "ALL"; callers validate first when they care.
func FilterHistory(records []Record, f HistoryFilter, now time.Time) []Record {
	var maxAge time.Duration
	if f.DateRange != "" && f.DateRange != RangeAll {
		if days, err := strconv.Atoi(f.DateRange); err == nil && days > 0 {
			maxAge = time.Duration(days) * 24 * time.Hour
		}
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.WorkerID != "" && f.WorkerID != RangeAll && r.WorkerID != f.WorkerID {
			continue
		}
		if maxAge > 0 && now.Sub(r.Timestamp) > maxAge {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FilterDay keeps records that fall on the same calendar day as day in loc.
func FilterDay(records []Record, day time.Time, loc *time.Location) []Record {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.In(loc).Date()

	out := make([]Record, 0)
	for _, r := range records {
		ry, rm, rd := r.Timestamp.In(loc).Date()
		if ry == y && rm == m && rd == d {
			out = append(out, r)
		}
	}
	return out
}

// PresentCount returns the number of distinct workers in records.
func PresentCount(records []Record) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.WorkerID] = struct{}{}
	}
	return len(seen)
}
