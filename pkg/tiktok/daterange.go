package tiktok

import (
	"time"

	"tikresearch/pkg/errors"
)

// wireDateFormat is how the vendor API expects dates on the wire
const wireDateFormat = "20060102"

// inputDateFormat is how dates are accepted on the CLI
const inputDateFormat = "2006-01-02"

// Range is one sub-window of the overall collection window, sized to fit
// the vendor's per-request span limit.
type Range struct {
	Start time.Time
	End   time.Time
}

// WireStart returns the range start in wire format
func (r Range) WireStart() string { return r.Start.Format(wireDateFormat) }

// WireEnd returns the range end in wire format
func (r Range) WireEnd() string { return r.End.Format(wireDateFormat) }

func (r Range) String() string {
	return r.WireStart() + ".." + r.WireEnd()
}

// ParseDate parses a YYYY-MM-DD CLI date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(inputDateFormat, s)
	if err != nil {
		return time.Time{}, errors.New(errors.ErrorTypeInvalidRange, "invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// Chunks splits [start, end] into an ordered sequence of ranges covering
// the window with no gaps and no overlaps, each spanning at most
// maxSpanDays days. The vendor rejects single queries wider than its span
// limit, so any non-trivial historical window must be chunked; the final
// chunk ends exactly at end, never padded past it.
func Chunks(start, end time.Time, maxSpanDays int) ([]Range, error) {
	start = truncateToDay(start)
	end = truncateToDay(end)

	if end.Before(start) {
		return nil, errors.New(errors.ErrorTypeInvalidRange,
			"end date %s is before start date %s",
			end.Format(inputDateFormat), start.Format(inputDateFormat))
	}
	if maxSpanDays < 0 {
		return nil, errors.New(errors.ErrorTypeInvalidRange, "max span must not be negative, got %d", maxSpanDays)
	}

	var ranges []Range
	cur := start
	for {
		chunkEnd := cur.AddDate(0, 0, maxSpanDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		ranges = append(ranges, Range{Start: cur, End: chunkEnd})
		if !chunkEnd.Before(end) {
			break
		}
		cur = chunkEnd.AddDate(0, 0, 1)
	}
	return ranges, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
