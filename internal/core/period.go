package core

import "fmt"

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From Date
	To   Date
}

// CurrentMonth returns the calendar month containing today.
func CurrentMonth(today Date) DateRange {
	return DateRange{From: today.MonthStart(), To: today.MonthEnd()}
}

// TrailingMonths returns the n calendar months ending with today's month.
func TrailingMonths(today Date, n int) DateRange {
	if n < 1 {
		n = 1
	}
	return DateRange{From: today.AddMonths(-(n - 1)), To: today.MonthEnd()}
}

// Validate fails with ErrInvalidArgument when To precedes From.
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("%w: range bounds must be set", ErrInvalidArgument)
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("%w: range end %s is before start %s", ErrInvalidArgument, r.To, r.From)
	}
	return nil
}

// Contains reports whether d falls inside the range, bounds included.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.From) && !d.After(r.To)
}

// Union returns the smallest range covering both r and other.
func (r DateRange) Union(other DateRange) DateRange {
	out := r
	if other.From.Before(out.From) {
		out.From = other.From
	}
	if other.To.After(out.To) {
		out.To = other.To
	}
	return out
}

func (r DateRange) String() string {
	return r.From.String() + ".." + r.To.String()
}
