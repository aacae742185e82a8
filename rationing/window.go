package rationing

import "time"

// =============================================================================
// WINDOW - The quota reset boundary
// =============================================================================

// Window is the inclusive date range over which consumed quantity is summed.
// Consumption resets to zero at every window boundary.
type Window struct {
	Start Date
	End   Date
}

// Contains reports whether t falls inside the window [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start.StartOfDay()) && !t.After(w.End.EndOfDay())
}

func (w Window) String() string {
	return "[" + w.Start.String() + ", " + w.End.String() + "]"
}

// WindowFor returns the window of the given period containing d:
//
//	Daily   -> [d, d]
//	Weekly  -> the ISO week containing d (Monday .. Sunday)
//	Monthly -> the calendar month containing d
func WindowFor(p Period, d Date) Window {
	switch p {
	case PeriodDaily:
		return Window{Start: d, End: d}

	case PeriodWeekly:
		monday := d.AddDays(1 - d.ISOWeekday())
		return Window{Start: monday, End: monday.AddDays(6)}

	case PeriodMonthly:
		start := NewDate(d.Year(), d.Month(), 1)
		end := DateOf(start.StartOfDay().AddDate(0, 1, -1))
		return Window{Start: start, End: end}

	default:
		// Unknown periods collapse to a single day, the most restrictive
		// interpretation.
		return Window{Start: d, End: d}
	}
}
