/*
Package rationing provides the core critical-item rationing engine.

PURPOSE:
  This package contains the domain types and algorithms that decide whether
  a specific person may purchase a specific quantity of a restricted item on
  a specific date. Rules, quota windows, the purchase ledger, and the
  eligibility evaluator all live here; transport and persistence are
  external collaborators reached through narrow interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Date: A day-granularity point in time (all rationing decisions are daily)
  - CriticalItem: A catalog item that may carry a rationing rule
  - Individual: The purchaser; only the date of birth matters here
  - PurchaseRecord: An immutable ledger entry recording a committed purchase
  - DigitSet / WeekdaySet: Small bit-set types for rule eligibility

DESIGN PRINCIPLES:
  1. Immutability: Purchase records are appended, never modified
  2. Explicit time: The reference date is always a parameter, never an
     ambient clock read, so boundary dates are deterministic under test
  3. Type Safety: Strong typing for IDs prevents mixing item/individual IDs
  4. Derived state: Consumed quota is always recomputed from records

SEE ALSO:
  - rule.go: Rationing rules and eligibility predicates
  - window.go: Daily/weekly/monthly quota windows
  - ledger.go: Consumed-quantity computation over purchase records
  - evaluator.go: The purchase authorization decision
*/
package rationing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type IndividualID string
type LocationID string
type RecordID string

// =============================================================================
// DATE - Day-granularity time point
// =============================================================================

// Date is a calendar day in UTC. All rule activation, weekday checks and
// quota windows operate at day granularity; intra-day ordering of purchases
// is irrelevant to the quota.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses the wire format "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }

// ISOWeekday returns the ISO-8601 weekday: 1=Monday .. 7=Sunday.
func (d Date) ISOWeekday() int {
	wd := int(d.t.Weekday()) // Go: 0=Sunday .. 6=Saturday
	if wd == 0 {
		return 7
	}
	return wd
}

// StartOfDay returns the first instant of the day.
func (d Date) StartOfDay() time.Time { return d.t }

// EndOfDay returns the last instant of the day (inclusive upper bound for
// timestamp comparisons).
func (d Date) EndOfDay() time.Time {
	return d.t.Add(24*time.Hour - time.Nanosecond)
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

// =============================================================================
// CRITICAL ITEM - Catalog entry, optionally restricted
// =============================================================================

// CriticalItem is a catalog item. IsRestricted and Rule mirror the latest
// entry of the item's rule history for display; eligibility decisions read
// the history itself, not this mirror. Rules are replaced wholesale, never
// field-by-field (see Catalog.SetRestriction).
type CriticalItem struct {
	ID           ItemID
	Name         string
	Category     string
	Description  string
	IsRestricted bool
	Rule         *RationingRule
}

// =============================================================================
// INDIVIDUAL - The purchaser
// =============================================================================

// Individual carries the only profile field the engine consumes. Everything
// else about a person is opaque to rationing decisions.
type Individual struct {
	ID          IndividualID
	DateOfBirth Date
}

// =============================================================================
// PURCHASE RECORD - Immutable ledger entry
// =============================================================================

// PurchaseRecord is a committed purchase. Records are append-only; the quota
// ledger is always derived from them, never mutated independently.
type PurchaseRecord struct {
	ID           RecordID
	IndividualID IndividualID
	ItemID       ItemID
	LocationID   LocationID
	Quantity     int
	Timestamp    time.Time
}

// =============================================================================
// DIGIT SET / WEEKDAY SET - Rule eligibility sets
// =============================================================================

// DigitSet is a set of birth-year last digits (0..9).
type DigitSet uint16

// WeekdaySet is a set of ISO weekdays (1=Monday .. 7=Sunday).
type WeekdaySet uint8

// NewDigitSet builds a set from digits; out-of-range values are ignored.
func NewDigitSet(digits ...int) DigitSet {
	var s DigitSet
	for _, d := range digits {
		if d >= 0 && d <= 9 {
			s |= 1 << uint(d)
		}
	}
	return s
}

func (s DigitSet) Contains(digit int) bool {
	return digit >= 0 && digit <= 9 && s&(1<<uint(digit)) != 0
}

func (s DigitSet) IsEmpty() bool { return s == 0 }

// IsFull reports whether every digit 0..9 is present, i.e. the rule imposes
// no date-of-birth restriction.
func (s DigitSet) IsFull() bool { return s == 0x3FF }

// AllDigits returns the full set {0..9}.
func AllDigits() DigitSet { return 0x3FF }

// Digits returns the members in ascending order.
func (s DigitSet) Digits() []int {
	var out []int
	for d := 0; d <= 9; d++ {
		if s.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

// ParseDigitSet parses the dashboard form "0,2,4,6,8".
func ParseDigitSet(spec string) (DigitSet, error) {
	var s DigitSet
	for _, part := range splitList(spec) {
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > 9 {
			return 0, fmt.Errorf("invalid birth-year digit %q", part)
		}
		s |= 1 << uint(d)
	}
	return s, nil
}

func (s DigitSet) String() string { return joinInts(s.Digits()) }

// NewWeekdaySet builds a set from ISO weekdays; out-of-range values are ignored.
func NewWeekdaySet(days ...int) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d >= 1 && d <= 7 {
			s |= 1 << uint(d-1)
		}
	}
	return s
}

func (s WeekdaySet) Contains(day int) bool {
	return day >= 1 && day <= 7 && s&(1<<uint(day-1)) != 0
}

func (s WeekdaySet) IsEmpty() bool { return s == 0 }

// IsFull reports whether every weekday is present, i.e. the rule imposes no
// day-of-purchase restriction.
func (s WeekdaySet) IsFull() bool { return s == 0x7F }

// AllWeekdays returns the full set {1..7}.
func AllWeekdays() WeekdaySet { return 0x7F }

// Weekdays returns the members in ascending ISO order.
func (s WeekdaySet) Weekdays() []int {
	var out []int
	for d := 1; d <= 7; d++ {
		if s.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

// ParseWeekdaySet parses the dashboard form "1,3,5" (1=Monday).
func ParseWeekdaySet(spec string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, part := range splitList(spec) {
		d, err := strconv.Atoi(part)
		if err != nil || d < 1 || d > 7 {
			return 0, fmt.Errorf("invalid weekday %q", part)
		}
		s |= 1 << uint(d-1)
	}
	return s, nil
}

func (s WeekdaySet) String() string { return joinInts(s.Weekdays()) }

func splitList(spec string) []string {
	var out []string
	for _, p := range strings.Split(spec, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
