/*
rule.go - Rationing rules and eligibility predicates

PURPOSE:
  Defines the restriction policy attached to a critical item: how much may
  be bought per reset period, which birth years are eligible, on which
  weekdays purchases are allowed, and the date range during which the rule
  is in force.

KEY CONCEPTS:
  - RationingRule: The complete restriction for one item
  - Period: The quota reset window (daily, weekly, monthly)
  - MatchesBirthYear / MatchesWeekday: The two pure eligibility predicates
  - RuleVersions: Append-only rule history, newest effective-from wins

RULE HISTORY:
  Replacing a rule never edits the previous one. Each replacement is a new
  version keyed by EffectiveFrom, so past authorizations remain explainable:
  the evaluator always selects the version active for its reference date.
  A replacement takes effect only from its own EffectiveFrom, never
  retroactively.

EXAMPLE:
  rule := rationing.RationingRule{
      MaxQuantity:     7,
      Period:          rationing.PeriodWeekly,
      BirthYearDigits: rationing.NewDigitSet(0, 2, 4, 6, 8),
      AllowedWeekdays: rationing.NewWeekdaySet(1, 3, 5),
      EffectiveFrom:   rationing.NewDate(2026, time.March, 1),
  }

SEE ALSO:
  - evaluator.go: Applies these predicates in decision order
  - window.go: Quota windows derived from Period
*/
package rationing

import "sort"

// =============================================================================
// PERIOD - Quota reset window
// =============================================================================

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod validates the wire form of a period.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return Period(s), nil
	}
	return "", &FieldError{Field: "period", Message: "must be daily, weekly or monthly"}
}

// =============================================================================
// RATIONING RULE
// =============================================================================

// RationingRule is the immutable restriction policy for a critical item.
type RationingRule struct {
	MaxQuantity     int
	Period          Period
	BirthYearDigits DigitSet
	AllowedWeekdays WeekdaySet

	// Effective window. EffectiveTo nil means open-ended.
	EffectiveFrom Date
	EffectiveTo   *Date
}

// Validate checks the structural invariants of a rule.
func (r RationingRule) Validate() error {
	if r.MaxQuantity < 1 {
		return &FieldError{Field: "max_quantity", Message: "must be at least 1"}
	}
	switch r.Period {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
	default:
		return &FieldError{Field: "period", Message: "must be daily, weekly or monthly"}
	}
	if r.BirthYearDigits.IsEmpty() {
		return &FieldError{Field: "birth_year_digits", Message: "must not be empty"}
	}
	if r.AllowedWeekdays.IsEmpty() {
		return &FieldError{Field: "allowed_weekdays", Message: "must not be empty"}
	}
	if r.EffectiveFrom.IsZero() {
		return &FieldError{Field: "effective_from", Message: "is required"}
	}
	if r.EffectiveTo != nil && r.EffectiveTo.Before(r.EffectiveFrom) {
		return &FieldError{Field: "effective_to", Message: "must not be before effective_from"}
	}
	return nil
}

// ActiveOn reports whether the rule is in force on d:
// EffectiveFrom <= d and (EffectiveTo is nil or d <= EffectiveTo).
func (r RationingRule) ActiveOn(d Date) bool {
	if d.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && d.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// =============================================================================
// ELIGIBILITY PREDICATES
// =============================================================================

// MatchesBirthYear reports whether the last digit of the birth year is a
// member of digits. The full set {0..9} matches every birth year.
func MatchesBirthYear(dob Date, digits DigitSet) bool {
	return digits.Contains(dob.Year() % 10)
}

// MatchesWeekday reports whether the ISO weekday (1=Monday) of d is a
// member of days. The full set {1..7} matches every date.
func MatchesWeekday(d Date, days WeekdaySet) bool {
	return days.Contains(d.ISOWeekday())
}

// NextAllowedWeekday returns the first date strictly after d whose ISO
// weekday is allowed. Used to tell a rejected caller when to come back.
// Returns the zero Date if the set is empty.
func NextAllowedWeekday(d Date, days WeekdaySet) Date {
	if days.IsEmpty() {
		return Date{}
	}
	next := d.AddDays(1)
	for i := 0; i < 7; i++ {
		if days.Contains(next.ISOWeekday()) {
			return next
		}
		next = next.AddDays(1)
	}
	return Date{}
}

// =============================================================================
// RULE VERSIONS - Append-only rule history
// =============================================================================

// RuleVersions is the replacement history of an item's rule, ordered by
// EffectiveFrom ascending. A nil rule marks the restriction being lifted.
type RuleVersions []RuleVersion

// RuleVersion is one entry in the history. Rule nil means the item was made
// unrestricted at EffectiveFrom.
type RuleVersion struct {
	Rule          *RationingRule
	EffectiveFrom Date
}

// Append adds a version keeping EffectiveFrom order. Later appends with the
// same EffectiveFrom supersede earlier ones.
func (vs RuleVersions) Append(v RuleVersion) RuleVersions {
	out := append(RuleVersions{}, vs...)
	out = append(out, v)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveFrom.Before(out[j].EffectiveFrom)
	})
	return out
}

// ActiveRule selects the rule governing date d: the latest version whose
// EffectiveFrom <= d, provided that version's rule is present and still
// within its own effective window. Returns nil when no restriction applies.
func (vs RuleVersions) ActiveRule(d Date) *RationingRule {
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].EffectiveFrom.After(d) {
			continue
		}
		if vs[i].Rule == nil {
			return nil
		}
		if vs[i].Rule.ActiveOn(d) {
			return vs[i].Rule
		}
		return nil
	}
	return nil
}

// Latest returns the most recent version, or nil for empty history.
func (vs RuleVersions) Latest() *RuleVersion {
	if len(vs) == 0 {
		return nil
	}
	v := vs[len(vs)-1]
	return &v
}
