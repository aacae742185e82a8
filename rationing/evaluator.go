/*
evaluator.go - The purchase authorization decision

PURPOSE:
  Combines the item's rationing rule, the individual's date of birth, the
  quota ledger and the reference date into a single purchase authorization
  decision. Rule-driven rejections are normal business outcomes returned
  as structured Decisions, never as errors.

DECISION ALGORITHM (short-circuit, first failing check wins):
  1. No rule active for the date         -> Approved (item unrestricted)
  2. Requested quantity < 1              -> Rejected InvalidQuantity
  3. Weekday not allowed                 -> Rejected WeekdayNotAllowed
  4. Birth year not eligible             -> Rejected BirthYearNotEligible
  5. Consumed + requested > max          -> Rejected QuotaExceeded
  6. Otherwise                            -> Approved with Authorization

  Restriction state is derived from the versioned rule history alone. The
  catalog item's mirrored rule fields exist for display; a descriptive
  item update must never lift an active restriction.

STATELESSNESS:
  The evaluator retains nothing between calls. A decision is a pure
  function of the request plus the current catalog/ledger snapshot; the
  reference date is always an explicit input, never an ambient clock read.

AUTHORIZATION:
  An approval carries an Authorization whose reference must be presented
  unchanged when the purchase is committed. The committed record is built
  from the authorization's own fields, so a caller cannot record a
  different quantity or item than was approved.

SEE ALSO:
  - service.go: Serializes evaluate-then-commit per individual/item
  - rule.go: The eligibility predicates applied in steps 3-4
*/
package rationing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// DECISION - Structured outcome of a purchase check
// =============================================================================

// RejectionReason identifies which rule check failed.
type RejectionReason string

const (
	ReasonInvalidQuantity      RejectionReason = "invalid_quantity"
	ReasonWeekdayNotAllowed    RejectionReason = "weekday_not_allowed"
	ReasonBirthYearNotEligible RejectionReason = "birth_year_not_eligible"
	ReasonQuotaExceeded        RejectionReason = "quota_exceeded"
)

// Decision is the outcome of a purchase check. Rejections carry enough
// detail for the caller to present a useful message; they are expected
// outcomes, not faults.
type Decision struct {
	Approved bool

	// Rejection context. Reason is empty when approved.
	Reason RejectionReason
	Detail string

	// Remaining quota headroom in the current window, for display.
	// Populated for quota rejections and for approvals under a rule.
	Remaining int

	// NextEligible is the next purchasable date after a weekday rejection.
	NextEligible *Date

	// Authorization is present iff Approved.
	Authorization *Authorization
}

// Authorization correlates an approval with the purchase record that must
// follow it. The commit step rebuilds the record from these fields.
type Authorization struct {
	Ref          string
	IndividualID IndividualID
	ItemID       ItemID
	LocationID   LocationID
	Quantity     int
	Date         Date
	IssuedAt     time.Time
}

// CheckRequest is one purchase attempt.
type CheckRequest struct {
	IndividualID IndividualID
	ItemID       ItemID
	LocationID   LocationID
	Quantity     int

	// Date is the authorization reference date. Callers default it to
	// today; tests pin it to exercise window and activation boundaries.
	Date Date
}

// =============================================================================
// EVALUATOR
// =============================================================================

// Evaluator decides purchase authorizations. All dependencies are injected;
// there are no ambient singletons.
type Evaluator struct {
	Catalog  Catalog
	Identity IdentityStore
	Ledger   QuotaLedger
}

func NewEvaluator(catalog Catalog, identity IdentityStore, ledger QuotaLedger) *Evaluator {
	return &Evaluator{Catalog: catalog, Identity: identity, Ledger: ledger}
}

// Evaluate runs the decision algorithm. Unknown item/individual and store
// failures surface as errors, never as approvals.
func (e *Evaluator) Evaluate(ctx context.Context, req CheckRequest) (Decision, error) {
	if _, err := e.Catalog.GetItem(ctx, req.ItemID); err != nil {
		return Decision{}, err
	}

	// 1. The rule history is the source of truth for restriction state.
	// No active version, or an active version outside its effective
	// window, means the item is unrestricted on this date.
	history, err := e.Catalog.RuleHistory(ctx, req.ItemID)
	if err != nil {
		return Decision{}, err
	}
	rule := history.ActiveRule(req.Date)
	if rule == nil {
		return e.approve(req, nil, 0)
	}

	// 2. Quantity sanity.
	if req.Quantity < 1 {
		return Decision{
			Approved: false,
			Reason:   ReasonInvalidQuantity,
			Detail:   "requested quantity must be at least 1",
		}, nil
	}

	// 3. Day-of-purchase eligibility.
	if !MatchesWeekday(req.Date, rule.AllowedWeekdays) {
		next := NextAllowedWeekday(req.Date, rule.AllowedWeekdays)
		return Decision{
			Approved:     false,
			Reason:       ReasonWeekdayNotAllowed,
			Detail:       fmt.Sprintf("purchases allowed on weekdays %s (1=Monday); next eligible date is %s", rule.AllowedWeekdays, next),
			NextEligible: &next,
		}, nil
	}

	// 4. Birth-year eligibility.
	ind, err := e.Identity.GetIndividual(ctx, req.IndividualID)
	if err != nil {
		return Decision{}, err
	}
	if !MatchesBirthYear(ind.DateOfBirth, rule.BirthYearDigits) {
		return Decision{
			Approved: false,
			Reason:   ReasonBirthYearNotEligible,
			Detail:   fmt.Sprintf("birth years ending in %s are eligible", rule.BirthYearDigits),
		}, nil
	}

	// 5. Quota headroom.
	consumed, err := e.Ledger.ConsumedQuantity(ctx, req.IndividualID, req.ItemID, rule.Period, req.Date)
	if err != nil {
		return Decision{}, err
	}
	remaining := rule.MaxQuantity - consumed
	if remaining < 0 {
		remaining = 0
	}
	if consumed+req.Quantity > rule.MaxQuantity {
		w := WindowFor(rule.Period, req.Date)
		return Decision{
			Approved:  false,
			Reason:    ReasonQuotaExceeded,
			Detail:    fmt.Sprintf("%d of %d already purchased in %s; %d remaining", consumed, rule.MaxQuantity, w, remaining),
			Remaining: remaining,
		}, nil
	}

	// 6. Approved.
	return e.approve(req, rule, remaining-req.Quantity)
}

func (e *Evaluator) approve(req CheckRequest, rule *RationingRule, remaining int) (Decision, error) {
	auth := &Authorization{
		Ref:          uuid.NewString(),
		IndividualID: req.IndividualID,
		ItemID:       req.ItemID,
		LocationID:   req.LocationID,
		Quantity:     req.Quantity,
		Date:         req.Date,
		IssuedAt:     time.Now().UTC(),
	}
	d := Decision{Approved: true, Authorization: auth}
	if rule != nil {
		d.Remaining = remaining
	}
	return d, nil
}
