/*
service.go - Check-then-commit orchestration

PURPOSE:
  Wraps the evaluator with the concurrency guarantee of the engine: an
  authorization decision and its purchase record commit form one atomic
  unit per (individual, item). Two racing purchase attempts for the same
  pair cannot both be approved past the quota.

SERIALIZATION SCOPE:
  A per-pair mutex serializes read-consumed -> decide -> append for the
  same individual and item. Unrelated pairs, and all read-only checks and
  searches, proceed fully in parallel. The store's conditional append is a
  second line of defense for commits arriving through other paths.

SIDE EFFECTS:
  Nothing is written before the final append. A caller abandoning a
  request before Commit leaves no state behind; no rollback exists or is
  needed.

SEE ALSO:
  - evaluator.go: The decision algorithm
  - store.go: AppendIf, the conditional-append primitive
*/
package rationing

import (
	"context"
	"sync"
)

// =============================================================================
// PURCHASE SERVICE
// =============================================================================

// PurchaseService exposes the engine's purchase operations with the
// check-then-commit atomicity guarantee.
type PurchaseService struct {
	Evaluator *Evaluator
	Store     PurchaseStore

	mu    sync.Mutex
	locks map[pairKey]*sync.Mutex
}

type pairKey struct {
	Individual IndividualID
	Item       ItemID
}

func NewPurchaseService(ev *Evaluator, store PurchaseStore) *PurchaseService {
	return &PurchaseService{
		Evaluator: ev,
		Store:     store,
		locks:     make(map[pairKey]*sync.Mutex),
	}
}

// lock acquires the mutex for one individual/item pair.
func (s *PurchaseService) lock(k pairKey) func() {
	s.mu.Lock()
	m, ok := s.locks[k]
	if !ok {
		m = &sync.Mutex{}
		s.locks[k] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// CheckPurchase evaluates a purchase attempt without committing anything.
// The returned authorization, if any, is only a promise that held at
// evaluation time; Commit re-checks the quota atomically.
func (s *PurchaseService) CheckPurchase(ctx context.Context, req CheckRequest) (Decision, error) {
	if req.Date.IsZero() {
		req.Date = Today()
	}
	return s.Evaluator.Evaluate(ctx, req)
}

// Commit records the purchase approved by auth. The record is built from
// the authorization's own fields; the authorization reference doubles as
// the record id, making duplicate commits of the same approval fail with
// ErrDuplicateRecord. Weekday and birth-year eligibility are re-verified
// against the active rule, and the quota is re-checked by the conditional
// append, so an authorization the engine would not issue cannot commit.
func (s *PurchaseService) Commit(ctx context.Context, auth Authorization) (*PurchaseRecord, error) {
	if auth.Ref == "" {
		return nil, &AuthorizationError{Ref: auth.Ref, Reason: "missing reference"}
	}
	if auth.Quantity < 1 {
		return nil, &AuthorizationError{Ref: auth.Ref, Reason: "quantity was not authorized"}
	}
	if auth.IndividualID == "" || auth.ItemID == "" {
		return nil, &AuthorizationError{Ref: auth.Ref, Reason: "incomplete authorization"}
	}
	if auth.Date.IsZero() {
		return nil, &AuthorizationError{Ref: auth.Ref, Reason: "missing authorization date"}
	}

	unlock := s.lock(pairKey{Individual: auth.IndividualID, Item: auth.ItemID})
	defer unlock()

	rec := PurchaseRecord{
		ID:           RecordID(auth.Ref),
		IndividualID: auth.IndividualID,
		ItemID:       auth.ItemID,
		LocationID:   auth.LocationID,
		Quantity:     auth.Quantity,
		Timestamp:    auth.Date.StartOfDay(),
	}

	rule, err := s.activeRule(ctx, auth.ItemID, auth.Date)
	if err != nil {
		return nil, err
	}

	// A reference is opaque, so the deterministic eligibility checks are
	// re-run against the active rule before anything is written. A
	// presented authorization that could never have been issued for this
	// individual and date is rejected rather than recorded.
	if rule != nil {
		if !MatchesWeekday(auth.Date, rule.AllowedWeekdays) {
			return nil, &AuthorizationError{Ref: auth.Ref, Reason: "date is not purchasable under the active rule"}
		}
		ind, err := s.Evaluator.Identity.GetIndividual(ctx, auth.IndividualID)
		if err != nil {
			return nil, err
		}
		if !MatchesBirthYear(ind.DateOfBirth, rule.BirthYearDigits) {
			return nil, &AuthorizationError{Ref: auth.Ref, Reason: "individual is not eligible under the active rule"}
		}
	}

	if rule == nil {
		if err := s.Store.Append(ctx, rec); err != nil {
			return nil, err
		}
		return &rec, nil
	}

	w := WindowFor(rule.Period, auth.Date)
	if err := s.Store.AppendIf(ctx, rec, rule.MaxQuantity, w); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Purchase runs check and commit as one serialized unit for the pair.
// On rejection the decision is returned with no record written.
func (s *PurchaseService) Purchase(ctx context.Context, req CheckRequest) (Decision, *PurchaseRecord, error) {
	if req.Date.IsZero() {
		req.Date = Today()
	}

	unlock := s.lock(pairKey{Individual: req.IndividualID, Item: req.ItemID})
	defer unlock()

	decision, err := s.Evaluator.Evaluate(ctx, req)
	if err != nil || !decision.Approved {
		return decision, nil, err
	}

	auth := decision.Authorization
	rec := PurchaseRecord{
		ID:           RecordID(auth.Ref),
		IndividualID: auth.IndividualID,
		ItemID:       auth.ItemID,
		LocationID:   auth.LocationID,
		Quantity:     auth.Quantity,
		Timestamp:    auth.Date.StartOfDay(),
	}

	rule, err := s.activeRule(ctx, req.ItemID, req.Date)
	if err != nil {
		return Decision{}, nil, err
	}
	if rule == nil {
		if err := s.Store.Append(ctx, rec); err != nil {
			return Decision{}, nil, err
		}
		return decision, &rec, nil
	}

	if err := s.Store.AppendIf(ctx, rec, rule.MaxQuantity, WindowFor(rule.Period, req.Date)); err != nil {
		return Decision{}, nil, err
	}
	return decision, &rec, nil
}

// activeRule resolves the rule in force for an item on a date from the
// versioned history. The catalog item's mirrored fields are display-only
// and deliberately not consulted here.
func (s *PurchaseService) activeRule(ctx context.Context, itemID ItemID, d Date) (*RationingRule, error) {
	if _, err := s.Evaluator.Catalog.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	history, err := s.Evaluator.Catalog.RuleHistory(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return history.ActiveRule(d), nil
}

// History returns an individual's purchase records in [from, to].
func (s *PurchaseService) History(ctx context.Context, individualID IndividualID, from, to Date) ([]PurchaseRecord, error) {
	return s.Store.LoadByIndividual(ctx, individualID, from.StartOfDay(), to.EndOfDay())
}
