/*
store.go - Persistence interfaces for the rationing engine

PURPOSE:
  Defines the interfaces between the decision logic and its collaborators:
  the append-only purchase record store, the item catalog with rule
  history, and the identity lookup. Different implementations can use
  SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  PurchaseStore has no Update() or Delete(). A purchase, once committed,
  is permanent; the quota ledger is derived by summing records.

CONDITIONAL APPEND:
  AppendIf() is the atomicity primitive for check-then-commit: it re-reads
  the window total and appends only if the new record fits under the limit,
  all inside one store-level critical section. Two racing commits for the
  same individual and item cannot both slip under the quota.

IMPLEMENTATIONS:
  - rationing/store: In-memory, for tests and development
  - store/sqlite:    SQLite-backed, for production

SEE ALSO:
  - ledger.go: Consumed-quantity computation on top of PurchaseStore
  - service.go: Uses AppendIf for the commit step
*/
package rationing

import (
	"context"
	"time"
)

// =============================================================================
// PURCHASE STORE - Append-only purchase record persistence
// =============================================================================

// PurchaseStore persists purchase records. Append-only: no update, no
// delete. Record ids double as idempotency keys; appending the same id
// twice returns ErrDuplicateRecord.
type PurchaseStore interface {
	// Append persists a record unconditionally.
	Append(ctx context.Context, rec PurchaseRecord) error

	// AppendIf persists a record only if the individual/item window total
	// including rec.Quantity stays within limit. Returns ErrQuotaExceeded
	// otherwise. The read-check-write is a single atomic unit.
	AppendIf(ctx context.Context, rec PurchaseRecord, limit int, w Window) error

	// LoadWindow returns the records for individual+item whose timestamps
	// fall inside w, ordered by timestamp.
	LoadWindow(ctx context.Context, individualID IndividualID, itemID ItemID, w Window) ([]PurchaseRecord, error)

	// LoadByIndividual returns all records for an individual in [from, to],
	// ordered by timestamp. Used for history display.
	LoadByIndividual(ctx context.Context, individualID IndividualID, from, to time.Time) ([]PurchaseRecord, error)
}

// =============================================================================
// CATALOG - Critical items and their rule history
// =============================================================================

// Catalog stores critical items and the append-only history of their
// rationing rules.
type Catalog interface {
	// GetItem returns the item or ErrUnknownItem.
	GetItem(ctx context.Context, id ItemID) (*CriticalItem, error)

	// SaveItem creates or updates the descriptive fields of an item.
	// Rule changes go through AppendRuleVersion, never through SaveItem.
	SaveItem(ctx context.Context, item CriticalItem) error

	// ListItems returns all items ordered by id.
	ListItems(ctx context.Context) ([]CriticalItem, error)

	// RuleHistory returns the rule versions for an item, oldest first.
	RuleHistory(ctx context.Context, id ItemID) (RuleVersions, error)

	// AppendRuleVersion records a rule replacement (or lifting, when
	// v.Rule is nil) and updates the item's current rule accordingly.
	AppendRuleVersion(ctx context.Context, id ItemID, v RuleVersion) error
}

// =============================================================================
// IDENTITY - Date-of-birth lookup
// =============================================================================

// IdentityStore resolves individuals. Only DateOfBirth is consumed by the
// engine; the rest of a person's profile lives with another collaborator.
type IdentityStore interface {
	// GetIndividual returns the individual or ErrUnknownIndividual.
	GetIndividual(ctx context.Context, id IndividualID) (*Individual, error)

	SaveIndividual(ctx context.Context, ind Individual) error

	ListIndividuals(ctx context.Context) ([]Individual, error)
}
