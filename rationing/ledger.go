/*
ledger.go - Quota consumption derived from the purchase record log

PURPOSE:
  The QuotaLedger answers one question: how much has this individual
  already bought of this item in the current reset window? The answer is
  always computed by summing purchase records - there is no separate
  "consumed" counter that can drift out of sync.

WINDOW ANCHORING:
  The reference date anchors the window (see window.go) and also caps the
  sum: only records with timestamps up to the end of the reference day are
  counted. An authorization computed for date d is never retroactively
  recomputed once its record is committed.

SEE ALSO:
  - store.go: PurchaseStore supplying the records
  - evaluator.go: Consumes ConsumedQuantity in decision step 6
*/
package rationing

import "context"

// QuotaLedger computes consumed quantity per individual/item for the
// current window of a rule's period.
type QuotaLedger interface {
	// ConsumedQuantity sums record quantities for individual+item inside
	// WindowFor(p, d), counting only records timestamped on or before d.
	ConsumedQuantity(ctx context.Context, individualID IndividualID, itemID ItemID, p Period, d Date) (int, error)
}

// DefaultLedger implements QuotaLedger over a PurchaseStore.
type DefaultLedger struct {
	Store PurchaseStore
}

func NewLedger(store PurchaseStore) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) ConsumedQuantity(ctx context.Context, individualID IndividualID, itemID ItemID, p Period, d Date) (int, error) {
	w := WindowFor(p, d)
	recs, err := l.Store.LoadWindow(ctx, individualID, itemID, w)
	if err != nil {
		return 0, err
	}

	cutoff := d.EndOfDay()
	total := 0
	for _, rec := range recs {
		if rec.Timestamp.After(cutoff) {
			continue
		}
		total += rec.Quantity
	}
	return total, nil
}
