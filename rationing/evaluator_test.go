package rationing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rationing-engine/rationing"
	"github.com/warp/rationing-engine/rationing/store"
)

// =============================================================================
// TEST FIXTURE
// =============================================================================

type engineFixture struct {
	catalog   *store.MemoryCatalog
	identity  *store.MemoryIdentity
	purchases *store.Memory
	evaluator *rationing.Evaluator
	service   *rationing.PurchaseService
}

// newFixture wires an engine on in-memory stores with the demo item and
// two individuals: one with an even birth year, one odd.
func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()

	catalog := store.NewMemoryCatalog()
	identity := store.NewMemoryIdentity()
	purchases := store.NewMemory()

	require.NoError(t, catalog.SaveItem(ctx, rationing.CriticalItem{ID: "n95-mask", Name: "N95 Respirator Mask"}))
	rule := weeklyRule()
	require.NoError(t, catalog.AppendRuleVersion(ctx, "n95-mask",
		rationing.RuleVersion{Rule: &rule, EffectiveFrom: rule.EffectiveFrom}))

	require.NoError(t, catalog.SaveItem(ctx, rationing.CriticalItem{ID: "bread", Name: "Bread"}))

	require.NoError(t, identity.SaveIndividual(ctx, rationing.Individual{
		ID: "even-1990", DateOfBirth: rationing.NewDate(1990, time.April, 12)}))
	require.NoError(t, identity.SaveIndividual(ctx, rationing.Individual{
		ID: "odd-1991", DateOfBirth: rationing.NewDate(1991, time.July, 22)}))

	ev := rationing.NewEvaluator(catalog, identity, rationing.NewLedger(purchases))
	return &engineFixture{
		catalog:   catalog,
		identity:  identity,
		purchases: purchases,
		evaluator: ev,
		service:   rationing.NewPurchaseService(ev, purchases),
	}
}

// check builds a request pinned to an explicit reference date.
func check(individual, item string, qty int, d rationing.Date) rationing.CheckRequest {
	return rationing.CheckRequest{
		IndividualID: rationing.IndividualID(individual),
		ItemID:       rationing.ItemID(item),
		LocationID:   "derby-central",
		Quantity:     qty,
		Date:         d,
	}
}

// Wednesday inside the rule's effective range.
func wednesday() rationing.Date { return rationing.NewDate(2026, time.March, 4) }

// =============================================================================
// DECISION ALGORITHM
// =============================================================================

func TestEvaluate_UnrestrictedItemAlwaysApproved(t *testing.T) {
	f := newFixture(t)

	// Odd birth year, Sunday, absurd quantity. None of it matters for an
	// unrestricted item.
	sunday := rationing.NewDate(2026, time.March, 8)
	d, err := f.evaluator.Evaluate(context.Background(), check("odd-1991", "bread", 500, sunday))
	require.NoError(t, err)
	assert.True(t, d.Approved)
	require.NotNil(t, d.Authorization)
	assert.NotEmpty(t, d.Authorization.Ref)
}

func TestEvaluate_RuleNotYetEffectiveApproves(t *testing.T) {
	f := newFixture(t)

	// The mask rule starts 2026-01-01; before that the item behaves
	// unrestricted even for an odd birth year on a Sunday.
	before := rationing.NewDate(2025, time.December, 28)
	d, err := f.evaluator.Evaluate(context.Background(), check("odd-1991", "n95-mask", 50, before))
	require.NoError(t, err)
	assert.True(t, d.Approved)
}

func TestEvaluate_InvalidQuantityRejected(t *testing.T) {
	f := newFixture(t)

	for _, qty := range []int{0, -1} {
		d, err := f.evaluator.Evaluate(context.Background(), check("even-1990", "n95-mask", qty, wednesday()))
		require.NoError(t, err)
		assert.False(t, d.Approved)
		assert.Equal(t, rationing.ReasonInvalidQuantity, d.Reason)
		assert.Nil(t, d.Authorization)
	}
}

func TestEvaluate_WeekdayRejectedWithNextEligible(t *testing.T) {
	f := newFixture(t)

	tuesday := rationing.NewDate(2026, time.March, 3)
	d, err := f.evaluator.Evaluate(context.Background(), check("even-1990", "n95-mask", 1, tuesday))
	require.NoError(t, err)

	assert.False(t, d.Approved)
	assert.Equal(t, rationing.ReasonWeekdayNotAllowed, d.Reason)
	require.NotNil(t, d.NextEligible)
	assert.Equal(t, wednesday(), *d.NextEligible, "Tuesday's next allowed day is Wednesday")
}

func TestEvaluate_BirthYearRejected(t *testing.T) {
	f := newFixture(t)

	d, err := f.evaluator.Evaluate(context.Background(), check("odd-1991", "n95-mask", 1, wednesday()))
	require.NoError(t, err)

	assert.False(t, d.Approved)
	assert.Equal(t, rationing.ReasonBirthYearNotEligible, d.Reason)
}

func TestEvaluate_DescriptiveItemUpdateKeepsRestriction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := check("odd-1991", "n95-mask", 1, wednesday())
	d, err := f.evaluator.Evaluate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, rationing.ReasonBirthYearNotEligible, d.Reason)

	// Renaming the item touches descriptive fields only. The rule stays
	// in force and the same request is still rejected.
	require.NoError(t, f.catalog.SaveItem(ctx, rationing.CriticalItem{
		ID: "n95-mask", Name: "N95 Respirator Mask (FFP2)",
	}))

	d, err = f.evaluator.Evaluate(ctx, req)
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, rationing.ReasonBirthYearNotEligible, d.Reason)

	item, err := f.catalog.GetItem(ctx, "n95-mask")
	require.NoError(t, err)
	assert.Equal(t, "N95 Respirator Mask (FFP2)", item.Name)
	assert.True(t, item.IsRestricted)
	require.NotNil(t, item.Rule)
}

func TestEvaluate_WeekdayCheckedBeforeBirthYear(t *testing.T) {
	f := newFixture(t)

	// Both checks fail; the weekday rejection wins.
	tuesday := rationing.NewDate(2026, time.March, 3)
	d, err := f.evaluator.Evaluate(context.Background(), check("odd-1991", "n95-mask", 1, tuesday))
	require.NoError(t, err)
	assert.Equal(t, rationing.ReasonWeekdayNotAllowed, d.Reason)
}

func TestEvaluate_QuotaExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 3 already purchased on Wednesday.
	require.NoError(t, f.purchases.Append(ctx, rationing.PurchaseRecord{
		ID: "rec-1", IndividualID: "even-1990", ItemID: "n95-mask",
		Quantity: 3, Timestamp: wednesday().StartOfDay(),
	}))

	// 5 more on Friday would exceed the weekly 7.
	friday := rationing.NewDate(2026, time.March, 6)
	d, err := f.evaluator.Evaluate(ctx, check("even-1990", "n95-mask", 5, friday))
	require.NoError(t, err)

	assert.False(t, d.Approved)
	assert.Equal(t, rationing.ReasonQuotaExceeded, d.Reason)
	assert.Equal(t, 4, d.Remaining)

	// 4 exactly fills the quota.
	d, err = f.evaluator.Evaluate(ctx, check("even-1990", "n95-mask", 4, friday))
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, 0, d.Remaining)
}

func TestEvaluate_QuotaResetsAtWindowBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.purchases.Append(ctx, rationing.PurchaseRecord{
		ID: "rec-1", IndividualID: "even-1990", ItemID: "n95-mask",
		Quantity: 7, Timestamp: wednesday().StartOfDay(),
	}))

	// Saturday of the same week: quota fully consumed (and wrong weekday
	// anyway); Monday of the next ISO week: fresh window.
	monday := rationing.NewDate(2026, time.March, 9)
	d, err := f.evaluator.Evaluate(ctx, check("even-1990", "n95-mask", 7, monday))
	require.NoError(t, err)
	assert.True(t, d.Approved, "consumption resets at the ISO week boundary")
}

func TestEvaluate_QuotaIsPerIndividualAndItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A different individual's purchases never count against this one.
	require.NoError(t, f.purchases.Append(ctx, rationing.PurchaseRecord{
		ID: "rec-other", IndividualID: "even-1984", ItemID: "n95-mask",
		Quantity: 7, Timestamp: wednesday().StartOfDay(),
	}))

	d, err := f.evaluator.Evaluate(ctx, check("even-1990", "n95-mask", 7, wednesday()))
	require.NoError(t, err)
	assert.True(t, d.Approved)
}

func TestEvaluate_UnknownReferencesAreErrorsNotApprovals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.evaluator.Evaluate(ctx, check("even-1990", "no-such-item", 1, wednesday()))
	assert.ErrorIs(t, err, rationing.ErrUnknownItem)

	_, err = f.evaluator.Evaluate(ctx, check("no-such-person", "n95-mask", 1, wednesday()))
	assert.ErrorIs(t, err, rationing.ErrUnknownIndividual)
}

func TestEvaluate_ApprovalCarriesAuthorization(t *testing.T) {
	f := newFixture(t)

	d, err := f.evaluator.Evaluate(context.Background(), check("even-1990", "n95-mask", 3, wednesday()))
	require.NoError(t, err)
	require.True(t, d.Approved)

	auth := d.Authorization
	require.NotNil(t, auth)
	assert.NotEmpty(t, auth.Ref)
	assert.Equal(t, rationing.IndividualID("even-1990"), auth.IndividualID)
	assert.Equal(t, rationing.ItemID("n95-mask"), auth.ItemID)
	assert.Equal(t, 3, auth.Quantity)
	assert.Equal(t, wednesday(), auth.Date)
	assert.Equal(t, 4, d.Remaining)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestConsumedQuantity_SumsOnlyWindowRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := rationing.NewLedger(f.purchases)

	recs := []struct {
		id  string
		qty int
		d   rationing.Date
	}{
		{"prev-week", 5, rationing.NewDate(2026, time.February, 25)},
		{"this-mon", 2, rationing.NewDate(2026, time.March, 2)},
		{"this-wed", 3, wednesday()},
		{"next-week", 4, rationing.NewDate(2026, time.March, 9)},
	}
	for _, r := range recs {
		require.NoError(t, f.purchases.Append(ctx, rationing.PurchaseRecord{
			ID: rationing.RecordID(r.id), IndividualID: "even-1990", ItemID: "n95-mask",
			Quantity: r.qty, Timestamp: r.d.StartOfDay(),
		}))
	}

	got, err := ledger.ConsumedQuantity(ctx, "even-1990", "n95-mask", rationing.PeriodWeekly, wednesday())
	require.NoError(t, err)
	assert.Equal(t, 5, got, "only this ISO week's records up to the reference day count")

	// Friday of the same week sees the same window but no later records.
	got, err = ledger.ConsumedQuantity(ctx, "even-1990", "n95-mask", rationing.PeriodWeekly, rationing.NewDate(2026, time.March, 6))
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}
