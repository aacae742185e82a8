/*
sqlite_test.go - Tests for the SQLite-backed stores

Tests for:
- Conditional append (AppendIf) quota enforcement
- Duplicate record ids
- Window loads and history ordering
- Rule version history round trips
- Geo facts survive a reopen (LoadAll warm-up path)
*/
package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rationing-engine/geo"
	"github.com/warp/rationing-engine/rationing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id string, qty int, d rationing.Date) rationing.PurchaseRecord {
	return rationing.PurchaseRecord{
		ID:           rationing.RecordID(id),
		IndividualID: "ind-1",
		ItemID:       "n95-mask",
		LocationID:   "derby-central",
		Quantity:     qty,
		Timestamp:    d.StartOfDay(),
	}
}

// =============================================================================
// PURCHASE LEDGER
// =============================================================================

func TestAppendIf_EnforcesWindowLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wednesday := rationing.NewDate(2026, time.March, 4)
	w := rationing.WindowFor(rationing.PeriodWeekly, wednesday)

	require.NoError(t, s.AppendIf(ctx, record("r1", 4, wednesday), 7, w))

	// 4 more would exceed 7; nothing is written.
	err := s.AppendIf(ctx, record("r2", 4, wednesday.AddDays(2)), 7, w)
	assert.ErrorIs(t, err, rationing.ErrQuotaExceeded)

	recs, err := s.LoadWindow(ctx, "ind-1", "n95-mask", w)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	// 3 exactly fills the quota.
	require.NoError(t, s.AppendIf(ctx, record("r3", 3, wednesday.AddDays(2)), 7, w))
}

func TestAppendIf_IgnoresRecordsOutsideWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prevWeek := rationing.NewDate(2026, time.February, 25)
	require.NoError(t, s.Append(ctx, record("prev", 7, prevWeek)))

	wednesday := rationing.NewDate(2026, time.March, 4)
	w := rationing.WindowFor(rationing.PeriodWeekly, wednesday)
	require.NoError(t, s.AppendIf(ctx, record("this", 7, wednesday), 7, w),
		"last week's purchases do not count against this week")
}

func TestAppend_DuplicateIDRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := rationing.NewDate(2026, time.March, 4)
	require.NoError(t, s.Append(ctx, record("r1", 2, d)))

	err := s.Append(ctx, record("r1", 2, d))
	assert.ErrorIs(t, err, rationing.ErrDuplicateRecord)
}

func TestLoadByIndividual_OrderedByTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Inserted out of order on purpose.
	require.NoError(t, s.Append(ctx, record("b", 1, rationing.NewDate(2026, time.March, 9))))
	require.NoError(t, s.Append(ctx, record("a", 1, rationing.NewDate(2026, time.March, 2))))
	require.NoError(t, s.Append(ctx, record("c", 1, rationing.NewDate(2026, time.March, 20))))

	from := rationing.NewDate(2026, time.March, 1).StartOfDay()
	to := rationing.NewDate(2026, time.March, 15).EndOfDay()
	recs, err := s.LoadByIndividual(ctx, "ind-1", from, to)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, rationing.RecordID("a"), recs[0].ID)
	assert.Equal(t, rationing.RecordID("b"), recs[1].ID)
}

// =============================================================================
// CATALOG AND RULE HISTORY
// =============================================================================

func TestCatalog_ItemAndRuleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveItem(ctx, rationing.CriticalItem{
		ID: "n95-mask", Name: "N95 Respirator Mask", Category: "ppe",
	}))

	digits, err := rationing.ParseDigitSet("0,2,4,6,8")
	require.NoError(t, err)
	weekdays, err := rationing.ParseWeekdaySet("1,3,5")
	require.NoError(t, err)
	rule := &rationing.RationingRule{
		MaxQuantity:     7,
		Period:          rationing.PeriodWeekly,
		BirthYearDigits: digits,
		AllowedWeekdays: weekdays,
		EffectiveFrom:   rationing.NewDate(2026, time.January, 1),
	}
	require.NoError(t, s.AppendRuleVersion(ctx, "n95-mask",
		rationing.RuleVersion{Rule: rule, EffectiveFrom: rule.EffectiveFrom}))

	item, err := s.GetItem(ctx, "n95-mask")
	require.NoError(t, err)
	assert.True(t, item.IsRestricted)
	require.NotNil(t, item.Rule)
	assert.Equal(t, 7, item.Rule.MaxQuantity)
	assert.Equal(t, rationing.PeriodWeekly, item.Rule.Period)
	assert.Equal(t, "0,2,4,6,8", item.Rule.BirthYearDigits.String())
	assert.Equal(t, "1,3,5", item.Rule.AllowedWeekdays.String())

	_, err = s.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, rationing.ErrUnknownItem)
}

func TestSaveItem_PreservesRestrictionMirror(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveItem(ctx, rationing.CriticalItem{ID: "n95-mask", Name: "Mask"}))
	rule := &rationing.RationingRule{
		MaxQuantity: 7, Period: rationing.PeriodWeekly,
		BirthYearDigits: rationing.AllDigits(), AllowedWeekdays: rationing.AllWeekdays(),
		EffectiveFrom: rationing.NewDate(2026, time.January, 1),
	}
	require.NoError(t, s.AppendRuleVersion(ctx, "n95-mask",
		rationing.RuleVersion{Rule: rule, EffectiveFrom: rule.EffectiveFrom}))

	// A descriptive update must not clear the mirrored rule columns.
	require.NoError(t, s.SaveItem(ctx, rationing.CriticalItem{ID: "n95-mask", Name: "Mask (updated)", Category: "ppe"}))

	item, err := s.GetItem(ctx, "n95-mask")
	require.NoError(t, err)
	assert.Equal(t, "Mask (updated)", item.Name)
	assert.True(t, item.IsRestricted)
	require.NotNil(t, item.Rule)
	assert.Equal(t, 7, item.Rule.MaxQuantity)

	history, err := s.RuleHistory(ctx, "n95-mask")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestRuleHistory_AppendOnlyAndOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveItem(ctx, rationing.CriticalItem{ID: "n95-mask", Name: "Mask"}))

	digits := rationing.AllDigits()
	weekdays := rationing.AllWeekdays()
	v1 := &rationing.RationingRule{
		MaxQuantity: 7, Period: rationing.PeriodWeekly,
		BirthYearDigits: digits, AllowedWeekdays: weekdays,
		EffectiveFrom: rationing.NewDate(2026, time.January, 1),
	}
	v2 := &rationing.RationingRule{
		MaxQuantity: 3, Period: rationing.PeriodDaily,
		BirthYearDigits: digits, AllowedWeekdays: weekdays,
		EffectiveFrom: rationing.NewDate(2026, time.March, 1),
	}
	require.NoError(t, s.AppendRuleVersion(ctx, "n95-mask", rationing.RuleVersion{Rule: v1, EffectiveFrom: v1.EffectiveFrom}))
	require.NoError(t, s.AppendRuleVersion(ctx, "n95-mask", rationing.RuleVersion{Rule: v2, EffectiveFrom: v2.EffectiveFrom}))
	// The restriction is lifted in April.
	require.NoError(t, s.AppendRuleVersion(ctx, "n95-mask", rationing.RuleVersion{Rule: nil, EffectiveFrom: rationing.NewDate(2026, time.April, 1)}))

	history, err := s.RuleHistory(ctx, "n95-mask")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 7, history[0].Rule.MaxQuantity)
	assert.Equal(t, 3, history[1].Rule.MaxQuantity)
	assert.Nil(t, history[2].Rule)

	// History selection per reference date.
	assert.Equal(t, 7, history.ActiveRule(rationing.NewDate(2026, time.February, 1)).MaxQuantity)
	assert.Equal(t, 3, history.ActiveRule(rationing.NewDate(2026, time.March, 15)).MaxQuantity)
	assert.Nil(t, history.ActiveRule(rationing.NewDate(2026, time.April, 2)))

	// The item row mirrors the latest version.
	item, err := s.GetItem(ctx, "n95-mask")
	require.NoError(t, err)
	assert.False(t, item.IsRestricted)

	err = s.AppendRuleVersion(ctx, "missing", rationing.RuleVersion{Rule: v1, EffectiveFrom: v1.EffectiveFrom})
	assert.ErrorIs(t, err, rationing.ErrUnknownItem)
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestIdentity_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dob := rationing.NewDate(1990, time.April, 12)
	require.NoError(t, s.SaveIndividual(ctx, rationing.Individual{ID: "ind-1", DateOfBirth: dob}))

	ind, err := s.GetIndividual(ctx, "ind-1")
	require.NoError(t, err)
	assert.Equal(t, dob, ind.DateOfBirth)

	_, err = s.GetIndividual(ctx, "missing")
	assert.ErrorIs(t, err, rationing.ErrUnknownIndividual)
}

// =============================================================================
// GEO FACTS
// =============================================================================

func TestGeoStore_LoadAllRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	loc := geo.StoreLocation{
		ID: "derby-central", Name: "Central Pharmacy", Address: "12 Iron Gate",
		Position: geo.Point{Lat: 52.9225, Lng: -1.4746},
	}
	require.NoError(t, s.UpsertLocation(ctx, loc))
	require.NoError(t, s.UpsertStock(ctx, geo.StockEntry{
		LocationID: "derby-central", ItemID: "n95-mask", Quantity: 120,
		LastUpdated: time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC),
	}))

	// Upsert replaces rather than duplicates.
	require.NoError(t, s.UpsertStock(ctx, geo.StockEntry{
		LocationID: "derby-central", ItemID: "n95-mask", Quantity: 95,
		LastUpdated: time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC),
	}))

	locs, entries, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, loc, locs[0])
	require.Len(t, entries, 1)
	assert.Equal(t, 95, entries[0].Quantity)
}
