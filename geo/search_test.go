package geo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rationing-engine/geo"
	"github.com/warp/rationing-engine/rationing"
)

// =============================================================================
// TEST FIXTURE
// =============================================================================

// newDerbyIndex loads three locations around Derby centre with mask and
// sanitizer stock.
func newDerbyIndex(t *testing.T) *geo.Index {
	t.Helper()
	ctx := context.Background()
	ix := geo.NewIndex()

	locations := []geo.StoreLocation{
		{ID: "central", Name: "Central Pharmacy", Position: geo.Point{Lat: 52.9225, Lng: -1.4746}},
		{ID: "north", Name: "Northside Chemist", Position: geo.Point{Lat: 52.9325, Lng: -1.4846}},
		{ID: "east", Name: "Eastgate Supplies", Position: geo.Point{Lat: 52.9255, Lng: -1.4550}},
	}
	for _, loc := range locations {
		require.NoError(t, ix.UpsertLocation(ctx, loc))
	}

	now := time.Now().UTC()
	stock := []geo.StockEntry{
		{LocationID: "central", ItemID: "n95-mask", Quantity: 120, LastUpdated: now},
		{LocationID: "central", ItemID: "sanitizer", Quantity: 30, LastUpdated: now},
		{LocationID: "north", ItemID: "n95-mask", Quantity: 40, LastUpdated: now},
		{LocationID: "east", ItemID: "n95-mask", Quantity: 0, LastUpdated: now},
	}
	for _, e := range stock {
		require.NoError(t, ix.UpsertStock(ctx, e))
	}
	return ix
}

// =============================================================================
// INDEX
// =============================================================================

func TestIndex_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	ix := geo.NewIndex()

	err := ix.UpsertLocation(ctx, geo.StoreLocation{ID: "bad", Position: geo.Point{Lat: 123, Lng: 0}})
	assert.Error(t, err)

	err = ix.UpsertStock(ctx, geo.StockEntry{LocationID: "nowhere", ItemID: "n95-mask", Quantity: 1})
	assert.ErrorIs(t, err, rationing.ErrUnknownLocation)

	require.NoError(t, ix.UpsertLocation(ctx, geo.StoreLocation{ID: "ok", Position: derby}))
	err = ix.UpsertStock(ctx, geo.StockEntry{LocationID: "ok", ItemID: "n95-mask", Quantity: -1})
	assert.Error(t, err)
}

func TestIndex_WithinRadiusBoundary(t *testing.T) {
	ix := newDerbyIndex(t)

	// north is ~1.3 km from the centre: outside 1 km, inside 2 km.
	within1 := ix.Within(derby, 1)
	ids := make(map[rationing.LocationID]bool)
	for _, m := range within1 {
		ids[m.Location.ID] = true
	}
	assert.True(t, ids["central"])
	assert.False(t, ids["north"])

	within2 := ix.Within(derby, 2)
	assert.Len(t, within2, 3)
}

func TestIndex_UpsertReplacesStock(t *testing.T) {
	ix := newDerbyIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.UpsertStock(ctx, geo.StockEntry{
		LocationID: "central", ItemID: "n95-mask", Quantity: 5, LastUpdated: time.Now().UTC(),
	}))

	s := geo.NewSearcher(ix)
	itemID := rationing.ItemID("n95-mask")
	results := s.Search(derby, 0.5, &itemID)
	require.Len(t, results, 1)
	require.Len(t, results[0].Items, 1)
	assert.Equal(t, 5, results[0].Items[0].Quantity)
}

// =============================================================================
// SEARCH
// =============================================================================

func TestSearch_OrderedByDistance(t *testing.T) {
	ix := newDerbyIndex(t)
	s := geo.NewSearcher(ix)

	results := s.Search(derby, 5, nil)
	require.Len(t, results, 2, "east has no in-stock items and is excluded")

	assert.Equal(t, rationing.LocationID("central"), results[0].Location.ID)
	assert.Equal(t, rationing.LocationID("north"), results[1].Location.ID)
	assert.LessOrEqual(t, results[0].DistanceKm, results[1].DistanceKm)
}

func TestSearch_ItemFilter(t *testing.T) {
	ix := newDerbyIndex(t)
	s := geo.NewSearcher(ix)

	itemID := rationing.ItemID("sanitizer")
	results := s.Search(derby, 5, &itemID)
	require.Len(t, results, 1)
	assert.Equal(t, rationing.LocationID("central"), results[0].Location.ID)
	require.Len(t, results[0].Items, 1)
	assert.Equal(t, itemID, results[0].Items[0].ItemID)
}

func TestSearch_ZeroQuantityExcluded(t *testing.T) {
	ix := newDerbyIndex(t)
	s := geo.NewSearcher(ix)

	// east stocks the mask at quantity 0; it must not appear even when
	// searching for that item.
	itemID := rationing.ItemID("n95-mask")
	results := s.Search(derby, 5, &itemID)
	for _, r := range results {
		assert.NotEqual(t, rationing.LocationID("east"), r.Location.ID)
	}
}

func TestSearch_Idempotent(t *testing.T) {
	ix := newDerbyIndex(t)
	s := geo.NewSearcher(ix)

	first := s.Search(derby, 5, nil)
	second := s.Search(derby, 5, nil)
	assert.Equal(t, first, second, "searching mutates nothing")
}

func TestSearch_EmptyOutsideRadius(t *testing.T) {
	ix := newDerbyIndex(t)
	s := geo.NewSearcher(ix)

	london := geo.Point{Lat: 51.5074, Lng: -0.1278}
	assert.Empty(t, s.Search(london, 5, nil))
}

func TestSearch_ConcurrentWithUpserts(t *testing.T) {
	ix := newDerbyIndex(t)
	s := geo.NewSearcher(ix)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(q int) {
			defer wg.Done()
			_ = ix.UpsertStock(ctx, geo.StockEntry{
				LocationID: "central", ItemID: "n95-mask", Quantity: q, LastUpdated: time.Now().UTC(),
			})
		}(i + 1)
		go func() {
			defer wg.Done()
			results := s.Search(derby, 5, nil)
			// Every observed snapshot is internally consistent.
			for _, r := range results {
				for _, e := range r.Items {
					assert.Greater(t, e.Quantity, 0)
				}
			}
		}()
	}
	wg.Wait()
}

// =============================================================================
// PERSISTENT INDEX
// =============================================================================

// fakeGeoStore records upserts and serves LoadAll for warm-up.
type fakeGeoStore struct {
	mu        sync.Mutex
	locations []geo.StoreLocation
	stock     []geo.StockEntry
}

func (f *fakeGeoStore) UpsertLocation(_ context.Context, loc geo.StoreLocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = append(f.locations, loc)
	return nil
}

func (f *fakeGeoStore) UpsertStock(_ context.Context, e geo.StockEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock = append(f.stock, e)
	return nil
}

func (f *fakeGeoStore) LoadAll(_ context.Context) ([]geo.StoreLocation, []geo.StockEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]geo.StoreLocation{}, f.locations...), append([]geo.StockEntry{}, f.stock...), nil
}

func TestPersistentIndex_WritesThroughAndWarmsUp(t *testing.T) {
	ctx := context.Background()
	backing := &fakeGeoStore{}

	ix, err := geo.NewPersistentIndex(ctx, backing)
	require.NoError(t, err)
	require.NoError(t, ix.UpsertLocation(ctx, geo.StoreLocation{ID: "central", Position: derby}))
	require.NoError(t, ix.UpsertStock(ctx, geo.StockEntry{
		LocationID: "central", ItemID: "n95-mask", Quantity: 9, LastUpdated: time.Now().UTC(),
	}))

	// A fresh index over the same store sees the persisted facts.
	warmed, err := geo.NewPersistentIndex(ctx, backing)
	require.NoError(t, err)

	s := geo.NewSearcher(warmed)
	results := s.Search(derby, 1, nil)
	require.Len(t, results, 1)
	assert.Equal(t, 9, results[0].Items[0].Quantity)
}
