package geo

import (
	"sort"

	"github.com/warp/rationing-engine/rationing"
)

// =============================================================================
// AVAILABILITY SEARCH
// =============================================================================

// Result is one store carrying sought items, ordered for display.
type Result struct {
	Location   StoreLocation
	DistanceKm float64
	Items      []StockEntry
}

// Searcher answers "find stores near me carrying item X". It never
// mutates state and is safe to call concurrently and repeatedly.
type Searcher struct {
	Index *Index
}

func NewSearcher(index *Index) *Searcher {
	return &Searcher{Index: index}
}

// Search returns the locations within radiusKm of p that have stock,
// sorted by ascending distance with location id as the deterministic
// tie-break. When itemID is non-nil only locations carrying that item
// (quantity > 0) are returned, and only the matching entry is listed.
func (s *Searcher) Search(p Point, radiusKm float64, itemID *rationing.ItemID) []Result {
	matches := s.Index.Within(p, radiusKm)

	var results []Result
	for _, m := range matches {
		items := availableItems(m.Stock, itemID)
		if len(items) == 0 {
			continue
		}
		results = append(results, Result{
			Location:   m.Location,
			DistanceKm: m.DistanceKm,
			Items:      items,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].Location.ID < results[j].Location.ID
	})
	return results
}

// availableItems keeps in-stock entries, optionally narrowed to one item,
// ordered by item id for stable output.
func availableItems(stock []StockEntry, itemID *rationing.ItemID) []StockEntry {
	var items []StockEntry
	for _, e := range stock {
		if e.Quantity <= 0 {
			continue
		}
		if itemID != nil && e.ItemID != *itemID {
			continue
		}
		items = append(items, e)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items
}
