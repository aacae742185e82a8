/*
index.go - In-memory store location and stock index

PURPOSE:
  Holds (location, stock) facts and answers radius queries. Upserts are
  the only writers; reads take a consistent snapshot under a read lock,
  so a search in progress never observes a torn stock update.

CONCURRENCY:
  A single RWMutex guards the maps. Writers hold it only for one index
  update; readers copy matching entries out before computing anything
  expensive, so reads never block writers longer than that copy.

PERSISTENCE:
  The index itself is in-memory. An optional GeoStore collaborator makes
  upserts write-through and lets the index be rebuilt on startup.
*/
package geo

import (
	"context"
	"sync"
	"time"

	"github.com/warp/rationing-engine/rationing"
)

// =============================================================================
// FACTS
// =============================================================================

// StoreLocation is a physical store. Name and address are carried for
// display only; the engine cares about the position.
type StoreLocation struct {
	ID       rationing.LocationID
	Name     string
	Address  string
	Position Point
}

// StockEntry records the quantity of one item at one location. The
// (location, item) pair is unique. Quantity 0 means not currently
// available; the entry is kept for audit history.
type StockEntry struct {
	LocationID  rationing.LocationID
	ItemID      rationing.ItemID
	Quantity    int
	LastUpdated time.Time
}

// GeoStore is the persistence collaborator backing the index.
type GeoStore interface {
	UpsertLocation(ctx context.Context, loc StoreLocation) error
	UpsertStock(ctx context.Context, entry StockEntry) error

	// LoadAll bulk-scans every location and stock entry, for index warm-up.
	LoadAll(ctx context.Context) ([]StoreLocation, []StockEntry, error)
}

// =============================================================================
// INDEX
// =============================================================================

// Index answers "what is within radius R of point P" over the current
// location and stock facts.
type Index struct {
	mu        sync.RWMutex
	locations map[rationing.LocationID]StoreLocation
	stock     map[rationing.LocationID]map[rationing.ItemID]StockEntry

	// Optional write-through persistence.
	backing GeoStore
}

func NewIndex() *Index {
	return &Index{
		locations: make(map[rationing.LocationID]StoreLocation),
		stock:     make(map[rationing.LocationID]map[rationing.ItemID]StockEntry),
	}
}

// NewPersistentIndex creates an index that writes through to store and is
// warmed from it.
func NewPersistentIndex(ctx context.Context, store GeoStore) (*Index, error) {
	idx := NewIndex()
	idx.backing = store

	locs, entries, err := store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, loc := range locs {
		idx.upsertLocationLocked(loc)
	}
	for _, e := range entries {
		idx.upsertStockLocked(e)
	}
	return idx, nil
}

// UpsertLocation adds or replaces a location.
func (ix *Index) UpsertLocation(ctx context.Context, loc StoreLocation) error {
	if !loc.Position.Valid() {
		return &rationing.FieldError{Field: "coordinates", Message: "latitude/longitude out of range"}
	}
	if ix.backing != nil {
		if err := ix.backing.UpsertLocation(ctx, loc); err != nil {
			return err
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.upsertLocationLocked(loc)
	return nil
}

// UpsertStock sets the quantity of an item at a location.
func (ix *Index) UpsertStock(ctx context.Context, entry StockEntry) error {
	if entry.Quantity < 0 {
		return &rationing.FieldError{Field: "quantity", Message: "must not be negative"}
	}

	ix.mu.RLock()
	_, known := ix.locations[entry.LocationID]
	ix.mu.RUnlock()
	if !known {
		return rationing.ErrUnknownLocation
	}

	if ix.backing != nil {
		if err := ix.backing.UpsertStock(ctx, entry); err != nil {
			return err
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.upsertStockLocked(entry)
	return nil
}

func (ix *Index) upsertLocationLocked(loc StoreLocation) {
	ix.locations[loc.ID] = loc
	if ix.stock[loc.ID] == nil {
		ix.stock[loc.ID] = make(map[rationing.ItemID]StockEntry)
	}
}

func (ix *Index) upsertStockLocked(entry StockEntry) {
	byItem := ix.stock[entry.LocationID]
	if byItem == nil {
		byItem = make(map[rationing.ItemID]StockEntry)
		ix.stock[entry.LocationID] = byItem
	}
	byItem[entry.ItemID] = entry
}

// =============================================================================
// RANGE QUERY
// =============================================================================

// Match is one location within the queried radius, with its stock snapshot.
type Match struct {
	Location   StoreLocation
	DistanceKm float64
	Stock      []StockEntry
}

// Within returns every location whose great-circle distance to p is at
// most radiusKm, with distances rounded to hundredths of a kilometre.
// The stock slices are copies; callers may retain them freely.
func (ix *Index) Within(p Point, radiusKm float64) []Match {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var matches []Match
	for id, loc := range ix.locations {
		d := Distance(p, loc.Position)
		if d > radiusKm {
			continue
		}

		byItem := ix.stock[id]
		entries := make([]StockEntry, 0, len(byItem))
		for _, e := range byItem {
			entries = append(entries, e)
		}

		matches = append(matches, Match{
			Location:   loc,
			DistanceKm: RoundKm(d),
			Stock:      entries,
		})
	}
	return matches
}

// Location returns a location by id.
func (ix *Index) Location(id rationing.LocationID) (StoreLocation, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	loc, ok := ix.locations[id]
	return loc, ok
}

// Locations returns all known locations.
func (ix *Index) Locations() []StoreLocation {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]StoreLocation, 0, len(ix.locations))
	for _, loc := range ix.locations {
		out = append(out, loc)
	}
	return out
}
