// Package store provides in-memory implementations of the rationing
// persistence interfaces, used by tests and development servers.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/rationing-engine/rationing"
)

// =============================================================================
// MEMORY PURCHASE STORE - Append-only record log (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[pairKey][]rationing.PurchaseRecord
	ids     map[rationing.RecordID]bool
}

type pairKey struct {
	Individual rationing.IndividualID
	Item       rationing.ItemID
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[pairKey][]rationing.PurchaseRecord),
		ids:     make(map[rationing.RecordID]bool),
	}
}

// Append adds a single record. Append-only.
func (m *Memory) Append(_ context.Context, rec rationing.PurchaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(rec)
}

// AppendIf adds a record only if the window total stays within limit.
// The read-check-write runs under one lock, so racing commits for the
// same pair serialize here.
func (m *Memory) AppendIf(_ context.Context, rec rationing.PurchaseRecord, limit int, w rationing.Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := pairKey{Individual: rec.IndividualID, Item: rec.ItemID}
	total := 0
	for _, existing := range m.records[k] {
		if w.Contains(existing.Timestamp) {
			total += existing.Quantity
		}
	}
	if total+rec.Quantity > limit {
		return rationing.ErrQuotaExceeded
	}
	return m.appendLocked(rec)
}

func (m *Memory) appendLocked(rec rationing.PurchaseRecord) error {
	if rec.ID != "" && m.ids[rec.ID] {
		return rationing.ErrDuplicateRecord
	}

	k := pairKey{Individual: rec.IndividualID, Item: rec.ItemID}
	recs := m.records[k]

	// Binary search for the insertion point to keep timestamp order.
	i := sort.Search(len(recs), func(i int) bool {
		return recs[i].Timestamp.After(rec.Timestamp)
	})
	recs = append(recs, rationing.PurchaseRecord{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec
	m.records[k] = recs

	if rec.ID != "" {
		m.ids[rec.ID] = true
	}
	return nil
}

func (m *Memory) LoadWindow(_ context.Context, individualID rationing.IndividualID, itemID rationing.ItemID, w rationing.Window) ([]rationing.PurchaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := pairKey{Individual: individualID, Item: itemID}
	var result []rationing.PurchaseRecord
	for _, rec := range m.records[k] {
		if w.Contains(rec.Timestamp) {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (m *Memory) LoadByIndividual(_ context.Context, individualID rationing.IndividualID, from, to time.Time) ([]rationing.PurchaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []rationing.PurchaseRecord
	for k, recs := range m.records {
		if k.Individual != individualID {
			continue
		}
		for _, rec := range recs {
			if !rec.Timestamp.Before(from) && !rec.Timestamp.After(to) {
				result = append(result, rec)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// =============================================================================
// MEMORY CATALOG - Items plus rule version history
// =============================================================================

type MemoryCatalog struct {
	mu       sync.RWMutex
	items    map[rationing.ItemID]rationing.CriticalItem
	versions map[rationing.ItemID]rationing.RuleVersions
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		items:    make(map[rationing.ItemID]rationing.CriticalItem),
		versions: make(map[rationing.ItemID]rationing.RuleVersions),
	}
}

func (c *MemoryCatalog) GetItem(_ context.Context, id rationing.ItemID) (*rationing.CriticalItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return nil, rationing.ErrUnknownItem
	}
	return &item, nil
}

func (c *MemoryCatalog) SaveItem(_ context.Context, item rationing.CriticalItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Restriction state belongs to the version history; a save of
	// descriptive fields keeps the existing mirror intact.
	if existing, ok := c.items[item.ID]; ok {
		item.Rule = existing.Rule
		item.IsRestricted = existing.IsRestricted
	} else {
		item.Rule = nil
		item.IsRestricted = false
	}
	c.items[item.ID] = item
	return nil
}

func (c *MemoryCatalog) ListItems(_ context.Context) ([]rationing.CriticalItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]rationing.CriticalItem, 0, len(c.items))
	for _, item := range c.items {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (c *MemoryCatalog) RuleHistory(_ context.Context, id rationing.ItemID) (rationing.RuleVersions, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := c.versions[id]
	result := make(rationing.RuleVersions, len(history))
	copy(result, history)
	return result, nil
}

func (c *MemoryCatalog) AppendRuleVersion(_ context.Context, id rationing.ItemID, v rationing.RuleVersion) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	if !ok {
		return rationing.ErrUnknownItem
	}

	c.versions[id] = c.versions[id].Append(v)

	// The item mirrors its latest version for display.
	item.Rule = v.Rule
	item.IsRestricted = v.Rule != nil
	c.items[id] = item
	return nil
}

// =============================================================================
// MEMORY IDENTITY STORE
// =============================================================================

type MemoryIdentity struct {
	mu          sync.RWMutex
	individuals map[rationing.IndividualID]rationing.Individual
}

func NewMemoryIdentity() *MemoryIdentity {
	return &MemoryIdentity{individuals: make(map[rationing.IndividualID]rationing.Individual)}
}

func (s *MemoryIdentity) GetIndividual(_ context.Context, id rationing.IndividualID) (*rationing.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ind, ok := s.individuals[id]
	if !ok {
		return nil, rationing.ErrUnknownIndividual
	}
	return &ind, nil
}

func (s *MemoryIdentity) SaveIndividual(_ context.Context, ind rationing.Individual) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.individuals[ind.ID] = ind
	return nil
}

func (s *MemoryIdentity) ListIndividuals(_ context.Context) ([]rationing.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]rationing.Individual, 0, len(s.individuals))
	for _, ind := range s.individuals {
		result = append(result, ind)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
