/*
seed.go - Demo data loader for testing and demonstrations

PURPOSE:

	Populates the stores with a realistic demo dataset: one rationed
	critical item, a handful of registered individuals, and store
	locations around Derby, UK with stock on hand.

DEMO DATASET:

	Item:        N95 respirator masks, max 7 per ISO week, even birth
	             years only, purchases allowed Mon/Wed/Fri
	Individuals: Two eligible (even birth year) and one ineligible
	Locations:   Three pharmacies within a few km of Derby centre

NOTE:

	Seeding is idempotent: items, individuals, and locations are
	upserted by ID. Only use in development/demo environments.

SEE ALSO:
  - cmd/server/main.go: The -seed flag triggers loading on startup
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/rationing-engine/geo"
	"github.com/warp/rationing-engine/rationing"
)

// Seed loads the demo dataset through the same services the API uses.
func Seed(ctx context.Context, catalog *rationing.CatalogService, identity rationing.IdentityStore, index *geo.Index) error {
	digits, err := rationing.ParseDigitSet("0,2,4,6,8")
	if err != nil {
		return err
	}
	weekdays, err := rationing.ParseWeekdaySet("1,3,5")
	if err != nil {
		return err
	}

	item := rationing.CriticalItem{
		ID:       "n95-mask",
		Name:     "N95 Respirator Mask",
		Category: "ppe",
	}
	if err := catalog.SaveItem(ctx, item); err != nil {
		return fmt.Errorf("seed item: %w", err)
	}
	rule := &rationing.RationingRule{
		MaxQuantity:     7,
		Period:          rationing.PeriodWeekly,
		BirthYearDigits: digits,
		AllowedWeekdays: weekdays,
		EffectiveFrom:   rationing.Today(),
	}
	if _, err := catalog.SetRestriction(ctx, item.ID, rule); err != nil {
		return fmt.Errorf("seed rule: %w", err)
	}

	individuals := []struct {
		id   rationing.IndividualID
		born string
	}{
		{"ind-1990", "1990-04-12"},
		{"ind-1984", "1984-11-03"},
		{"ind-1991", "1991-07-22"},
	}
	for _, ind := range individuals {
		dob, err := rationing.ParseDate(ind.born)
		if err != nil {
			return err
		}
		if err := identity.SaveIndividual(ctx, rationing.Individual{ID: ind.id, DateOfBirth: dob}); err != nil {
			return fmt.Errorf("seed individual %s: %w", ind.id, err)
		}
	}

	locations := []geo.StoreLocation{
		{
			ID:       "derby-central",
			Name:     "Central Pharmacy",
			Address:  "12 Iron Gate, Derby",
			Position: geo.Point{Lat: 52.9225, Lng: -1.4746},
		},
		{
			ID:       "derby-north",
			Name:     "Northside Chemist",
			Address:  "88 Kedleston Rd, Derby",
			Position: geo.Point{Lat: 52.9325, Lng: -1.4846},
		},
		{
			ID:       "derby-east",
			Name:     "Eastgate Supplies",
			Address:  "5 Nottingham Rd, Derby",
			Position: geo.Point{Lat: 52.9255, Lng: -1.4550},
		},
	}
	stock := map[rationing.LocationID]int{
		"derby-central": 120,
		"derby-north":   40,
		"derby-east":    0,
	}
	now := time.Now().UTC()
	for _, loc := range locations {
		if err := index.UpsertLocation(ctx, loc); err != nil {
			return fmt.Errorf("seed location %s: %w", loc.ID, err)
		}
		if err := index.UpsertStock(ctx, geo.StockEntry{
			LocationID:  loc.ID,
			ItemID:      item.ID,
			Quantity:    stock[loc.ID],
			LastUpdated: now,
		}); err != nil {
			return fmt.Errorf("seed stock %s: %w", loc.ID, err)
		}
	}
	return nil
}
