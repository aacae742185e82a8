package rationing

import "context"

// =============================================================================
// CATALOG SERVICE - Administrative rule replacement
// =============================================================================

// CatalogService wraps a Catalog with the administrative operations the
// engine exposes. Rule changes are whole-rule replacements recorded as new
// versions; there is no partial-field mutation.
type CatalogService struct {
	Store Catalog
}

func NewCatalogService(store Catalog) *CatalogService {
	return &CatalogService{Store: store}
}

// SetRestriction replaces an item's rationing rule wholesale. A nil rule
// lifts the restriction from effectiveFrom onward. Returns the previous
// rule (nil if the item was unrestricted) for audit.
func (c *CatalogService) SetRestriction(ctx context.Context, id ItemID, rule *RationingRule) (*RationingRule, error) {
	item, err := c.Store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := item.Rule

	var v RuleVersion
	if rule == nil {
		v = RuleVersion{Rule: nil, EffectiveFrom: Today()}
	} else {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		r := *rule
		v = RuleVersion{Rule: &r, EffectiveFrom: r.EffectiveFrom}
	}

	if err := c.Store.AppendRuleVersion(ctx, id, v); err != nil {
		return nil, err
	}
	return previous, nil
}

// GetItem, SaveItem and ListItems pass through to the underlying catalog.

func (c *CatalogService) GetItem(ctx context.Context, id ItemID) (*CriticalItem, error) {
	return c.Store.GetItem(ctx, id)
}

func (c *CatalogService) SaveItem(ctx context.Context, item CriticalItem) error {
	if item.Rule != nil {
		if err := item.Rule.Validate(); err != nil {
			return err
		}
	}
	return c.Store.SaveItem(ctx, item)
}

func (c *CatalogService) ListItems(ctx context.Context) ([]CriticalItem, error) {
	return c.Store.ListItems(ctx)
}

// RuleHistory exposes the full replacement history for audit display.
func (c *CatalogService) RuleHistory(ctx context.Context, id ItemID) (RuleVersions, error) {
	return c.Store.RuleHistory(ctx, id)
}
