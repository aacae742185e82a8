/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/rationing-engine/geo"
	"github.com/warp/rationing-engine/rationing"
)

// =============================================================================
// PURCHASE CHECK / COMMIT
// =============================================================================

// CheckPurchaseRequest is one purchase authorization attempt.
type CheckPurchaseRequest struct {
	IndividualID string `json:"individual_id"`
	ItemID       string `json:"item_id"`
	LocationID   string `json:"location_id"`
	Quantity     int    `json:"quantity"`

	// Date is the reference date "YYYY-MM-DD"; empty means today.
	Date string `json:"date,omitempty"`
}

// DecisionDTO is the structured outcome of a check. Rejections are normal
// results, not HTTP errors.
type DecisionDTO struct {
	Approved      bool              `json:"approved"`
	Reason        string            `json:"reason,omitempty"`
	Detail        string            `json:"detail,omitempty"`
	Remaining     int               `json:"remaining_quota"`
	NextEligible  string            `json:"next_eligible_date,omitempty"`
	Authorization *AuthorizationDTO `json:"authorization,omitempty"`
}

// AuthorizationDTO must be presented unchanged when committing.
type AuthorizationDTO struct {
	Ref          string `json:"ref"`
	IndividualID string `json:"individual_id"`
	ItemID       string `json:"item_id"`
	LocationID   string `json:"location_id"`
	Quantity     int    `json:"quantity"`
	Date         string `json:"date"`
	IssuedAt     string `json:"issued_at"`
}

// CommitPurchaseRequest presents an authorization for recording.
type CommitPurchaseRequest struct {
	Authorization AuthorizationDTO `json:"authorization"`
}

// PurchaseRecordDTO is a committed purchase.
type PurchaseRecordDTO struct {
	ID           string `json:"id"`
	IndividualID string `json:"individual_id"`
	ItemID       string `json:"item_id"`
	LocationID   string `json:"location_id"`
	Quantity     int    `json:"quantity"`
	Timestamp    string `json:"timestamp"`
}

// =============================================================================
// CATALOG
// =============================================================================

// RuleDTO is the wire form of a rationing rule. Digit and weekday sets use
// the dashboard's comma-separated form ("0,2,4,6,8", "1,3,5").
type RuleDTO struct {
	MaxQuantity     int    `json:"max_quantity"`
	Period          string `json:"period"`
	BirthYearDigits string `json:"birth_year_digits"`
	AllowedWeekdays string `json:"allowed_weekdays"`
	EffectiveFrom   string `json:"effective_from"`
	EffectiveTo     string `json:"effective_to,omitempty"`
}

// ItemDTO represents a critical item in API responses.
type ItemDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category,omitempty"`
	Description  string   `json:"description,omitempty"`
	IsRestricted bool     `json:"is_restricted"`
	Rule         *RuleDTO `json:"rule,omitempty"`
}

// CreateItemRequest creates or updates a catalog item.
type CreateItemRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Rule        *RuleDTO `json:"rule,omitempty"`
}

// SetRestrictionRequest replaces an item's rule wholesale.
type SetRestrictionRequest struct {
	Rule RuleDTO `json:"rule"`
}

// SetRestrictionResponse carries the replaced rule for audit.
type SetRestrictionResponse struct {
	ItemID       string   `json:"item_id"`
	PreviousRule *RuleDTO `json:"previous_rule"`
	CurrentRule  *RuleDTO `json:"current_rule"`
}

// RuleVersionDTO is one entry of the replacement history.
type RuleVersionDTO struct {
	EffectiveFrom string   `json:"effective_from"`
	Rule          *RuleDTO `json:"rule"`
}

// =============================================================================
// INDIVIDUALS
// =============================================================================

type IndividualDTO struct {
	ID          string `json:"id"`
	DateOfBirth string `json:"date_of_birth"`
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// LocationDTO represents a store location.
type LocationDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StockEntryDTO is one item's stock at a location.
type StockEntryDTO struct {
	ItemID      string `json:"item_id"`
	Quantity    int    `json:"quantity"`
	LastUpdated string `json:"last_updated"`
}

// UpsertStockRequest sets the quantity of an item at a location.
type UpsertStockRequest struct {
	Quantity int `json:"quantity"`
}

// AvailabilityResultDTO is one store in search output, ordered by distance.
type AvailabilityResultDTO struct {
	Location   LocationDTO     `json:"location"`
	DistanceKm float64         `json:"distance_km"`
	Items      []StockEntryDTO `json:"items"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func ruleToDTO(r *rationing.RationingRule) *RuleDTO {
	if r == nil {
		return nil
	}
	dto := &RuleDTO{
		MaxQuantity:     r.MaxQuantity,
		Period:          string(r.Period),
		BirthYearDigits: r.BirthYearDigits.String(),
		AllowedWeekdays: r.AllowedWeekdays.String(),
		EffectiveFrom:   r.EffectiveFrom.String(),
	}
	if r.EffectiveTo != nil {
		dto.EffectiveTo = r.EffectiveTo.String()
	}
	return dto
}

func ruleFromDTO(dto *RuleDTO) (*rationing.RationingRule, error) {
	if dto == nil {
		return nil, nil
	}
	period, err := rationing.ParsePeriod(dto.Period)
	if err != nil {
		return nil, err
	}
	digits, err := rationing.ParseDigitSet(dto.BirthYearDigits)
	if err != nil {
		return nil, err
	}
	weekdays, err := rationing.ParseWeekdaySet(dto.AllowedWeekdays)
	if err != nil {
		return nil, err
	}
	// An omitted effective_from anchors the rule at today.
	from := rationing.Today()
	if dto.EffectiveFrom != "" {
		from, err = rationing.ParseDate(dto.EffectiveFrom)
		if err != nil {
			return nil, err
		}
	}

	rule := &rationing.RationingRule{
		MaxQuantity:     dto.MaxQuantity,
		Period:          period,
		BirthYearDigits: digits,
		AllowedWeekdays: weekdays,
		EffectiveFrom:   from,
	}
	if dto.EffectiveTo != "" {
		to, err := rationing.ParseDate(dto.EffectiveTo)
		if err != nil {
			return nil, err
		}
		rule.EffectiveTo = &to
	}
	return rule, rule.Validate()
}

func itemToDTO(item rationing.CriticalItem) ItemDTO {
	return ItemDTO{
		ID:           string(item.ID),
		Name:         item.Name,
		Category:     item.Category,
		Description:  item.Description,
		IsRestricted: item.IsRestricted,
		Rule:         ruleToDTO(item.Rule),
	}
}

func decisionToDTO(d rationing.Decision) DecisionDTO {
	dto := DecisionDTO{
		Approved:  d.Approved,
		Reason:    string(d.Reason),
		Detail:    d.Detail,
		Remaining: d.Remaining,
	}
	if d.NextEligible != nil {
		dto.NextEligible = d.NextEligible.String()
	}
	if d.Authorization != nil {
		dto.Authorization = &AuthorizationDTO{
			Ref:          d.Authorization.Ref,
			IndividualID: string(d.Authorization.IndividualID),
			ItemID:       string(d.Authorization.ItemID),
			LocationID:   string(d.Authorization.LocationID),
			Quantity:     d.Authorization.Quantity,
			Date:         d.Authorization.Date.String(),
			IssuedAt:     d.Authorization.IssuedAt.Format(time.RFC3339),
		}
	}
	return dto
}

func authFromDTO(dto AuthorizationDTO) (rationing.Authorization, error) {
	date, err := rationing.ParseDate(dto.Date)
	if err != nil {
		return rationing.Authorization{}, err
	}
	auth := rationing.Authorization{
		Ref:          dto.Ref,
		IndividualID: rationing.IndividualID(dto.IndividualID),
		ItemID:       rationing.ItemID(dto.ItemID),
		LocationID:   rationing.LocationID(dto.LocationID),
		Quantity:     dto.Quantity,
		Date:         date,
	}
	if dto.IssuedAt != "" {
		if issued, err := time.Parse(time.RFC3339, dto.IssuedAt); err == nil {
			auth.IssuedAt = issued
		}
	}
	return auth, nil
}

func locationToDTO(loc geo.StoreLocation) LocationDTO {
	return LocationDTO{
		ID:        string(loc.ID),
		Name:      loc.Name,
		Address:   loc.Address,
		Latitude:  loc.Position.Lat,
		Longitude: loc.Position.Lng,
	}
}

func stockToDTO(e geo.StockEntry) StockEntryDTO {
	return StockEntryDTO{
		ItemID:      string(e.ItemID),
		Quantity:    e.Quantity,
		LastUpdated: e.LastUpdated.UTC().Format(time.RFC3339),
	}
}
