/*
handlers.go - HTTP API handlers for the rationing engine

PURPOSE:
  Exposes the rationing engine via REST API. Handles HTTP request and
  response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Purchases:
    POST   /api/purchases/check        Authorization check (no side effects)
    POST   /api/purchases              Commit an approved authorization
    GET    /api/individuals/{id}/purchases  Purchase history

  Availability:
    GET    /api/availability           Stores near a point carrying items

  Catalog:
    GET    /api/items                  List critical items
    POST   /api/items                  Create/update item
    GET    /api/items/{id}             Get item
    PUT    /api/items/{id}/restriction Replace rationing rule (returns previous)
    DELETE /api/items/{id}/restriction Lift restriction
    GET    /api/items/{id}/restriction/history  Rule replacement history

  Individuals / Locations / Stock:
    GET,POST /api/individuals
    GET,POST /api/locations
    PUT      /api/locations/{id}/stock/{itemID}

ERROR HANDLING:
  Rule-driven rejections are 200 responses with approved=false; they are
  business outcomes. HTTP errors are reserved for:
  - 400: Malformed input, invalid rules
  - 404: Unknown item/individual/location
  - 409: Invalid or already-committed authorization
  - 503: Backing store unavailable (retryable; callers back off)
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/rationing-engine/geo"
	"github.com/warp/rationing-engine/rationing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Purchases *rationing.PurchaseService
	Catalog   *rationing.CatalogService
	Identity  rationing.IdentityStore
	Index     *geo.Index
	Searcher  *geo.Searcher

	Log     *zap.Logger
	Metrics *Metrics
}

// NewHandler wires the handler with its engine dependencies.
func NewHandler(purchases *rationing.PurchaseService, catalog *rationing.CatalogService, identity rationing.IdentityStore, index *geo.Index, log *zap.Logger) *Handler {
	return &Handler{
		Purchases: purchases,
		Catalog:   catalog,
		Identity:  identity,
		Index:     index,
		Searcher:  geo.NewSearcher(index),
		Log:       log,
		Metrics:   NewMetrics(),
	}
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// CheckPurchase evaluates a purchase attempt without committing anything.
func (h *Handler) CheckPurchase(w http.ResponseWriter, r *http.Request) {
	var req CheckPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	check, err := h.checkRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid check request", err)
		return
	}

	decision, err := h.Purchases.CheckPurchase(r.Context(), check)
	if err != nil {
		h.writeEngineError(w, "check purchase", err)
		return
	}

	h.Metrics.RecordDecision(decision)
	writeJSON(w, http.StatusOK, decisionToDTO(decision))
}

// CommitPurchase records the purchase approved by the presented
// authorization. The record is built from the authorization itself.
func (h *Handler) CommitPurchase(w http.ResponseWriter, r *http.Request) {
	var req CommitPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	auth, err := authFromDTO(req.Authorization)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid authorization", err)
		return
	}

	rec, err := h.Purchases.Commit(r.Context(), auth)
	if err != nil {
		h.writeEngineError(w, "commit purchase", err)
		return
	}

	writeJSON(w, http.StatusCreated, PurchaseRecordDTO{
		ID:           string(rec.ID),
		IndividualID: string(rec.IndividualID),
		ItemID:       string(rec.ItemID),
		LocationID:   string(rec.LocationID),
		Quantity:     rec.Quantity,
		Timestamp:    rec.Timestamp.UTC().Format(time.RFC3339),
	})
}

// PurchaseHistory returns an individual's committed purchases.
func (h *Handler) PurchaseHistory(w http.ResponseWriter, r *http.Request) {
	id := rationing.IndividualID(chi.URLParam(r, "id"))

	from := rationing.Today().AddDays(-90)
	to := rationing.Today()
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := rationing.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		from = d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := rationing.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		to = d
	}

	recs, err := h.Purchases.History(r.Context(), id, from, to)
	if err != nil {
		h.writeEngineError(w, "purchase history", err)
		return
	}

	dtos := make([]PurchaseRecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = PurchaseRecordDTO{
			ID:           string(rec.ID),
			IndividualID: string(rec.IndividualID),
			ItemID:       string(rec.ItemID),
			LocationID:   string(rec.LocationID),
			Quantity:     rec.Quantity,
			Timestamp:    rec.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) checkRequest(req CheckPurchaseRequest) (rationing.CheckRequest, error) {
	check := rationing.CheckRequest{
		IndividualID: rationing.IndividualID(req.IndividualID),
		ItemID:       rationing.ItemID(req.ItemID),
		LocationID:   rationing.LocationID(req.LocationID),
		Quantity:     req.Quantity,
	}
	if req.IndividualID == "" {
		return check, &rationing.FieldError{Field: "individual_id", Message: "is required"}
	}
	if req.ItemID == "" {
		return check, &rationing.FieldError{Field: "item_id", Message: "is required"}
	}
	if req.Date != "" {
		d, err := rationing.ParseDate(req.Date)
		if err != nil {
			return check, err
		}
		check.Date = d
	}
	return check, nil
}

// =============================================================================
// AVAILABILITY HANDLER
// =============================================================================

// SearchAvailability returns stores within the radius ordered by distance.
func (h *Handler) SearchAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing lat", err)
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing lng", err)
		return
	}
	radius, err := strconv.ParseFloat(q.Get("radius_km"), 64)
	if err != nil || radius <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid or missing radius_km", err)
		return
	}

	point := geo.Point{Lat: lat, Lng: lng}
	if !point.Valid() {
		writeError(w, http.StatusBadRequest, "Coordinates out of range", nil)
		return
	}

	var itemID *rationing.ItemID
	if v := q.Get("item_id"); v != "" {
		id := rationing.ItemID(v)
		itemID = &id
	}

	started := time.Now()
	results := h.Searcher.Search(point, radius, itemID)
	h.Metrics.ObserveSearch(time.Since(started), len(results))

	dtos := make([]AvailabilityResultDTO, len(results))
	for i, res := range results {
		items := make([]StockEntryDTO, len(res.Items))
		for j, e := range res.Items {
			items[j] = stockToDTO(e)
		}
		dtos[i] = AvailabilityResultDTO{
			Location:   locationToDTO(res.Location),
			DistanceKm: res.DistanceKm,
			Items:      items,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.ListItems(r.Context())
	if err != nil {
		h.writeEngineError(w, "list items", err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = itemToDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := rationing.ItemID(chi.URLParam(r, "id"))
	item, err := h.Catalog.GetItem(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "get item", err)
		return
	}
	writeJSON(w, http.StatusOK, itemToDTO(*item))
}

// CreateItem creates or updates an item. A rule in the payload is recorded
// as the first version of the item's restriction history.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	rule, err := ruleFromDTO(req.Rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err)
		return
	}

	item := rationing.CriticalItem{
		ID:          rationing.ItemID(req.ID),
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
	}
	if err := h.Catalog.SaveItem(r.Context(), item); err != nil {
		h.writeEngineError(w, "save item", err)
		return
	}

	if rule != nil {
		if _, err := h.Catalog.SetRestriction(r.Context(), item.ID, rule); err != nil {
			h.writeEngineError(w, "set restriction", err)
			return
		}
	}

	// Re-read so the response reflects the stored restriction state. An
	// update of an already-restricted item keeps its rule.
	saved, err := h.Catalog.GetItem(r.Context(), item.ID)
	if err != nil {
		h.writeEngineError(w, "get item", err)
		return
	}
	writeJSON(w, http.StatusCreated, itemToDTO(*saved))
}

// SetRestriction replaces an item's rationing rule wholesale and returns
// the previous rule for audit.
func (h *Handler) SetRestriction(w http.ResponseWriter, r *http.Request) {
	id := rationing.ItemID(chi.URLParam(r, "id"))

	var req SetRestrictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rule, err := ruleFromDTO(&req.Rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err)
		return
	}

	previous, err := h.Catalog.SetRestriction(r.Context(), id, rule)
	if err != nil {
		h.writeEngineError(w, "set restriction", err)
		return
	}

	h.Log.Info("restriction replaced",
		zap.String("item_id", string(id)),
		zap.Int("max_quantity", rule.MaxQuantity),
		zap.String("period", string(rule.Period)))

	writeJSON(w, http.StatusOK, SetRestrictionResponse{
		ItemID:       string(id),
		PreviousRule: ruleToDTO(previous),
		CurrentRule:  ruleToDTO(rule),
	})
}

// ClearRestriction lifts an item's restriction from today onward.
func (h *Handler) ClearRestriction(w http.ResponseWriter, r *http.Request) {
	id := rationing.ItemID(chi.URLParam(r, "id"))

	previous, err := h.Catalog.SetRestriction(r.Context(), id, nil)
	if err != nil {
		h.writeEngineError(w, "clear restriction", err)
		return
	}

	h.Log.Info("restriction lifted", zap.String("item_id", string(id)))
	writeJSON(w, http.StatusOK, SetRestrictionResponse{
		ItemID:       string(id),
		PreviousRule: ruleToDTO(previous),
	})
}

// RestrictionHistory returns the rule replacement history for audit.
func (h *Handler) RestrictionHistory(w http.ResponseWriter, r *http.Request) {
	id := rationing.ItemID(chi.URLParam(r, "id"))

	history, err := h.Catalog.RuleHistory(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "rule history", err)
		return
	}

	dtos := make([]RuleVersionDTO, len(history))
	for i, v := range history {
		dtos[i] = RuleVersionDTO{
			EffectiveFrom: v.EffectiveFrom.String(),
			Rule:          ruleToDTO(v.Rule),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INDIVIDUAL HANDLERS
// =============================================================================

func (h *Handler) ListIndividuals(w http.ResponseWriter, r *http.Request) {
	inds, err := h.Identity.ListIndividuals(r.Context())
	if err != nil {
		h.writeEngineError(w, "list individuals", err)
		return
	}

	dtos := make([]IndividualDTO, len(inds))
	for i, ind := range inds {
		dtos[i] = IndividualDTO{ID: string(ind.ID), DateOfBirth: ind.DateOfBirth.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateIndividual(w http.ResponseWriter, r *http.Request) {
	var req IndividualDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	dob, err := rationing.ParseDate(req.DateOfBirth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_of_birth (use YYYY-MM-DD)", err)
		return
	}

	ind := rationing.Individual{ID: rationing.IndividualID(req.ID), DateOfBirth: dob}
	if err := h.Identity.SaveIndividual(r.Context(), ind); err != nil {
		h.writeEngineError(w, "save individual", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// LOCATION / STOCK HANDLERS
// =============================================================================

func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locs := h.Index.Locations()
	dtos := make([]LocationDTO, len(locs))
	for i, loc := range locs {
		dtos[i] = locationToDTO(loc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	loc := geo.StoreLocation{
		ID:       rationing.LocationID(req.ID),
		Name:     req.Name,
		Address:  req.Address,
		Position: geo.Point{Lat: req.Latitude, Lng: req.Longitude},
	}
	if err := h.Index.UpsertLocation(r.Context(), loc); err != nil {
		h.writeEngineError(w, "upsert location", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) UpsertStock(w http.ResponseWriter, r *http.Request) {
	locationID := rationing.LocationID(chi.URLParam(r, "id"))
	itemID := rationing.ItemID(chi.URLParam(r, "itemID"))

	var req UpsertStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry := geo.StockEntry{
		LocationID:  locationID,
		ItemID:      itemID,
		Quantity:    req.Quantity,
		LastUpdated: time.Now().UTC(),
	}
	if err := h.Index.UpsertStock(r.Context(), entry); err != nil {
		h.writeEngineError(w, "upsert stock", err)
		return
	}
	writeJSON(w, http.StatusOK, stockToDTO(entry))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func (h *Handler) writeEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case rationing.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, rationing.ErrInvalidAuthorization),
		errors.Is(err, rationing.ErrDuplicateRecord),
		errors.Is(err, rationing.ErrQuotaExceeded):
		writeError(w, http.StatusConflict, "Conflict", err)
	case rationing.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	case rationing.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "Store unavailable, retry with backoff", err)
	default:
		h.Log.Error("internal error", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
