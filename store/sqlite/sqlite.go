/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements all persistence interfaces (rationing.PurchaseStore,
  rationing.Catalog, rationing.IdentityStore, geo.GeoStore) using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The purchase ledger is append-only:
  - No UPDATE statements on purchase_records
  - No DELETE statements on purchase_records
  Rule history is likewise append-only in rule_versions; the
  critical_items row only mirrors the latest version for display.

CONDITIONAL APPEND:
  AppendIf runs the window-total check and the insert inside one SQL
  transaction under the store mutex. This is the conditional-append
  primitive the purchase service relies on for check-then-commit
  atomicity.

KEY TABLES:
  purchase_records:  Immutable purchase ledger
  critical_items:    Catalog entries mirroring their current rule
  rule_versions:     Append-only rule replacement history
  individuals:       Date-of-birth lookup
  store_locations:   Geo positions for the availability index
  stock_entries:     (location, item) -> quantity facts

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): multiple readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/rationing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - rationing/store.go: Interface definitions
  - rationing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/rationing-engine/geo"
	"github.com/warp/rationing-engine/rationing"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Purchase records (append-only ledger)
	CREATE TABLE IF NOT EXISTS purchase_records (
		id TEXT PRIMARY KEY,
		individual_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		location_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		purchased_at TEXT NOT NULL
	);

	-- Hot path: window totals per individual+item
	CREATE INDEX IF NOT EXISTS idx_records_individual_item_time
		ON purchase_records(individual_id, item_id, purchased_at);
	CREATE INDEX IF NOT EXISTS idx_records_individual_time
		ON purchase_records(individual_id, purchased_at);

	-- Catalog entries; rule columns mirror the latest rule version
	CREATE TABLE IF NOT EXISTS critical_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT,
		description TEXT,
		is_restricted BOOLEAN NOT NULL DEFAULT FALSE,
		max_quantity INTEGER,
		period TEXT,
		birth_year_digits TEXT,
		allowed_weekdays TEXT,
		effective_from TEXT,
		effective_to TEXT,
		updated_at TEXT NOT NULL
	);

	-- Rule replacement history (append-only)
	CREATE TABLE IF NOT EXISTS rule_versions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		restricted BOOLEAN NOT NULL,
		max_quantity INTEGER,
		period TEXT,
		birth_year_digits TEXT,
		allowed_weekdays TEXT,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rule_versions_item
		ON rule_versions(item_id, effective_from);

	-- Individuals (date of birth only; the rest belongs to another system)
	CREATE TABLE IF NOT EXISTS individuals (
		id TEXT PRIMARY KEY,
		date_of_birth TEXT NOT NULL
	);

	-- Store locations
	CREATE TABLE IF NOT EXISTS store_locations (
		id TEXT PRIMARY KEY,
		name TEXT,
		address TEXT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL
	);

	-- Stock facts; (location, item) unique, zero quantity kept for audit
	CREATE TABLE IF NOT EXISTS stock_entries (
		location_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		last_updated TEXT NOT NULL,
		PRIMARY KEY (location_id, item_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func storeErr(op string, err error) error {
	return &rationing.StoreError{Op: op, Err: err}
}

// =============================================================================
// PURCHASE STORE (rationing.PurchaseStore interface)
// =============================================================================

// Append adds a record to the ledger.
func (s *Store) Append(ctx context.Context, rec rationing.PurchaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertRecord(ctx, s.db, rec)
}

// AppendIf adds a record only if the window total stays within limit.
// Check and insert run in one SQL transaction.
func (s *Store) AppendIf(ctx context.Context, rec rationing.PurchaseRecord, limit int, w rationing.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback()

	var total sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT SUM(quantity) FROM purchase_records
		WHERE individual_id = ? AND item_id = ?
		  AND purchased_at >= ? AND purchased_at <= ?`,
		string(rec.IndividualID), string(rec.ItemID),
		formatTime(w.Start.StartOfDay()), formatTime(w.End.EndOfDay()),
	).Scan(&total)
	if err != nil {
		return storeErr("window total", err)
	}

	if int(total.Int64)+rec.Quantity > limit {
		return rationing.ErrQuotaExceeded
	}

	if err := s.insertRecord(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertRecord(ctx context.Context, db execer, rec rationing.PurchaseRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO purchase_records (id, individual_id, item_id, location_id, quantity, purchased_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(rec.ID), string(rec.IndividualID), string(rec.ItemID),
		string(rec.LocationID), rec.Quantity, formatTime(rec.Timestamp),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rationing.ErrDuplicateRecord
		}
		return storeErr("append", err)
	}
	return nil
}

func (s *Store) LoadWindow(ctx context.Context, individualID rationing.IndividualID, itemID rationing.ItemID, w rationing.Window) ([]rationing.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, individual_id, item_id, location_id, quantity, purchased_at
		FROM purchase_records
		WHERE individual_id = ? AND item_id = ?
		  AND purchased_at >= ? AND purchased_at <= ?
		ORDER BY purchased_at`,
		string(individualID), string(itemID),
		formatTime(w.Start.StartOfDay()), formatTime(w.End.EndOfDay()),
	)
	if err != nil {
		return nil, storeErr("load window", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) LoadByIndividual(ctx context.Context, individualID rationing.IndividualID, from, to time.Time) ([]rationing.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, individual_id, item_id, location_id, quantity, purchased_at
		FROM purchase_records
		WHERE individual_id = ? AND purchased_at >= ? AND purchased_at <= ?
		ORDER BY purchased_at`,
		string(individualID), formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, storeErr("load by individual", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]rationing.PurchaseRecord, error) {
	var recs []rationing.PurchaseRecord
	for rows.Next() {
		var rec rationing.PurchaseRecord
		var id, individualID, itemID, locationID, purchasedAt string
		if err := rows.Scan(&id, &individualID, &itemID, &locationID, &rec.Quantity, &purchasedAt); err != nil {
			return nil, storeErr("scan record", err)
		}
		rec.ID = rationing.RecordID(id)
		rec.IndividualID = rationing.IndividualID(individualID)
		rec.ItemID = rationing.ItemID(itemID)
		rec.LocationID = rationing.LocationID(locationID)
		t, err := parseTime(purchasedAt)
		if err != nil {
			return nil, storeErr("scan record", err)
		}
		rec.Timestamp = t
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// =============================================================================
// CATALOG (rationing.Catalog interface)
// =============================================================================

func (s *Store) GetItem(ctx context.Context, id rationing.ItemID) (*rationing.CriticalItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, description, is_restricted,
		       max_quantity, period, birth_year_digits, allowed_weekdays,
		       effective_from, effective_to
		FROM critical_items WHERE id = ?`, string(id))

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, rationing.ErrUnknownItem
	}
	if err != nil {
		return nil, storeErr("get item", err)
	}
	return item, nil
}

func (s *Store) SaveItem(ctx context.Context, item rationing.CriticalItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// New items start unrestricted; the mirrored rule columns are owned
	// by AppendRuleVersion, so an update leaves them untouched.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO critical_items (id, name, category, description, is_restricted, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		string(item.ID), item.Name, item.Category, item.Description, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return storeErr("save item", err)
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context) ([]rationing.CriticalItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, description, is_restricted,
		       max_quantity, period, birth_year_digits, allowed_weekdays,
		       effective_from, effective_to
		FROM critical_items ORDER BY id`)
	if err != nil {
		return nil, storeErr("list items", err)
	}
	defer rows.Close()

	var items []rationing.CriticalItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storeErr("list items", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *Store) RuleHistory(ctx context.Context, id rationing.ItemID) (rationing.RuleVersions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT restricted, max_quantity, period, birth_year_digits, allowed_weekdays,
		       effective_from, effective_to
		FROM rule_versions
		WHERE item_id = ?
		ORDER BY effective_from, seq`, string(id))
	if err != nil {
		return nil, storeErr("rule history", err)
	}
	defer rows.Close()

	var versions rationing.RuleVersions
	for rows.Next() {
		var restricted bool
		var maxQuantity sql.NullInt64
		var period, digits, weekdays, effectiveTo sql.NullString
		var effectiveFrom string
		if err := rows.Scan(&restricted, &maxQuantity, &period, &digits, &weekdays, &effectiveFrom, &effectiveTo); err != nil {
			return nil, storeErr("rule history", err)
		}

		from, err := rationing.ParseDate(effectiveFrom)
		if err != nil {
			return nil, storeErr("rule history", err)
		}
		v := rationing.RuleVersion{EffectiveFrom: from}
		if restricted {
			rule, err := buildRule(maxQuantity, period, digits, weekdays, effectiveFrom, effectiveTo)
			if err != nil {
				return nil, storeErr("rule history", err)
			}
			v.Rule = rule
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *Store) AppendRuleVersion(ctx context.Context, id rationing.ItemID, v rationing.RuleVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM critical_items WHERE id = ?`, string(id)).Scan(&exists); err != nil {
		return storeErr("append rule version", err)
	}
	if exists == 0 {
		return rationing.ErrUnknownItem
	}

	cols := ruleColumns(v.Rule)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rule_versions (item_id, restricted, max_quantity, period,
			birth_year_digits, allowed_weekdays, effective_from, effective_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(id), v.Rule != nil, cols.maxQuantity, cols.period,
		cols.digits, cols.weekdays, v.EffectiveFrom.String(), cols.effectiveTo,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return storeErr("append rule version", err)
	}

	// Mirror the latest version on the item row for display.
	_, err = tx.ExecContext(ctx, `
		UPDATE critical_items SET
			is_restricted = ?, max_quantity = ?, period = ?,
			birth_year_digits = ?, allowed_weekdays = ?,
			effective_from = ?, effective_to = ?, updated_at = ?
		WHERE id = ?`,
		v.Rule != nil, cols.maxQuantity, cols.period,
		cols.digits, cols.weekdays, cols.effectiveFrom, cols.effectiveTo,
		formatTime(time.Now().UTC()), string(id),
	)
	if err != nil {
		return storeErr("append rule version", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// =============================================================================
// IDENTITY STORE (rationing.IdentityStore interface)
// =============================================================================

func (s *Store) GetIndividual(ctx context.Context, id rationing.IndividualID) (*rationing.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var dob string
	err := s.db.QueryRowContext(ctx, `SELECT date_of_birth FROM individuals WHERE id = ?`, string(id)).Scan(&dob)
	if err == sql.ErrNoRows {
		return nil, rationing.ErrUnknownIndividual
	}
	if err != nil {
		return nil, storeErr("get individual", err)
	}

	d, err := rationing.ParseDate(dob)
	if err != nil {
		return nil, storeErr("get individual", err)
	}
	return &rationing.Individual{ID: id, DateOfBirth: d}, nil
}

func (s *Store) SaveIndividual(ctx context.Context, ind rationing.Individual) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO individuals (id, date_of_birth) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET date_of_birth = excluded.date_of_birth`,
		string(ind.ID), ind.DateOfBirth.String(),
	)
	if err != nil {
		return storeErr("save individual", err)
	}
	return nil
}

func (s *Store) ListIndividuals(ctx context.Context) ([]rationing.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, date_of_birth FROM individuals ORDER BY id`)
	if err != nil {
		return nil, storeErr("list individuals", err)
	}
	defer rows.Close()

	var out []rationing.Individual
	for rows.Next() {
		var id, dob string
		if err := rows.Scan(&id, &dob); err != nil {
			return nil, storeErr("list individuals", err)
		}
		d, err := rationing.ParseDate(dob)
		if err != nil {
			return nil, storeErr("list individuals", err)
		}
		out = append(out, rationing.Individual{ID: rationing.IndividualID(id), DateOfBirth: d})
	}
	return out, rows.Err()
}

// =============================================================================
// GEO STORE (geo.GeoStore interface)
// =============================================================================

func (s *Store) UpsertLocation(ctx context.Context, loc geo.StoreLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_locations (id, name, address, latitude, longitude)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, address = excluded.address,
			latitude = excluded.latitude, longitude = excluded.longitude`,
		string(loc.ID), loc.Name, loc.Address, loc.Position.Lat, loc.Position.Lng,
	)
	if err != nil {
		return storeErr("upsert location", err)
	}
	return nil
}

func (s *Store) UpsertStock(ctx context.Context, entry geo.StockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_entries (location_id, item_id, quantity, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(location_id, item_id) DO UPDATE SET
			quantity = excluded.quantity, last_updated = excluded.last_updated`,
		string(entry.LocationID), string(entry.ItemID), entry.Quantity,
		formatTime(entry.LastUpdated),
	)
	if err != nil {
		return storeErr("upsert stock", err)
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]geo.StoreLocation, []geo.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locRows, err := s.db.QueryContext(ctx, `SELECT id, name, address, latitude, longitude FROM store_locations`)
	if err != nil {
		return nil, nil, storeErr("load locations", err)
	}
	defer locRows.Close()

	var locs []geo.StoreLocation
	for locRows.Next() {
		var loc geo.StoreLocation
		var id string
		var name, address sql.NullString
		if err := locRows.Scan(&id, &name, &address, &loc.Position.Lat, &loc.Position.Lng); err != nil {
			return nil, nil, storeErr("load locations", err)
		}
		loc.ID = rationing.LocationID(id)
		loc.Name = name.String
		loc.Address = address.String
		locs = append(locs, loc)
	}
	if err := locRows.Err(); err != nil {
		return nil, nil, storeErr("load locations", err)
	}

	stockRows, err := s.db.QueryContext(ctx, `SELECT location_id, item_id, quantity, last_updated FROM stock_entries`)
	if err != nil {
		return nil, nil, storeErr("load stock", err)
	}
	defer stockRows.Close()

	var entries []geo.StockEntry
	for stockRows.Next() {
		var e geo.StockEntry
		var locationID, itemID, updated string
		if err := stockRows.Scan(&locationID, &itemID, &e.Quantity, &updated); err != nil {
			return nil, nil, storeErr("load stock", err)
		}
		e.LocationID = rationing.LocationID(locationID)
		e.ItemID = rationing.ItemID(itemID)
		t, err := parseTime(updated)
		if err != nil {
			return nil, nil, storeErr("load stock", err)
		}
		e.LastUpdated = t
		entries = append(entries, e)
	}
	return locs, entries, stockRows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type ruleCols struct {
	maxQuantity   sql.NullInt64
	period        sql.NullString
	digits        sql.NullString
	weekdays      sql.NullString
	effectiveFrom sql.NullString
	effectiveTo   sql.NullString
}

func ruleColumns(r *rationing.RationingRule) ruleCols {
	if r == nil {
		return ruleCols{}
	}
	cols := ruleCols{
		maxQuantity:   sql.NullInt64{Int64: int64(r.MaxQuantity), Valid: true},
		period:        sql.NullString{String: string(r.Period), Valid: true},
		digits:        sql.NullString{String: r.BirthYearDigits.String(), Valid: true},
		weekdays:      sql.NullString{String: r.AllowedWeekdays.String(), Valid: true},
		effectiveFrom: sql.NullString{String: r.EffectiveFrom.String(), Valid: true},
	}
	if r.EffectiveTo != nil {
		cols.effectiveTo = sql.NullString{String: r.EffectiveTo.String(), Valid: true}
	}
	return cols
}

func buildRule(maxQuantity sql.NullInt64, period, digits, weekdays sql.NullString, effectiveFrom string, effectiveTo sql.NullString) (*rationing.RationingRule, error) {
	ds, err := rationing.ParseDigitSet(digits.String)
	if err != nil {
		return nil, err
	}
	ws, err := rationing.ParseWeekdaySet(weekdays.String)
	if err != nil {
		return nil, err
	}
	from, err := rationing.ParseDate(effectiveFrom)
	if err != nil {
		return nil, err
	}

	rule := &rationing.RationingRule{
		MaxQuantity:     int(maxQuantity.Int64),
		Period:          rationing.Period(period.String),
		BirthYearDigits: ds,
		AllowedWeekdays: ws,
		EffectiveFrom:   from,
	}
	if effectiveTo.Valid && effectiveTo.String != "" {
		to, err := rationing.ParseDate(effectiveTo.String)
		if err != nil {
			return nil, err
		}
		rule.EffectiveTo = &to
	}
	return rule, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*rationing.CriticalItem, error) {
	var item rationing.CriticalItem
	var id string
	var category, description sql.NullString
	var maxQuantity sql.NullInt64
	var period, digits, weekdays, effectiveFrom, effectiveTo sql.NullString

	err := row.Scan(&id, &item.Name, &category, &description, &item.IsRestricted,
		&maxQuantity, &period, &digits, &weekdays, &effectiveFrom, &effectiveTo)
	if err != nil {
		return nil, err
	}

	item.ID = rationing.ItemID(id)
	item.Category = category.String
	item.Description = description.String

	if item.IsRestricted && effectiveFrom.Valid {
		rule, err := buildRule(maxQuantity, period, digits, weekdays, effectiveFrom.String, effectiveTo)
		if err != nil {
			return nil, err
		}
		item.Rule = rule
	}
	return &item, nil
}

// timeLayout is fixed-width so lexicographic comparison in SQL matches
// chronological order (RFC3339Nano drops trailing zeros and does not).
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 reports constraint violations in the error text;
	// matching on it avoids depending on the driver's error types here.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
