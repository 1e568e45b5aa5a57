/*
Package sqlite provides a SQLite-backed implementation of the warehouse
store.

PURPOSE:
  Implements warehouse.Store over a single SQLite file. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  dim_region:     Region dimension, one row per region name
  dim_category:   Category dimension, identity (category_name, classification)
  fact_inflation: One row per (period, region, category), two nullable
                  metric slots, stored as decimal strings
  load_runs:      Persisted summaries of pipeline invocations

UPSERT SEMANTICS:
  Dimension rows are get-or-create on their identity key; only the
  derived nature column may be refreshed. Fact upserts never erase a
  stored slot with a null: the incoming slot is merged with COALESCE
  semantics, and rows whose merged values equal the stored ones are
  reported unchanged without touching updated_at.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The pipeline is a single
  sequential writer; the mutex covers the API's concurrent reads.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't
  block during a load.

USAGE:
  store, err := sqlite.New("./data/ipc.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - warehouse/store.go: Interface definition
  - warehouse/writer.go: The writer driving the upserts
  - warehouse/memory.go: In-memory implementation for testing
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
	"github.com/shopspring/decimal"

	"github.com/austral/ipc-engine/series"
	"github.com/austral/ipc-engine/warehouse"
)

const dateLayout = "2006-01-02"

// Store implements warehouse.Store using SQLite.
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
	-- Region dimension (closed set of 7, created lazily on first sight)
	CREATE TABLE IF NOT EXISTS dim_region (
		region_id INTEGER PRIMARY KEY AUTOINCREMENT,
		region_name TEXT NOT NULL UNIQUE
	);

	-- Category dimension; identity is (category_name, classification),
	-- nature is derived and nullable for aggregate axes
	CREATE TABLE IF NOT EXISTS dim_category (
		category_id INTEGER PRIMARY KEY AUTOINCREMENT,
		category_name TEXT NOT NULL,
		classification TEXT NOT NULL,
		nature TEXT,
		UNIQUE (category_name, classification)
	);

	-- Facts: one row per (period, region, category), slots filled
	-- independently; values stored as decimal strings
	CREATE TABLE IF NOT EXISTS fact_inflation (
		period TEXT NOT NULL,
		region_id INTEGER NOT NULL REFERENCES dim_region(region_id),
		category_id INTEGER NOT NULL REFERENCES dim_category(category_id),
		incidence TEXT,
		mom_variation TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (period, region_id, category_id)
	);

	CREATE INDEX IF NOT EXISTS idx_fact_period ON fact_inflation(period);
	CREATE INDEX IF NOT EXISTS idx_fact_region ON fact_inflation(region_id);
	CREATE INDEX IF NOT EXISTS idx_fact_category ON fact_inflation(category_id);

	-- Load runs (pipeline invocation summaries)
	CREATE TABLE IF NOT EXISTS load_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		period_from TEXT,
		period_to TEXT,
		inserted INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		unchanged INTEGER NOT NULL DEFAULT 0,
		warnings INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_load_runs_started
		ON load_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// DIMENSIONS (warehouse.Batch interface)
// =============================================================================

// UpsertRegion returns the id for a region name, creating it on first sight.
func (s *Store) UpsertRegion(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertRegionTx(ctx, s.db, name)
}

func upsertRegionTx(ctx context.Context, db dbtx, name string) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO dim_region (region_name) VALUES (?)
		ON CONFLICT(region_name) DO NOTHING
	`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert region: %w", err)
	}

	var id int64
	err = db.QueryRowContext(ctx,
		`SELECT region_id FROM dim_region WHERE region_name = ?`, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve region id: %w", err)
	}
	return id, nil
}

// UpsertCategory returns the id for a (name, classification) pair,
// creating it on first sight. A non-nil nature refreshes the stored one.
func (s *Store) UpsertCategory(ctx context.Context, name, classification string, nature *string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertCategoryTx(ctx, s.db, name, classification, nature)
}

func upsertCategoryTx(ctx context.Context, db dbtx, name, classification string, nature *string) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO dim_category (category_name, classification, nature)
		VALUES (?, ?, ?)
		ON CONFLICT(category_name, classification) DO UPDATE SET
			nature = COALESCE(excluded.nature, dim_category.nature)
	`, name, classification, nature)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert category: %w", err)
	}

	var id int64
	err = db.QueryRowContext(ctx, `
		SELECT category_id FROM dim_category
		WHERE category_name = ? AND classification = ?
	`, name, classification).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve category id: %w", err)
	}
	return id, nil
}

// =============================================================================
// FACTS (warehouse.Batch interface)
// =============================================================================

// UpsertFact inserts or updates one fact row. Supplied slots overwrite,
// unsupplied slots keep their stored value, and a row whose merged
// values equal the stored ones is reported unchanged without a write.
func (s *Store) UpsertFact(ctx context.Context, f warehouse.Fact) (warehouse.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertFactTx(ctx, s.db, f)
}

func upsertFactTx(ctx context.Context, db dbtx, f warehouse.Fact) (warehouse.Outcome, error) {
	period := f.Month.Date().Format(dateLayout)
	now := time.Now().UTC().Format(time.RFC3339)

	var storedInc, storedVar sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT incidence, mom_variation FROM fact_inflation
		WHERE period = ? AND region_id = ? AND category_id = ?
	`, period, f.RegionID, f.CategoryID).Scan(&storedInc, &storedVar)

	switch {
	case err == sql.ErrNoRows:
		_, err := db.ExecContext(ctx, `
			INSERT INTO fact_inflation
				(period, region_id, category_id, incidence, mom_variation, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, period, f.RegionID, f.CategoryID,
			nullDecimalArg(f.Incidence), nullDecimalArg(f.MoMVariation), now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert fact: %w", err)
		}
		return warehouse.OutcomeInserted, nil
	case err != nil:
		return 0, fmt.Errorf("failed to read fact: %w", err)
	}

	mergedInc := mergeSlot(f.Incidence, storedInc)
	mergedVar := mergeSlot(f.MoMVariation, storedVar)
	if slotEqual(mergedInc, storedInc) && slotEqual(mergedVar, storedVar) {
		return warehouse.OutcomeUnchanged, nil
	}

	_, err = db.ExecContext(ctx, `
		UPDATE fact_inflation
		SET incidence = ?, mom_variation = ?, updated_at = ?
		WHERE period = ? AND region_id = ? AND category_id = ?
	`, nullStringArg(mergedInc), nullStringArg(mergedVar), now,
		period, f.RegionID, f.CategoryID)
	if err != nil {
		return 0, fmt.Errorf("failed to update fact: %w", err)
	}
	return warehouse.OutcomeUpdated, nil
}

// mergeSlot applies the partial-update rule: a supplied value wins, an
// unsupplied one keeps what is stored.
func mergeSlot(incoming decimal.NullDecimal, stored sql.NullString) sql.NullString {
	if incoming.Valid {
		return sql.NullString{String: incoming.Decimal.String(), Valid: true}
	}
	return stored
}

// slotEqual compares two stored slots numerically, so "0.25" and
// "0.2500" count as the same value.
func slotEqual(a, b sql.NullString) bool {
	if a.Valid != b.Valid {
		return false
	}
	if !a.Valid {
		return true
	}
	av, errA := decimal.NewFromString(a.String)
	bv, errB := decimal.NewFromString(b.String)
	if errA != nil || errB != nil {
		return a.String == b.String
	}
	return av.Equal(bv)
}

func nullDecimalArg(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal.String()
}

func nullStringArg(v sql.NullString) any {
	if !v.Valid {
		return nil
	}
	return v.String
}

// =============================================================================
// TRANSACTIONS (warehouse.Store interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(warehouse.Batch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txBatch{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txBatch struct {
	tx *sql.Tx
}

func (tb *txBatch) UpsertRegion(ctx context.Context, name string) (int64, error) {
	return upsertRegionTx(ctx, tb.tx, name)
}

func (tb *txBatch) UpsertCategory(ctx context.Context, name, classification string, nature *string) (int64, error) {
	return upsertCategoryTx(ctx, tb.tx, name, classification, nature)
}

func (tb *txBatch) UpsertFact(ctx context.Context, f warehouse.Fact) (warehouse.Outcome, error) {
	return upsertFactTx(ctx, tb.tx, f)
}

// =============================================================================
// READ SURFACE
// =============================================================================

// MaxPeriod returns the latest loaded month; ok is false on an empty store.
func (s *Store) MaxPeriod(ctx context.Context) (series.Month, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(period) FROM fact_inflation`).Scan(&raw)
	if err != nil {
		return series.Month{}, false, fmt.Errorf("failed to read max period: %w", err)
	}
	if !raw.Valid {
		return series.Month{}, false, nil
	}
	m, err := series.ParseMonth(raw.String)
	if err != nil {
		return series.Month{}, false, fmt.Errorf("failed to parse stored period %q: %w", raw.String, err)
	}
	return m, true, nil
}

func (s *Store) ListRegions(ctx context.Context) ([]warehouse.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT region_id, region_name FROM dim_region ORDER BY region_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	defer rows.Close()

	var out []warehouse.Region
	for rows.Next() {
		var r warehouse.Region
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListCategories(ctx context.Context) ([]warehouse.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT category_id, category_name, classification, nature
		FROM dim_category ORDER BY category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []warehouse.Category
	for rows.Next() {
		var (
			c      warehouse.Category
			nature sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Classification, &nature); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if nature.Valid {
			n := nature.String
			c.Nature = &n
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// QueryObservations serves the joined fact surface with optional filters.
func (s *Store) QueryObservations(ctx context.Context, q warehouse.ObservationQuery) ([]warehouse.ObservationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT f.period, r.region_name, c.category_name, c.classification,
			c.nature, f.incidence, f.mom_variation, f.updated_at
		FROM fact_inflation f
		JOIN dim_region r ON r.region_id = f.region_id
		JOIN dim_category c ON c.category_id = f.category_id
	`

	var (
		conds []string
		args  []any
	)
	if q.Region != "" {
		conds = append(conds, "r.region_name = ?")
		args = append(args, q.Region)
	}
	if q.Category != "" {
		conds = append(conds, "c.category_name = ?")
		args = append(args, q.Category)
	}
	if q.Classification != "" {
		conds = append(conds, "c.classification = ?")
		args = append(args, q.Classification)
	}
	if !q.From.IsZero() {
		conds = append(conds, "f.period >= ?")
		args = append(args, q.From.Date().Format(dateLayout))
	}
	if !q.To.IsZero() {
		conds = append(conds, "f.period <= ?")
		args = append(args, q.To.Date().Format(dateLayout))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY f.period, r.region_name, c.category_name, c.classification"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []warehouse.ObservationRow
	for rows.Next() {
		row, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanObservation(rows *sql.Rows) (warehouse.ObservationRow, error) {
	var (
		row       warehouse.ObservationRow
		period    string
		nature    sql.NullString
		incidence sql.NullString
		variation sql.NullString
		updatedAt string
	)

	err := rows.Scan(&period, &row.Region, &row.Category, &row.Classification,
		&nature, &incidence, &variation, &updatedAt)
	if err != nil {
		return row, fmt.Errorf("failed to scan observation: %w", err)
	}

	row.Month, err = series.ParseMonth(period)
	if err != nil {
		return row, fmt.Errorf("failed to parse stored period %q: %w", period, err)
	}
	if nature.Valid {
		n := nature.String
		row.Nature = &n
	}
	if row.Incidence, err = parseSlot(incidence); err != nil {
		return row, err
	}
	if row.MoMVariation, err = parseSlot(variation); err != nil {
		return row, err
	}
	row.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return row, nil
}

func parseSlot(v sql.NullString) (decimal.NullDecimal, error) {
	if !v.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("failed to parse stored value %q: %w", v.String, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// =============================================================================
// RUNS
// =============================================================================

// SaveRun persists a run summary, overwriting any earlier save of the
// same run id.
func (s *Store) SaveRun(ctx context.Context, r warehouse.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO load_runs (id, status, period_from, period_to,
			inserted, updated, unchanged, warnings, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			period_from = excluded.period_from,
			period_to = excluded.period_to,
			inserted = excluded.inserted,
			updated = excluded.updated,
			unchanged = excluded.unchanged,
			warnings = excluded.warnings,
			error = excluded.error,
			finished_at = excluded.finished_at
	`

	var finishedAt any
	if r.FinishedAt != nil {
		finishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Status, monthArg(r.From), monthArg(r.To),
		r.Inserted, r.Updated, r.Unchanged, r.Warnings,
		nullString(r.Error),
		r.StartedAt.UTC().Format(time.RFC3339), finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*warehouse.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, period_from, period_to, inserted, updated,
			unchanged, warnings, error, started_at, finished_at
		FROM load_runs WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, warehouse.ErrRunNotFound
	}
	r, err := scanRun(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]warehouse.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, status, period_from, period_to, inserted, updated,
			unchanged, warnings, error, started_at, finished_at
		FROM load_runs ORDER BY started_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []warehouse.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRun(rows *sql.Rows) (warehouse.Run, error) {
	var (
		r          warehouse.Run
		from, to   sql.NullString
		errMsg     sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)

	err := rows.Scan(&r.ID, &r.Status, &from, &to,
		&r.Inserted, &r.Updated, &r.Unchanged, &r.Warnings,
		&errMsg, &startedAt, &finishedAt)
	if err != nil {
		return r, fmt.Errorf("failed to scan run: %w", err)
	}

	if from.Valid {
		r.From, _ = series.ParseMonth(from.String)
	}
	if to.Valid {
		r.To, _ = series.ParseMonth(to.String)
	}
	r.Error = errMsg.String
	r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		r.FinishedAt = &t
	}
	return r, nil
}

func monthArg(m series.Month) any {
	if m.IsZero() {
		return nil
	}
	return m.Date().Format(dateLayout)
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
