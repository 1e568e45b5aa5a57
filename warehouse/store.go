/*
Package warehouse defines the star-schema store contract and the
incremental writer that applies reconciled records to it.

PURPOSE:
  The transform core (series) is pure; everything stateful goes through
  the Store interface defined here. A SQLite implementation lives in
  store/sqlite, an in-memory one in memory.go for tests.

KEY CONCEPTS:
  - Fact: one upsert request, dimensions already resolved to ids
  - Outcome: whether an upsert inserted, updated or left a row unchanged
  - Batch: the write surface available inside one transaction
  - Run: the persisted summary of one pipeline invocation

DESIGN PRINCIPLES:
  1. Upserts never regress: a null slot in the request must not erase a
     stored value
  2. Dimension rows are created lazily and never deleted; their identity
     key never changes, only the derived nature may be refreshed
  3. Writes for one batch happen inside one transaction

SEE ALSO:
  - writer.go: orchestration and the revision window
  - store/sqlite: the durable implementation
*/
package warehouse

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/austral/ipc-engine/series"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrRunNotFound = errors.New("run not found")
)

// =============================================================================
// ROW TYPES
// =============================================================================

// Region is a row of dim_region.
type Region struct {
	ID   int64
	Name string
}

// Category is a row of dim_category. Identity is (Name, Classification);
// Nature is nil for aggregate axes.
type Category struct {
	ID             int64
	Name           string
	Classification string
	Nature         *string
}

// Fact is one upsert request against fact_inflation. Slots the source
// did not supply stay invalid and leave any stored value untouched.
type Fact struct {
	Month        series.Month
	RegionID     int64
	CategoryID   int64
	Incidence    decimal.NullDecimal
	MoMVariation decimal.NullDecimal
}

// Outcome reports what an upsert did to the target row.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeUnchanged
)

// ObservationRow is one joined fact as served by the query surface.
type ObservationRow struct {
	Month          series.Month
	Region         string
	Category       string
	Classification string
	Nature         *string
	Incidence      decimal.NullDecimal
	MoMVariation   decimal.NullDecimal
	UpdatedAt      time.Time
}

// ObservationQuery filters the joined fact surface. Zero fields match
// everything; Limit 0 means no limit.
type ObservationQuery struct {
	Region         string
	Category       string
	Classification string
	From           series.Month
	To             series.Month
	Limit          int
}

// =============================================================================
// RUNS
// =============================================================================

const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is the persisted summary of one pipeline invocation.
type Run struct {
	ID         string
	Status     string
	From       series.Month
	To         series.Month
	Inserted   int
	Updated    int
	Unchanged  int
	Warnings   int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// =============================================================================
// STORE CONTRACT
// =============================================================================

// Batch is the write surface available inside one transaction. Get-or-
// create methods are idempotent on the dimension identity key.
type Batch interface {
	// UpsertRegion returns the id for a region name, creating the row on
	// first sight.
	UpsertRegion(ctx context.Context, name string) (int64, error)

	// UpsertCategory returns the id for a (name, classification) pair,
	// creating the row on first sight. A non-nil nature refreshes the
	// stored nature; a nil one leaves it untouched.
	UpsertCategory(ctx context.Context, name, classification string, nature *string) (int64, error)

	// UpsertFact inserts or updates one fact row. Only slots the fact
	// supplies are written; a stored value is never erased by an
	// unsupplied slot.
	UpsertFact(ctx context.Context, f Fact) (Outcome, error)
}

// Store is the full persistence surface.
type Store interface {
	Batch

	// WithTx runs fn against a transactional Batch; fn returning an
	// error rolls every write back.
	WithTx(ctx context.Context, fn func(Batch) error) error

	// MaxPeriod returns the latest loaded month. ok is false on an
	// empty store.
	MaxPeriod(ctx context.Context) (m series.Month, ok bool, err error)

	ListRegions(ctx context.Context) ([]Region, error)
	ListCategories(ctx context.Context) ([]Category, error)
	QueryObservations(ctx context.Context, q ObservationQuery) ([]ObservationRow, error)

	SaveRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Close() error
}
