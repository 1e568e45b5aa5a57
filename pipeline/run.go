/*
Package pipeline drives one load: fetch every configured source, reshape,
derive, reconcile and write, then persist a run record.

PURPOSE:
The runner composes the pure series engine with the transport and storage
layers. One call to Run performs a complete incremental pass:

 1. Resolve the window start: an explicit month beats the store-derived
    revision start, which beats the configured start date (empty store).
 2. Fetch every source. A failed fetch fails the run; a partial load must
    never masquerade as a complete one.
 3. Reshape incidence tables directly; reshape index tables into levels and
    derive month-over-month variations over the full history, so the first
    in-window month still finds its predecessor.
 4. Filter to the window, reconcile across sources, write in one
    transaction.

CONCURRENCY:
Runs are single-flight. A second Run while one is active fails immediately
with ErrRunInProgress; the CLI and the HTTP trigger share one runner.

SEE ALSO:
- series/reconcile.go: priority and tie rules
- warehouse/writer.go: revision window and upsert outcomes
- api/handlers.go: HTTP trigger and run listing
*/
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/austral/ipc-engine/config"
	"github.com/austral/ipc-engine/logger"
	"github.com/austral/ipc-engine/series"
	"github.com/austral/ipc-engine/source"
	"github.com/austral/ipc-engine/warehouse"
)

// ErrRunInProgress reports a run attempt while another run holds the
// pipeline.
var ErrRunInProgress = errors.New("a run is already in progress")

// SourceReport summarizes what one source contributed to a run.
type SourceReport struct {
	Name string `json:"name"`
	// Rows counts the in-window observations the source contributed.
	Rows int `json:"rows"`
	// SkippedColumns lists columns that did not parse against the axis.
	SkippedColumns []string `json:"skipped_columns,omitempty"`
	DroppedCells   int      `json:"dropped_cells,omitempty"`
	BadCells       int      `json:"bad_cells,omitempty"`
}

// Report is the structured summary of one run, returned to the caller and
// persisted through the store.
type Report struct {
	RunID        string         `json:"run_id"`
	Status       string         `json:"status"`
	From         series.Month   `json:"from"`
	To           series.Month   `json:"to"`
	Sources      []SourceReport `json:"sources"`
	Keys         int            `json:"keys"`
	Inserted     int            `json:"inserted"`
	Updated      int            `json:"updated"`
	Unchanged    int            `json:"unchanged"`
	Overlaps     int            `json:"overlaps"`
	TieConflicts int            `json:"tie_conflicts"`
	Warnings     int            `json:"warnings"`
	DurationMS   int64          `json:"duration_ms"`
	Error        string         `json:"error,omitempty"`
}

// Runner owns one pipeline: a source client, a store and the resolved
// configuration.
type Runner struct {
	cfg    config.Config
	client *source.Client
	store  warehouse.Store
	writer *warehouse.Writer
	log    logger.Logger

	mu sync.Mutex
}

// NewRunner wires a runner. A nil logger disables logging.
func NewRunner(cfg config.Config, client *source.Client, store warehouse.Store, log logger.Logger) *Runner {
	if log == nil {
		log = logger.NopLogger
	}
	return &Runner{
		cfg:    cfg,
		client: client,
		store:  store,
		writer: warehouse.NewWriter(store, log),
		log:    log.WithPrefix("pipeline: "),
	}
}

// Run performs one load. A zero from month selects the incremental window:
// the store's revision start, or the configured start date when the store
// is empty. A non-zero from reprocesses from that month forward.
//
// The returned report is also persisted as a run record; failed runs are
// recorded with their error before Run returns it.
func (r *Runner) Run(ctx context.Context, from series.Month) (*Report, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	startedAt := time.Now()
	report := &Report{
		RunID:  fmt.Sprintf("run-%d", startedAt.UnixNano()),
		Status: warehouse.RunRunning,
	}

	window, err := r.resolveWindow(ctx, from)
	if err != nil {
		return nil, r.fail(ctx, report, startedAt, err)
	}
	report.From = window
	r.log.Infof("run %s: loading from %s (%d sources)", report.RunID, window, len(r.cfg.Sources))
	r.persistRun(ctx, report, startedAt, nil)

	var pool []series.Observation
	for _, src := range r.cfg.Sources {
		obs, sr, err := r.loadSource(ctx, src, window)
		if err != nil {
			return nil, r.fail(ctx, report, startedAt, err)
		}
		pool = append(pool, obs...)
		report.Sources = append(report.Sources, sr)
		report.Warnings += len(sr.SkippedColumns) + sr.BadCells
	}

	records, stats := series.Reconcile(pool, r.cfg.Policy())
	report.Keys = stats.Keys
	report.Overlaps = stats.Overlaps
	report.TieConflicts = stats.TieConflicts

	summary, err := r.writer.Apply(ctx, records)
	if err != nil {
		return nil, r.fail(ctx, report, startedAt, err)
	}

	report.To = summary.To
	report.Inserted = summary.Inserted
	report.Updated = summary.Updated
	report.Unchanged = summary.Unchanged
	report.Warnings += summary.Warnings
	report.Status = warehouse.RunSucceeded
	report.DurationMS = time.Since(startedAt).Milliseconds()

	finishedAt := time.Now()
	r.persistRun(ctx, report, startedAt, &finishedAt)
	r.log.Infof("run %s: %d inserted, %d updated, %d unchanged, %d warnings in %dms",
		report.RunID, report.Inserted, report.Updated, report.Unchanged,
		report.Warnings, report.DurationMS)
	return report, nil
}

// loadSource fetches and reshapes one source into in-window observations.
func (r *Runner) loadSource(ctx context.Context, src config.SourceSpec, window series.Month) ([]series.Observation, SourceReport, error) {
	table, err := r.client.FetchTable(ctx, src.Name, src.URL)
	if err != nil {
		return nil, SourceReport{}, err
	}

	axis, ok := src.AxisValue()
	if !ok {
		return nil, SourceReport{}, errors.Errorf("source %s: unknown axis %q", src.Name, src.Axis)
	}

	var obs []series.Observation
	var res *series.ReshapeResult
	switch src.Role {
	case config.RoleIncidence:
		res, err = series.Reshape(table, axis, series.MetricIncidence, src.Priority)
		if err != nil {
			return nil, SourceReport{}, err
		}
		obs = series.FilterFrom(res.Observations, window)
	case config.RoleIndex:
		res, err = series.Reshape(table, axis, series.MetricIndexLevel, src.Priority)
		if err != nil {
			return nil, SourceReport{}, err
		}
		// Derive over the full history first: the first in-window month
		// needs the level of the month before the window.
		variations := series.MonthOverMonth(res.Observations)
		obs = series.FilterFrom(variations, window)
	default:
		return nil, SourceReport{}, errors.Errorf("source %s: unknown role %q", src.Name, src.Role)
	}

	for _, col := range res.SkippedColumns {
		r.log.Warnf("source %s: column %q does not parse, skipped", src.Name, col)
	}
	if res.BadCells > 0 {
		r.log.Warnf("source %s: %d cells did not parse as decimals", src.Name, res.BadCells)
	}

	return obs, SourceReport{
		Name:           src.Name,
		Rows:           len(obs),
		SkippedColumns: res.SkippedColumns,
		DroppedCells:   res.DroppedCells,
		BadCells:       res.BadCells,
	}, nil
}

// resolveWindow picks the first month to load.
func (r *Runner) resolveWindow(ctx context.Context, explicit series.Month) (series.Month, error) {
	if !explicit.IsZero() {
		return explicit, nil
	}
	max, ok, err := r.store.MaxPeriod(ctx)
	if err != nil {
		return series.Month{}, errors.Wrap(err, "resolve window start")
	}
	if !ok {
		return r.cfg.StartMonth(), nil
	}
	return warehouse.RevisionStart(max, ok), nil
}

func (r *Runner) fail(ctx context.Context, report *Report, startedAt time.Time, err error) error {
	report.Status = warehouse.RunFailed
	report.Error = err.Error()
	report.DurationMS = time.Since(startedAt).Milliseconds()
	finishedAt := time.Now()
	r.persistRun(ctx, report, startedAt, &finishedAt)
	r.log.Errorf("run %s failed: %v", report.RunID, err)
	return err
}

// persistRun records the run's current state. A persistence failure is
// logged, not propagated; the load itself already happened or failed on
// its own terms.
func (r *Runner) persistRun(ctx context.Context, report *Report, startedAt time.Time, finishedAt *time.Time) {
	run := warehouse.Run{
		ID:         report.RunID,
		Status:     report.Status,
		From:       report.From,
		To:         report.To,
		Inserted:   report.Inserted,
		Updated:    report.Updated,
		Unchanged:  report.Unchanged,
		Warnings:   report.Warnings,
		Error:      report.Error,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		r.log.Errorf("save run %s: %v", report.RunID, err)
	}
}
