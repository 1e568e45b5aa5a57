package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austral/ipc-engine/series"
	"github.com/austral/ipc-engine/store/sqlite"
	"github.com/austral/ipc-engine/warehouse"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mustMonth(t *testing.T, s string) series.Month {
	m, err := series.ParseMonth(s)
	require.NoError(t, err)
	return m
}

func nd(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: series.MustParseDecimal(s), Valid: true}
}

// =============================================================================
// DIMENSION UPSERTS
// =============================================================================

func TestStore_UpsertRegion_IdempotentOnName(t *testing.T) {
	// GIVEN: A region created once
	// WHEN: Upserting the same name again
	// THEN: The same id comes back; no duplicate row

	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.UpsertRegion(ctx, series.RegionGBA)
	require.NoError(t, err)
	id2, err := store.UpsertRegion(ctx, series.RegionGBA)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	regions, err := store.ListRegions(ctx)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, series.RegionGBA, regions[0].Name)
}

func TestStore_UpsertCategory_NatureRefreshRules(t *testing.T) {
	// GIVEN: A category created without a nature
	// WHEN: Upserting with a nature, then again with nil
	// THEN: The nature is set by the first and kept by the second

	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.UpsertCategory(ctx, series.CategoryDivision, "Salud", nil)
	require.NoError(t, err)

	mixed := string(series.NatureMixed)
	id2, err := store.UpsertCategory(ctx, series.CategoryDivision, "Salud", &mixed)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := store.UpsertCategory(ctx, series.CategoryDivision, "Salud", nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id3)

	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	require.NotNil(t, categories[0].Nature)
	assert.Equal(t, mixed, *categories[0].Nature)
}

func TestStore_UpsertCategory_ClassificationIsPartOfIdentity(t *testing.T) {
	// GIVEN: Two classifications under the same category name
	// WHEN: Upserting both
	// THEN: Two distinct rows

	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.UpsertCategory(ctx, series.CategoryDivision, "Salud", nil)
	require.NoError(t, err)
	id2, err := store.UpsertCategory(ctx, series.CategoryDivision, "Transporte", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

// =============================================================================
// FACT UPSERTS
// =============================================================================

func TestStore_UpsertFact_InsertUpdateUnchanged(t *testing.T) {
	// GIVEN: A fresh fact row
	// WHEN: Writing it, rewriting it identically, then revising one slot
	// THEN: Outcomes are inserted, unchanged, updated in that order

	store := newTestStore(t)
	ctx := context.Background()

	regionID, err := store.UpsertRegion(ctx, series.RegionGBA)
	require.NoError(t, err)
	categoryID, err := store.UpsertCategory(ctx, series.CategoryDivision, "Salud", nil)
	require.NoError(t, err)

	fact := warehouse.Fact{
		Month:      mustMonth(t, "2024-01"),
		RegionID:   regionID,
		CategoryID: categoryID,
		Incidence:  nd("0.25"),
	}

	outcome, err := store.UpsertFact(ctx, fact)
	require.NoError(t, err)
	assert.Equal(t, warehouse.OutcomeInserted, outcome)

	outcome, err = store.UpsertFact(ctx, fact)
	require.NoError(t, err)
	assert.Equal(t, warehouse.OutcomeUnchanged, outcome)

	fact.Incidence = nd("0.26")
	outcome, err = store.UpsertFact(ctx, fact)
	require.NoError(t, err)
	assert.Equal(t, warehouse.OutcomeUpdated, outcome)
}

func TestStore_UpsertFact_NullSlotKeepsStoredValue(t *testing.T) {
	// GIVEN: A fact stored with both slots
	// WHEN: Upserting with only the variation slot supplied
	// THEN: The stored incidence survives

	store := newTestStore(t)
	ctx := context.Background()

	regionID, err := store.UpsertRegion(ctx, series.RegionNacional)
	require.NoError(t, err)
	categoryID, err := store.UpsertCategory(ctx, series.CategoryAnalysis, "Núcleo", nil)
	require.NoError(t, err)

	month := mustMonth(t, "2024-01")
	_, err = store.UpsertFact(ctx, warehouse.Fact{
		Month: month, RegionID: regionID, CategoryID: categoryID,
		Incidence: nd("0.42"), MoMVariation: nd("3.9604"),
	})
	require.NoError(t, err)

	outcome, err := store.UpsertFact(ctx, warehouse.Fact{
		Month: month, RegionID: regionID, CategoryID: categoryID,
		MoMVariation: nd("4.0000"),
	})
	require.NoError(t, err)
	assert.Equal(t, warehouse.OutcomeUpdated, outcome)

	rows, err := store.QueryObservations(ctx, warehouse.ObservationQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Incidence.Valid)
	assert.True(t, rows[0].Incidence.Decimal.Equal(series.MustParseDecimal("0.42")),
		"expected stored incidence to survive, got %v", rows[0].Incidence.Decimal)
	assert.True(t, rows[0].MoMVariation.Decimal.Equal(series.MustParseDecimal("4")),
		"expected revised variation, got %v", rows[0].MoMVariation.Decimal)
}

func TestStore_UpsertFact_EquivalentDecimalForms_Unchanged(t *testing.T) {
	// GIVEN: A stored incidence of 0.25
	// WHEN: Upserting 0.2500
	// THEN: Numerically equal, so the row reports unchanged

	store := newTestStore(t)
	ctx := context.Background()

	regionID, err := store.UpsertRegion(ctx, series.RegionGBA)
	require.NoError(t, err)
	categoryID, err := store.UpsertCategory(ctx, series.CategoryDivision, "Salud", nil)
	require.NoError(t, err)

	fact := warehouse.Fact{
		Month: mustMonth(t, "2024-01"), RegionID: regionID, CategoryID: categoryID,
		Incidence: nd("0.25"),
	}
	_, err = store.UpsertFact(ctx, fact)
	require.NoError(t, err)

	fact.Incidence = nd("0.2500")
	outcome, err := store.UpsertFact(ctx, fact)
	require.NoError(t, err)
	assert.Equal(t, warehouse.OutcomeUnchanged, outcome)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_ErrorRollsBackAllWrites(t *testing.T) {
	// GIVEN: A transaction writing a region, a category and a fact
	// WHEN: The callback returns an error afterwards
	// THEN: None of the writes survive

	store := newTestStore(t)
	ctx := context.Background()

	sentinel := assert.AnError
	err := store.WithTx(ctx, func(b warehouse.Batch) error {
		regionID, err := b.UpsertRegion(ctx, series.RegionGBA)
		if err != nil {
			return err
		}
		categoryID, err := b.UpsertCategory(ctx, series.CategoryDivision, "Salud", nil)
		if err != nil {
			return err
		}
		_, err = b.UpsertFact(ctx, warehouse.Fact{
			Month: mustMonth(t, "2024-01"), RegionID: regionID, CategoryID: categoryID,
			Incidence: nd("0.25"),
		})
		if err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	regions, err := store.ListRegions(ctx)
	require.NoError(t, err)
	assert.Empty(t, regions)

	_, ok, err := store.MaxPeriod(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// READ SURFACE
// =============================================================================

func TestStore_MaxPeriod_TracksLatestLoadedMonth(t *testing.T) {
	// GIVEN: Facts in January and March
	// WHEN: Reading the max period
	// THEN: March; the empty store reports not-ok

	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.MaxPeriod(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	regionID, err := store.UpsertRegion(ctx, series.RegionGBA)
	require.NoError(t, err)
	categoryID, err := store.UpsertCategory(ctx, series.CategoryDivision, "Salud", nil)
	require.NoError(t, err)

	for _, m := range []string{"2024-01", "2024-03"} {
		_, err = store.UpsertFact(ctx, warehouse.Fact{
			Month: mustMonth(t, m), RegionID: regionID, CategoryID: categoryID,
			Incidence: nd("0.25"),
		})
		require.NoError(t, err)
	}

	max, ok, err := store.MaxPeriod(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-03", max.String())
}

func TestStore_QueryObservations_JoinsDimensionsAndFilters(t *testing.T) {
	// GIVEN: Records applied through the writer across regions and months
	// WHEN: Querying with filters
	// THEN: Rows come back joined with region, category and nature

	store := newTestStore(t)
	ctx := context.Background()
	w := warehouse.NewWriter(store, nil)

	rec := func(month, region, classification, incidence string) series.Record {
		return series.Record{
			Key: series.Key{
				Month:          mustMonth(t, month),
				Region:         region,
				Category:       series.CategoryDivision,
				Classification: classification,
			},
			Incidence: nd(incidence),
		}
	}

	_, err := w.Apply(ctx, []series.Record{
		rec("2024-01", series.RegionGBA, "Salud", "0.25"),
		rec("2024-02", series.RegionGBA, "Salud", "0.28"),
		rec("2024-02", series.RegionCuyo, "Transporte", "0.31"),
	})
	require.NoError(t, err)

	all, err := store.QueryObservations(ctx, warehouse.ObservationQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-01", all[0].Month.String())
	require.NotNil(t, all[0].Nature)
	assert.Equal(t, string(series.NatureMixed), *all[0].Nature)

	gba, err := store.QueryObservations(ctx, warehouse.ObservationQuery{Region: series.RegionGBA})
	require.NoError(t, err)
	assert.Len(t, gba, 2)

	february, err := store.QueryObservations(ctx, warehouse.ObservationQuery{
		From: mustMonth(t, "2024-02"),
		To:   mustMonth(t, "2024-02"),
	})
	require.NoError(t, err)
	assert.Len(t, february, 2)

	limited, err := store.QueryObservations(ctx, warehouse.ObservationQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// =============================================================================
// RUNS
// =============================================================================

func TestStore_Runs_SaveOverwriteGetList(t *testing.T) {
	// GIVEN: A run saved as started, then saved again as finished
	// WHEN: Fetching and listing
	// THEN: The final state round-trips; listing is latest first

	store := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	run := warehouse.Run{
		ID:        "run-20240315120000",
		Status:    warehouse.RunFailed,
		Error:     "fetch divisions-incidence: connection refused",
		StartedAt: started,
	}
	require.NoError(t, store.SaveRun(ctx, run))

	finished := started.Add(40 * time.Second)
	run.Status = warehouse.RunSucceeded
	run.Error = ""
	run.From = mustMonth(t, "2024-01")
	run.To = mustMonth(t, "2024-03")
	run.Inserted = 120
	run.Warnings = 2
	run.FinishedAt = &finished
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, warehouse.RunSucceeded, got.Status)
	assert.Equal(t, 120, got.Inserted)
	assert.Equal(t, "2024-01", got.From.String())
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))

	later := run
	later.ID = "run-20240415120000"
	later.StartedAt = started.AddDate(0, 1, 0)
	require.NoError(t, store.SaveRun(ctx, later))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, later.ID, runs[0].ID)

	_, err = store.GetRun(ctx, "run-missing")
	assert.ErrorIs(t, err, warehouse.ErrRunNotFound)
}
