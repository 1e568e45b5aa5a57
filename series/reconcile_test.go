package series_test

import (
	"testing"
	"time"

	"github.com/austral/ipc-engine/series"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func coreObs(kind series.MetricKind, value string, priority int, source string) series.Observation {
	return series.Observation{
		Month:          month(2024, time.January),
		Region:         series.RegionGBA,
		Category:       series.CategoryAnalysis,
		Classification: "Núcleo",
		Kind:           kind,
		Value:          series.MustParseDecimal(value),
		Priority:       priority,
		Source:         source,
	}
}

// =============================================================================
// SLOT MERGING
// =============================================================================

func TestReconcile_IndependentSlots_MergeAcrossSources(t *testing.T) {
	// GIVEN: The same key receiving incidence from one source and
	//        variation from another
	// WHEN: Reconciling
	// THEN: One record carrying both slots; neither source "wins" the key

	records, stats := series.Reconcile([]series.Observation{
		coreObs(series.MetricIncidence, "0.42", 2, "headline-incidence"),
		coreObs(series.MetricMoMVariation, "3.96", 1, "headline-index"),
	}, series.TieFirstWins)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if !r.Incidence.Valid || !r.Incidence.Decimal.Equal(series.MustParseDecimal("0.42")) {
		t.Errorf("expected incidence 0.42, got %+v", r.Incidence)
	}
	if !r.MoMVariation.Valid || !r.MoMVariation.Decimal.Equal(series.MustParseDecimal("3.96")) {
		t.Errorf("expected variation 3.96, got %+v", r.MoMVariation)
	}
	if stats.Overlaps != 0 {
		t.Errorf("expected no overlaps, got %d", stats.Overlaps)
	}
}

func TestReconcile_SingleSourceKey_NullSlotIsLegal(t *testing.T) {
	// GIVEN: A key contributed by only one source, incidence only
	// WHEN: Reconciling
	// THEN: The record keeps a null variation slot; not a failure

	records, _ := series.Reconcile([]series.Observation{
		coreObs(series.MetricIncidence, "0.42", 1, "headline-incidence"),
	}, series.TieFirstWins)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].MoMVariation.Valid {
		t.Error("expected a null variation slot")
	}
}

// =============================================================================
// PRIORITY
// =============================================================================

func TestReconcile_HigherPriorityWins_EitherArrivalOrder(t *testing.T) {
	// GIVEN: The same incidence slot from priorities 1 and 2
	// WHEN: Reconciling in both arrival orders
	// THEN: Priority 2's value wins and the overlap is counted, not errored

	low := coreObs(series.MetricIncidence, "0.40", 1, "divisions-incidence")
	high := coreObs(series.MetricIncidence, "0.42", 2, "headline-incidence")

	for name, input := range map[string][]series.Observation{
		"low first":  {low, high},
		"high first": {high, low},
	} {
		records, stats := series.Reconcile(input, series.TieFirstWins)
		if len(records) != 1 {
			t.Fatalf("%s: expected 1 record, got %d", name, len(records))
		}
		if !records[0].Incidence.Decimal.Equal(series.MustParseDecimal("0.42")) {
			t.Errorf("%s: expected the priority-2 value, got %v", name, records[0].Incidence.Decimal)
		}
		if stats.Overlaps != 1 {
			t.Errorf("%s: expected 1 overlap, got %d", name, stats.Overlaps)
		}
		if stats.TieConflicts != 0 {
			t.Errorf("%s: expected no tie conflicts, got %d", name, stats.TieConflicts)
		}
	}
}

// =============================================================================
// TIES
// =============================================================================

func TestReconcile_EqualPriorityAgreement_NotAConflict(t *testing.T) {
	// GIVEN: Two sources offering the same value at the same priority
	// WHEN: Reconciling
	// THEN: An overlap, but no tie conflict

	records, stats := series.Reconcile([]series.Observation{
		coreObs(series.MetricIncidence, "0.42", 1, "a"),
		coreObs(series.MetricIncidence, "0.42", 1, "b"),
	}, series.TieFirstWins)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if stats.Overlaps != 1 || stats.TieConflicts != 0 {
		t.Errorf("expected 1 overlap and 0 conflicts, got %d/%d", stats.Overlaps, stats.TieConflicts)
	}
}

func TestReconcile_TieFirstWins_KeepsEarlierContribution(t *testing.T) {
	// GIVEN: Two different values at the same priority
	// WHEN: Reconciling under first_wins
	// THEN: The earlier contribution keeps the slot; the conflict is counted

	records, stats := series.Reconcile([]series.Observation{
		coreObs(series.MetricIncidence, "0.40", 1, "a"),
		coreObs(series.MetricIncidence, "0.42", 1, "b"),
	}, series.TieFirstWins)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if !records[0].Incidence.Decimal.Equal(series.MustParseDecimal("0.40")) {
		t.Errorf("expected the earlier value 0.40, got %v", records[0].Incidence.Decimal)
	}
	if stats.TieConflicts != 1 {
		t.Errorf("expected 1 tie conflict, got %d", stats.TieConflicts)
	}
}

func TestReconcile_TieReject_EmptiesSlot(t *testing.T) {
	// GIVEN: Two different values at the same priority
	// WHEN: Reconciling under reject
	// THEN: The slot is emptied; a record with no filled slot is not emitted

	records, stats := series.Reconcile([]series.Observation{
		coreObs(series.MetricIncidence, "0.40", 1, "a"),
		coreObs(series.MetricIncidence, "0.42", 1, "b"),
	}, series.TieReject)

	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if stats.RejectedSlots != 1 {
		t.Errorf("expected 1 rejected slot, got %d", stats.RejectedSlots)
	}
	if stats.Keys != 0 {
		t.Errorf("expected 0 keys, got %d", stats.Keys)
	}
}

func TestReconcile_TieReject_StrictlyHigherPrioritySupersedes(t *testing.T) {
	// GIVEN: A rejected tie at priority 1, then a priority-2 contribution
	// WHEN: Reconciling under reject
	// THEN: The higher priority fills the emptied slot

	records, _ := series.Reconcile([]series.Observation{
		coreObs(series.MetricIncidence, "0.40", 1, "a"),
		coreObs(series.MetricIncidence, "0.42", 1, "b"),
		coreObs(series.MetricIncidence, "0.45", 2, "c"),
	}, series.TieReject)

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if !records[0].Incidence.Decimal.Equal(series.MustParseDecimal("0.45")) {
		t.Errorf("expected the priority-2 value 0.45, got %v", records[0].Incidence.Decimal)
	}
}

func TestReconcile_TieReject_EqualPriorityCannotRefill(t *testing.T) {
	// GIVEN: A rejected tie at priority 1, then a third priority-1 value
	// WHEN: Reconciling under reject
	// THEN: The slot stays empty; only a strictly higher priority refills it

	records, _ := series.Reconcile([]series.Observation{
		coreObs(series.MetricIncidence, "0.40", 1, "a"),
		coreObs(series.MetricIncidence, "0.42", 1, "b"),
		coreObs(series.MetricIncidence, "0.40", 1, "c"),
	}, series.TieReject)

	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

// =============================================================================
// KIND HANDLING AND ORDER
// =============================================================================

func TestReconcile_RawIndexLevels_NeverSurvive(t *testing.T) {
	// GIVEN: An index-level observation that escaped variation derivation
	// WHEN: Reconciling
	// THEN: It is counted as an ignored kind and emits nothing

	records, stats := series.Reconcile([]series.Observation{
		coreObs(series.MetricIndexLevel, "7864.13", 1, "headline-index"),
	}, series.TieFirstWins)

	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if stats.IgnoredKinds != 1 {
		t.Errorf("expected 1 ignored kind, got %d", stats.IgnoredKinds)
	}
}

func TestReconcile_Output_SortedByKey(t *testing.T) {
	// GIVEN: Observations arriving in scrambled key order
	// WHEN: Reconciling
	// THEN: Records come out ordered by month, region, category, classification

	mk := func(m series.Month, region, classification string) series.Observation {
		return series.Observation{
			Month:          m,
			Region:         region,
			Category:       series.CategoryDivision,
			Classification: classification,
			Kind:           series.MetricIncidence,
			Value:          series.MustParseDecimal("0.1"),
			Priority:       1,
			Source:         "divisions-incidence",
		}
	}

	records, stats := series.Reconcile([]series.Observation{
		mk(month(2024, time.February), series.RegionGBA, "Salud"),
		mk(month(2024, time.January), series.RegionPampeana, "Salud"),
		mk(month(2024, time.January), series.RegionGBA, "Transporte"),
		mk(month(2024, time.January), series.RegionGBA, "Salud"),
	}, series.TieFirstWins)

	if stats.Keys != 4 {
		t.Fatalf("expected 4 keys, got %d", stats.Keys)
	}
	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1].Key, records[i].Key
		if cur.Month.Before(prev.Month) {
			t.Fatalf("records out of month order at %d", i)
		}
		if cur.Month.Equal(prev.Month) && cur.Region < prev.Region {
			t.Fatalf("records out of region order at %d", i)
		}
	}
	if !records[0].Key.Month.Equal(month(2024, time.January)) {
		t.Error("expected January records first")
	}
}
