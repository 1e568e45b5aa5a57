/*
Priority reconciliation across overlapping sources.

PURPOSE:
  Several endpoints publish overlapping slices of the same index: a key
  may receive incidence from one table and variation from another, or the
  same slot from two tables at different priorities. Reconcile collapses
  all contributions into exactly one Record per key, merging the two
  metric slots independently.

RULES (per key, per slot):
  - The highest-priority contribution wins the slot.
  - A lower-priority contribution for a filled slot is ignored; either
    way the overlap is counted, never treated as an error.
  - Equal priority and equal value is agreement.
  - Equal priority and different values is a tie conflict, resolved by
    the configured policy: first_wins keeps the earlier contribution,
    reject empties the slot until a strictly higher priority fills it.

SEE ALSO:
  - variation.go: produces the mom_variation contributions
  - warehouse: consumes the reconciled records
*/
package series

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIE POLICY
// =============================================================================

// TiePolicy decides a slot contested at equal priority with different
// values. The zero value behaves as TieFirstWins.
type TiePolicy string

const (
	TieFirstWins TiePolicy = "first_wins"
	TieReject    TiePolicy = "reject"
)

func (p TiePolicy) Valid() bool {
	return p == "" || p == TieFirstWins || p == TieReject
}

// ReconcileStats counts what happened during a merge. Overlaps and tie
// conflicts are expected operating conditions surfaced for visibility.
type ReconcileStats struct {
	// Keys is the number of records emitted.
	Keys int

	// Overlaps counts contributions that arrived for an already filled
	// slot, whatever the outcome.
	Overlaps int

	// TieConflicts counts equal-priority contributions with different
	// values. RejectedSlots counts the slots emptied by TieReject.
	TieConflicts  int
	RejectedSlots int

	// IgnoredKinds counts observations whose metric kind has no slot,
	// such as raw index levels that escaped variation derivation.
	IgnoredKinds int
}

// =============================================================================
// SLOT STATE
// =============================================================================

type slotState struct {
	value    decimal.Decimal
	priority int
	filled   bool
	rejected bool
}

func (s *slotState) offer(v decimal.Decimal, priority int, policy TiePolicy, stats *ReconcileStats) {
	if !s.filled && !s.rejected {
		s.value, s.priority, s.filled = v, priority, true
		return
	}
	stats.Overlaps++
	switch {
	case priority > s.priority:
		s.value, s.priority = v, priority
		s.filled, s.rejected = true, false
	case priority < s.priority:
		// Filled or rejected at a higher priority; keep.
	case s.rejected:
		// Already emptied by a tie at this priority; keep it empty.
	case s.value.Equal(v):
		// Agreement.
	default:
		stats.TieConflicts++
		if policy == TieReject {
			s.filled = false
			s.rejected = true
			stats.RejectedSlots++
		}
	}
}

func (s slotState) nullDecimal() decimal.NullDecimal {
	if !s.filled {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: s.value, Valid: true}
}

// =============================================================================
// RECONCILE
// =============================================================================

// Reconcile merges observations from every source into one Record per
// key. Observations are processed in input order: under first_wins the
// earlier contribution keeps a contested slot, so callers concatenate
// batches in configured source order. Records left with both slots empty
// are not emitted.
func Reconcile(obs []Observation, policy TiePolicy) ([]Record, ReconcileStats) {
	type recordState struct {
		incidence slotState
		variation slotState
	}

	var stats ReconcileStats
	states := make(map[Key]*recordState)
	for _, o := range obs {
		k := o.Key()
		st, ok := states[k]
		if !ok {
			st = &recordState{}
			states[k] = st
		}
		switch o.Kind {
		case MetricIncidence:
			st.incidence.offer(o.Value, o.Priority, policy, &stats)
		case MetricMoMVariation:
			st.variation.offer(o.Value, o.Priority, policy, &stats)
		default:
			stats.IgnoredKinds++
		}
	}

	keys := make([]Key, 0, len(states))
	for k, st := range states {
		if !st.incidence.filled && !st.variation.filled {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })

	records := make([]Record, 0, len(keys))
	for _, k := range keys {
		st := states[k]
		records = append(records, Record{
			Key:          k,
			Incidence:    st.incidence.nullDecimal(),
			MoMVariation: st.variation.nullDecimal(),
		})
	}
	stats.Keys = len(records)
	return records, stats
}
