package warehouse

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austral/ipc-engine/series"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type dimKey struct {
	Name           string
	Classification string
}

type factKey struct {
	Month      series.Month
	RegionID   int64
	CategoryID int64
}

type memFact struct {
	Incidence    decimal.NullDecimal
	MoMVariation decimal.NullDecimal
	UpdatedAt    time.Time
}

type Memory struct {
	mu           sync.RWMutex
	regionIDs    map[string]int64
	regions      map[int64]string
	categoryIDs  map[dimKey]int64
	categories   map[int64]Category
	facts        map[factKey]memFact
	runs         map[string]Run
	runOrder     []string
	nextRegion   int64
	nextCategory int64
}

func NewMemory() *Memory {
	return &Memory{
		regionIDs:   make(map[string]int64),
		regions:     make(map[int64]string),
		categoryIDs: make(map[dimKey]int64),
		categories:  make(map[int64]Category),
		facts:       make(map[factKey]memFact),
		runs:        make(map[string]Run),
	}
}

// =============================================================================
// BATCH SURFACE
// =============================================================================

func (m *Memory) UpsertRegion(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertRegionLocked(name), nil
}

func (m *Memory) UpsertCategory(_ context.Context, name, classification string, nature *string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertCategoryLocked(name, classification, nature), nil
}

func (m *Memory) UpsertFact(_ context.Context, f Fact) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertFactLocked(f), nil
}

func (m *Memory) upsertRegionLocked(name string) int64 {
	if id, ok := m.regionIDs[name]; ok {
		return id
	}
	m.nextRegion++
	m.regionIDs[name] = m.nextRegion
	m.regions[m.nextRegion] = name
	return m.nextRegion
}

func (m *Memory) upsertCategoryLocked(name, classification string, nature *string) int64 {
	k := dimKey{name, classification}
	if id, ok := m.categoryIDs[k]; ok {
		if nature != nil {
			c := m.categories[id]
			c.Nature = nature
			m.categories[id] = c
		}
		return id
	}
	m.nextCategory++
	m.categoryIDs[k] = m.nextCategory
	m.categories[m.nextCategory] = Category{
		ID:             m.nextCategory,
		Name:           name,
		Classification: classification,
		Nature:         nature,
	}
	return m.nextCategory
}

func (m *Memory) upsertFactLocked(f Fact) Outcome {
	k := factKey{f.Month, f.RegionID, f.CategoryID}
	old, exists := m.facts[k]
	if !exists {
		m.facts[k] = memFact{
			Incidence:    f.Incidence,
			MoMVariation: f.MoMVariation,
			UpdatedAt:    time.Now().UTC(),
		}
		return OutcomeInserted
	}

	merged := memFact{
		Incidence:    coalesceSlot(f.Incidence, old.Incidence),
		MoMVariation: coalesceSlot(f.MoMVariation, old.MoMVariation),
		UpdatedAt:    old.UpdatedAt,
	}
	if slotsEqual(merged.Incidence, old.Incidence) && slotsEqual(merged.MoMVariation, old.MoMVariation) {
		return OutcomeUnchanged
	}
	merged.UpdatedAt = time.Now().UTC()
	m.facts[k] = merged
	return OutcomeUpdated
}

func coalesceSlot(incoming, stored decimal.NullDecimal) decimal.NullDecimal {
	if incoming.Valid {
		return incoming
	}
	return stored
}

func slotsEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	if !a.Valid {
		return true
	}
	return a.Decimal.Equal(b.Decimal)
}

// =============================================================================
// TRANSACTIONS - Snapshot and restore on error
// =============================================================================

func (m *Memory) WithTx(_ context.Context, fn func(Batch) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotLocked()
	if err := fn(&memoryTx{m}); err != nil {
		m.restoreLocked(snap)
		return err
	}
	return nil
}

type memoryTx struct {
	m *Memory
}

func (t *memoryTx) UpsertRegion(_ context.Context, name string) (int64, error) {
	return t.m.upsertRegionLocked(name), nil
}

func (t *memoryTx) UpsertCategory(_ context.Context, name, classification string, nature *string) (int64, error) {
	return t.m.upsertCategoryLocked(name, classification, nature), nil
}

func (t *memoryTx) UpsertFact(_ context.Context, f Fact) (Outcome, error) {
	return t.m.upsertFactLocked(f), nil
}

type memorySnapshot struct {
	regionIDs    map[string]int64
	regions      map[int64]string
	categoryIDs  map[dimKey]int64
	categories   map[int64]Category
	facts        map[factKey]memFact
	nextRegion   int64
	nextCategory int64
}

func (m *Memory) snapshotLocked() memorySnapshot {
	s := memorySnapshot{
		regionIDs:    make(map[string]int64, len(m.regionIDs)),
		regions:      make(map[int64]string, len(m.regions)),
		categoryIDs:  make(map[dimKey]int64, len(m.categoryIDs)),
		categories:   make(map[int64]Category, len(m.categories)),
		facts:        make(map[factKey]memFact, len(m.facts)),
		nextRegion:   m.nextRegion,
		nextCategory: m.nextCategory,
	}
	for k, v := range m.regionIDs {
		s.regionIDs[k] = v
	}
	for k, v := range m.regions {
		s.regions[k] = v
	}
	for k, v := range m.categoryIDs {
		s.categoryIDs[k] = v
	}
	for k, v := range m.categories {
		s.categories[k] = v
	}
	for k, v := range m.facts {
		s.facts[k] = v
	}
	return s
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.regionIDs = s.regionIDs
	m.regions = s.regions
	m.categoryIDs = s.categoryIDs
	m.categories = s.categories
	m.facts = s.facts
	m.nextRegion = s.nextRegion
	m.nextCategory = s.nextCategory
}

// =============================================================================
// READ SURFACE
// =============================================================================

func (m *Memory) MaxPeriod(_ context.Context) (series.Month, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var max series.Month
	for k := range m.facts {
		if max.IsZero() || k.Month.After(max) {
			max = k.Month
		}
	}
	return max, len(m.facts) > 0, nil
}

func (m *Memory) ListRegions(_ context.Context) ([]Region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Region, 0, len(m.regions))
	for id, name := range m.regions {
		out = append(out, Region{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListCategories(_ context.Context) ([]Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) QueryObservations(_ context.Context, q ObservationQuery) ([]ObservationRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ObservationRow
	for k, f := range m.facts {
		region := m.regions[k.RegionID]
		cat := m.categories[k.CategoryID]

		if q.Region != "" && region != q.Region {
			continue
		}
		if q.Category != "" && cat.Name != q.Category {
			continue
		}
		if q.Classification != "" && cat.Classification != q.Classification {
			continue
		}
		if !q.From.IsZero() && k.Month.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && k.Month.After(q.To) {
			continue
		}

		out = append(out, ObservationRow{
			Month:          k.Month,
			Region:         region,
			Category:       cat.Name,
			Classification: cat.Classification,
			Nature:         cat.Nature,
			Incidence:      f.Incidence,
			MoMVariation:   f.MoMVariation,
			UpdatedAt:      f.UpdatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Month.Equal(b.Month) {
			return a.Month.Before(b.Month)
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Classification < b.Classification
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// =============================================================================
// RUNS
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, r Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[r.ID]; !ok {
		m.runOrder = append(m.runOrder, r.ID)
	}
	m.runs[r.ID] = r
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return &r, nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Run, 0, len(m.runOrder))
	for i := len(m.runOrder) - 1; i >= 0; i-- {
		out = append(out, m.runs[m.runOrder[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
