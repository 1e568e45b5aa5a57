/*
Package series provides the transform-and-reconcile core for the IPC
(consumer price index) pipeline.

PURPOSE:
  This package contains the pure data transformations: decoding wide-table
  column names into dimensional metadata, reshaping wide tables into
  canonical observations, deriving the month-over-month variation metric,
  tagging division categories with an economic nature, and reconciling
  overlapping sources into one record per key. Nothing here touches the
  network or a database.

KEY CONCEPTS IN THIS FILE (types.go):
  - Month: the period unit (first-of-month), defined in month.go
  - Observation: one normalized (period, region, category, metric) value
  - Key: the composite identity (period, region, category, classification)
  - Record: the reconciled form carrying both metric slots
  - Nature: the derived goods/services tag for division categories

DESIGN PRINCIPLES:
  1. Precision: all metric values are decimal.Decimal, never float64
  2. Absence over null: a value that does not apply is not emitted at all
  3. Determinism: every function returns its output in a stable order

SEE ALSO:
  - column.go: column-name grammar
  - reshape.go: wide-to-long conversion
  - variation.go: month-over-month metric
  - reconcile.go: priority merge across sources
*/
package series

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// METRIC KINDS
// =============================================================================

// MetricKind tags what an observation's value measures.
type MetricKind string

const (
	// MetricIncidence is a category's percentage-point contribution to its
	// region's total index change in a period.
	MetricIncidence MetricKind = "incidence"

	// MetricMoMVariation is the percentage change of an index value versus
	// the immediately preceding period.
	MetricMoMVariation MetricKind = "mom_variation"

	// MetricIndexLevel is the raw index level as published. It only exists
	// between reshaping and variation derivation and never survives
	// reconciliation.
	MetricIndexLevel MetricKind = "index_level"
)

// =============================================================================
// REGIONS - Fixed closed set: one national aggregate + six regions
// =============================================================================

const (
	RegionNacional  = "Nacional"
	RegionGBA       = "GBA"
	RegionPampeana  = "Pampeana"
	RegionNOA       = "NOA"
	RegionNEA       = "NEA"
	RegionCuyo      = "Cuyo"
	RegionPatagonia = "Patagonia"
)

// Regions lists every region the source grammar can produce.
var Regions = []string{
	RegionNacional, RegionGBA, RegionPampeana,
	RegionNOA, RegionNEA, RegionCuyo, RegionPatagonia,
}

// =============================================================================
// CATEGORY AXES - category_name distinguishes the taxonomy axis
// =============================================================================

const (
	CategoryHeadline      = "Nivel General"
	CategoryAnalysis      = "Análisis"
	CategoryDivision      = "División"
	CategoryGoodsServices = "Naturaleza"

	ClassificationTotal = "Total"
)

// =============================================================================
// NATURE - Derived tag for division-level categories
// =============================================================================

// Nature classifies a division category as goods, services or mixed.
// Aggregate axes carry NatureNone (stored as NULL).
type Nature string

const (
	NatureGoods    Nature = "Bienes"
	NatureServices Nature = "Servicios"
	NatureMixed    Nature = "Mixto"
	NatureNone     Nature = ""
)

// =============================================================================
// OBSERVATION - Canonical long-format value, pre-reconciliation
// =============================================================================

// Observation is one normalized (period, series, metric) value. Many
// observations may share a Key, differing only in Kind or Priority; the
// reconciler collapses them.
type Observation struct {
	Month          Month
	Region         string
	Category       string
	Classification string
	Kind           MetricKind
	Value          decimal.Decimal

	// Priority ranks the source that produced this observation; the
	// highest priority wins a contested metric slot.
	Priority int

	// Source names the producing endpoint, for diagnostics only.
	Source string
}

func (o Observation) Key() Key {
	return Key{
		Month:          o.Month,
		Region:         o.Region,
		Category:       o.Category,
		Classification: o.Classification,
	}
}

// =============================================================================
// KEY - Composite identity of a fact
// =============================================================================

// Key identifies one fact: exactly one Record per Key survives
// reconciliation, and at most one row per Key exists in the store.
type Key struct {
	Month          Month
	Region         string
	Category       string
	Classification string
}

func (k Key) String() string {
	return k.Month.String() + "/" + k.Region + "/" + k.Category + "/" + k.Classification
}

func keyLess(a, b Key) bool {
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
}

// =============================================================================
// RECORD - Reconciled fact carrying both metric slots
// =============================================================================

// Record is the reconciled form of everything contributed for one Key.
// The two slots are independent: either may be null when no source
// supplied it.
type Record struct {
	Key          Key
	Incidence    decimal.NullDecimal
	MoMVariation decimal.NullDecimal
}

// MustParseDecimal returns the decimal for s, or zero if s is malformed.
// Intended for literals in tests and fixtures.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
