/*
Wide-to-long reshaping.

PURPOSE:
  A source table arrives wide: one row per period, one column per series.
  Reshape walks every (row, parseable column) cell and emits one
  Observation per non-empty cell, tagged with the metric kind and source
  priority the caller assigns to the whole table.

CONTRACT:
  - The first header column is the period column.
  - A malformed period fails the whole table; a table whose dates cannot
    be trusted must not be partially committed.
  - Columns that do not parse against the axis are skipped and reported,
    never guessed at.
  - Empty cells are dropped, not emitted as nulls; absence is how "not
    applicable" travels downstream.
*/
package series

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Table is a raw wide table as handed over by the retrieval layer.
// Header holds the column names, Rows the data cells in header order.
type Table struct {
	Source string
	Header []string
	Rows   [][]string
}

// ReshapeResult carries the emitted observations plus the per-cell and
// per-column anomalies the caller surfaces in the run summary.
type ReshapeResult struct {
	Observations []Observation

	// SkippedColumns lists header names that did not parse against the
	// axis. These are data-quality warnings.
	SkippedColumns []string

	// ExcludedColumns lists header names that parsed but do not apply
	// to the table's metric kind. Expected on every run, not a warning.
	ExcludedColumns []string

	// DroppedCells counts empty cells, BadCells cells whose value did
	// not parse as a decimal.
	DroppedCells int
	BadCells     int
}

// Reshape converts a wide table into canonical observations. Every
// observation carries the given metric kind and source priority.
//
// Incidence decomposes a total change into per-category contributions,
// so the headline aggregate itself never receives an incidence value;
// headline columns on an incidence table are skipped.
func Reshape(t Table, axis Axis, kind MetricKind, priority int) (*ReshapeResult, error) {
	if len(t.Header) < 2 || len(t.Rows) == 0 {
		return nil, errors.Wrapf(ErrEmptyTable, "source %s", t.Source)
	}

	months := make([]Month, len(t.Rows))
	for i, row := range t.Rows {
		if len(row) == 0 {
			return nil, &PeriodError{Raw: "", Row: i + 2}
		}
		m, err := ParseMonth(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, &PeriodError{Raw: row[0], Row: i + 2}
		}
		months[i] = m
	}

	res := &ReshapeResult{}
	for ci := 1; ci < len(t.Header); ci++ {
		name := t.Header[ci]
		meta, ok := ParseColumn(name, axis)
		if !ok {
			res.SkippedColumns = append(res.SkippedColumns, name)
			continue
		}
		if kind == MetricIncidence && meta.Category == CategoryHeadline {
			res.ExcludedColumns = append(res.ExcludedColumns, name)
			continue
		}

		for ri, row := range t.Rows {
			if ci >= len(row) {
				res.DroppedCells++
				continue
			}
			cell := strings.TrimSpace(row[ci])
			if cell == "" {
				res.DroppedCells++
				continue
			}
			v, err := decimal.NewFromString(cell)
			if err != nil {
				res.BadCells++
				continue
			}
			res.Observations = append(res.Observations, Observation{
				Month:          months[ri],
				Region:         meta.Region,
				Category:       meta.Category,
				Classification: meta.Classification,
				Kind:           kind,
				Value:          v,
				Priority:       priority,
				Source:         t.Source,
			})
		}
	}
	return res, nil
}

// FilterFrom drops observations strictly before the given month. A zero
// month keeps everything.
func FilterFrom(obs []Observation, from Month) []Observation {
	if from.IsZero() {
		return obs
	}
	out := obs[:0:0]
	for _, o := range obs {
		if o.Month.AfterOrEqual(from) {
			out = append(out, o)
		}
	}
	return out
}
