package series

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONTH-OVER-MONTH VARIATION - Derived from index levels
// =============================================================================

var hundred = decimal.NewFromInt(100)

// MonthOverMonth derives the percentage change of each index series
// versus its immediately preceding month: (v[t]/v[t-1] - 1) * 100.
//
// It must be fed the full published history of each series, not just the
// window being loaded: the reference month for the first in-window point
// usually lies outside the window, and truncating the input would either
// drop that point or compute it against the wrong base. Callers filter
// the output to the load window afterwards.
//
// A month whose predecessor is missing or zero yields no observation;
// an undefined change is represented by absence.
func MonthOverMonth(levels []Observation) []Observation {
	type ident struct {
		Region         string
		Category       string
		Classification string
	}
	groups := make(map[ident]map[Month]Observation)
	for _, o := range levels {
		id := ident{o.Region, o.Category, o.Classification}
		g, ok := groups[id]
		if !ok {
			g = make(map[Month]Observation)
			groups[id] = g
		}
		if _, dup := g[o.Month]; !dup {
			g[o.Month] = o
		}
	}

	var out []Observation
	for _, g := range groups {
		for m, cur := range g {
			prev, ok := g[m.Prev()]
			if !ok || prev.Value.IsZero() {
				continue
			}
			out = append(out, Observation{
				Month:          m,
				Region:         cur.Region,
				Category:       cur.Category,
				Classification: cur.Classification,
				Kind:           MetricMoMVariation,
				Value:          cur.Value.Div(prev.Value).Sub(decimal.NewFromInt(1)).Mul(hundred),
				Priority:       cur.Priority,
				Source:         cur.Source,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return keyLess(out[i].Key(), out[j].Key())
	})
	return out
}
