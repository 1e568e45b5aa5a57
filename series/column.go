/*
Column-name grammar for the wide INDEC CSV tables.

PURPOSE:
  Published tables encode region and category in the column header, e.g.
  "ipc_gba_alimentos_bebidas_no_alcoholicas". ParseColumn decodes a
  header cell into (region, category, classification) against one of
  three axes. Columns that match no token of the axis are reported as
  unparseable and skipped by the caller.

NORMALIZATION:
  Headers are lowercased and underscores become spaces before matching.
  Accented and unaccented spellings are both listed where the feeds have
  used both over time.

SEE ALSO:
  - reshape.go: drives ParseColumn over every non-date column
*/
package series

import "strings"

// =============================================================================
// AXES
// =============================================================================

// Axis selects which token table a table's columns are parsed against.
type Axis string

const (
	// AxisHeadline covers the general level and the analytical cuts
	// (núcleo, regulados, estacionales).
	AxisHeadline Axis = "headline"

	// AxisDivision covers the twelve COICOP-style divisions.
	AxisDivision Axis = "division"

	// AxisGoodsServices covers the goods/services split.
	AxisGoodsServices Axis = "goods_services"
)

// ColumnMeta is the decoded identity of one wide-table column.
type ColumnMeta struct {
	Region         string
	Category       string
	Classification string
}

// =============================================================================
// REGION TOKENS - first match wins; absence means the national aggregate
// =============================================================================

var regionTokens = []struct {
	token  string
	region string
}{
	{"gba", RegionGBA},
	{"pampeana", RegionPampeana},
	{"noroeste", RegionNOA},
	{"noa", RegionNOA},
	{"noreste", RegionNEA},
	{"nea", RegionNEA},
	{"cuyo", RegionCuyo},
	{"patagonia", RegionPatagonia},
}

// =============================================================================
// CLASSIFICATION TOKENS - per axis, ordered, first match wins
// =============================================================================

var headlineTokens = []struct {
	token          string
	category       string
	classification string
}{
	{"nivel general", CategoryHeadline, ClassificationTotal},
	{"núcleo", CategoryAnalysis, "Núcleo"},
	{"nucleo", CategoryAnalysis, "Núcleo"},
	{"regulado", CategoryAnalysis, "Regulados"},
	{"estacional", CategoryAnalysis, "Estacionales"},
}

var divisionTokens = []struct {
	token          string
	classification string
}{
	{"alimentos bebidas no alcoholica", "Alimentos y bebidas"},
	{"bebidas alcoholica", "Bebidas alcohólicas y tabaco"},
	{"tabaco", "Bebidas alcohólicas y tabaco"},
	{"prenda", "Prendas de vestir y calzado"},
	{"vestir", "Prendas de vestir y calzado"},
	{"calzado", "Prendas de vestir y calzado"},
	{"vivienda", "Vivienda y servicios básicos"},
	{"agua", "Vivienda y servicios básicos"},
	{"electricidad", "Vivienda y servicios básicos"},
	{"combustible", "Vivienda y servicios básicos"},
	{"equipamiento", "Equipamiento del hogar"},
	{"mantenimiento", "Equipamiento del hogar"},
	{"salud", "Salud"},
	{"transporte", "Transporte"},
	{"comunicacion", "Comunicación"},
	{"recreacion", "Recreación y cultura"},
	{"cultura", "Recreación y cultura"},
	{"educacion", "Educación"},
	{"restaurante", "Restaurantes y hoteles"},
	{"hotel", "Restaurantes y hoteles"},
	{"otros", "Bienes y servicios varios"},
	{"bienes servicios", "Bienes y servicios varios"},
}

// =============================================================================
// PARSING
// =============================================================================

// ParseColumn decodes a wide-table column header against the given axis.
// The second return is false when no classification token of the axis
// matches; such columns are skipped and logged, never guessed at.
func ParseColumn(name string, axis Axis) (ColumnMeta, bool) {
	norm := normalizeHeader(name)

	meta := ColumnMeta{Region: parseRegion(norm)}

	switch axis {
	case AxisHeadline:
		for _, t := range headlineTokens {
			if strings.Contains(norm, t.token) {
				meta.Category = t.category
				meta.Classification = t.classification
				return meta, true
			}
		}
	case AxisDivision:
		for _, t := range divisionTokens {
			if strings.Contains(norm, t.token) {
				meta.Category = CategoryDivision
				meta.Classification = t.classification
				return meta, true
			}
		}
	case AxisGoodsServices:
		hasGood := strings.Contains(norm, "bien")
		hasService := strings.Contains(norm, "servicio")
		switch {
		case hasGood && !hasService:
			meta.Category = CategoryGoodsServices
			meta.Classification = string(NatureGoods)
			return meta, true
		case hasService:
			meta.Category = CategoryGoodsServices
			meta.Classification = string(NatureServices)
			return meta, true
		}
	}

	return ColumnMeta{}, false
}

// normalizeHeader lowercases a header and flattens underscores to spaces
// so token matching works on either published naming style.
func normalizeHeader(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}

func parseRegion(norm string) string {
	for _, t := range regionTokens {
		if strings.Contains(norm, t.token) {
			return t.region
		}
	}
	return RegionNacional
}
