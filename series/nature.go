package series

// =============================================================================
// NATURE DERIVATION - Economic nature per division
// =============================================================================

// divisionNature maps each of the twelve divisions to its economic
// nature. Divisions with a dominant component are tagged as that
// component; the rest are mixed.
var divisionNature = map[string]Nature{
	"Alimentos y bebidas":          NatureGoods,
	"Bebidas alcohólicas y tabaco": NatureGoods,
	"Prendas de vestir y calzado":  NatureGoods,
	"Vivienda y servicios básicos": NatureMixed,
	"Equipamiento del hogar":       NatureMixed,
	"Salud":                        NatureMixed,
	"Transporte":                   NatureMixed,
	"Comunicación":                 NatureServices,
	"Recreación y cultura":         NatureMixed,
	"Educación":                    NatureServices,
	"Restaurantes y hoteles":       NatureServices,
	"Bienes y servicios varios":    NatureMixed,
}

// DeriveNature returns the nature tag for a (category, classification)
// pair. Division classifications must be in the nature table; an unknown
// one is an error so the table and the column grammar cannot drift apart
// silently. Every other axis is an aggregate and carries NatureNone.
func DeriveNature(category, classification string) (Nature, error) {
	if category != CategoryDivision {
		return NatureNone, nil
	}
	n, ok := divisionNature[classification]
	if !ok {
		return NatureNone, &ClassificationError{
			Category:       category,
			Classification: classification,
		}
	}
	return n, nil
}
