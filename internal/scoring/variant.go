// internal/scoring/variant.go
package scoring

// Variant controls which empty category a player may score next.
type Variant string

const (
	// VariantClassic allows any empty category.
	VariantClassic Variant = "classic"
	// VariantAscending forces the fixed category order top to bottom.
	VariantAscending Variant = "ascending"
	// VariantDescending forces the fixed category order bottom to top.
	VariantDescending Variant = "descending"
)

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	switch v {
	case VariantClassic, VariantAscending, VariantDescending:
		return true
	}
	return false
}

// fillOrder returns the category order a variant walks through, or nil for
// variants without a forced order.
func fillOrder(v Variant) []Category {
	switch v {
	case VariantAscending:
		return Categories
	case VariantDescending:
		reversed := make([]Category, len(Categories))
		for i, cat := range Categories {
			reversed[len(Categories)-1-i] = cat
		}
		return reversed
	}
	return nil
}

// NextCategory returns the single category the variant designates as next
// for the given sheet. For classic (or a complete sheet) it returns false.
func NextCategory(v Variant, sheet Sheet) (Category, bool) {
	order := fillOrder(v)
	if order == nil {
		return "", false
	}
	for _, cat := range order {
		if _, scored := sheet[cat]; !scored {
			return cat, true
		}
	}
	return "", false
}

// Allowed reports whether the player may score cat now: the category must be
// empty, and for ordered variants it must be the designated next category.
func Allowed(v Variant, sheet Sheet, cat Category) bool {
	if !cat.Valid() {
		return false
	}
	if _, scored := sheet[cat]; scored {
		return false
	}
	next, forced := NextCategory(v, sheet)
	if forced && cat != next {
		return false
	}
	return true
}

// Eligible lists the categories the player may legally score now, in
// canonical enumeration order. For ordered variants this is at most one
// entry. Used by the forced-move path on turn timeout.
func Eligible(v Variant, sheet Sheet) []Category {
	var out []Category
	for _, cat := range Categories {
		if Allowed(v, sheet, cat) {
			out = append(out, cat)
		}
	}
	return out
}
