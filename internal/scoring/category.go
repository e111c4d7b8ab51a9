// internal/scoring/category.go
package scoring

// Category identifies one of the 13 score sheet entries.
type Category string

const (
	CategoryOnes          Category = "ones"
	CategoryTwos          Category = "twos"
	CategoryThrees        Category = "threes"
	CategoryFours         Category = "fours"
	CategoryFives         Category = "fives"
	CategorySixes         Category = "sixes"
	CategoryThreeOfAKind  Category = "three_of_a_kind"
	CategoryFourOfAKind   Category = "four_of_a_kind"
	CategoryFullHouse     Category = "full_house"
	CategorySmallStraight Category = "small_straight"
	CategoryLargeStraight Category = "large_straight"
	CategoryFiveOfAKind   Category = "five_of_a_kind"
	CategoryChance        Category = "chance"
)

// Categories is the canonical enumeration order. Variant fill order and
// tie-breaking during forced moves both follow this order, so it must not
// be reordered.
var Categories = []Category{
	CategoryOnes,
	CategoryTwos,
	CategoryThrees,
	CategoryFours,
	CategoryFives,
	CategorySixes,
	CategoryThreeOfAKind,
	CategoryFourOfAKind,
	CategoryFullHouse,
	CategorySmallStraight,
	CategoryLargeStraight,
	CategoryFiveOfAKind,
	CategoryChance,
}

// upperCategories are the number categories counted toward the 35-point bonus.
var upperCategories = []Category{
	CategoryOnes, CategoryTwos, CategoryThrees,
	CategoryFours, CategoryFives, CategorySixes,
}

// Valid reports whether c is one of the 13 known categories.
func (c Category) Valid() bool {
	for _, cat := range Categories {
		if cat == c {
			return true
		}
	}
	return false
}
