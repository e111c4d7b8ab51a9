// internal/scoring/scoring.go
package scoring

import "sort"

// UpperBonus is awarded when the upper section sums to UpperBonusThreshold
// or more.
const (
	UpperBonus          = 35
	UpperBonusThreshold = 63
)

// Sheet maps a category to its recorded score. A category absent from the
// map has not been scored yet; a present category is final and must never
// be overwritten.
type Sheet map[Category]int

// Score computes the point value of the given category for five die values.
// Unknown categories score zero.
func Score(cat Category, dice [5]int) int {
	counts := map[int]int{}
	sum := 0
	for _, v := range dice {
		counts[v]++
		sum += v
	}

	switch cat {
	case CategoryOnes:
		return counts[1] * 1
	case CategoryTwos:
		return counts[2] * 2
	case CategoryThrees:
		return counts[3] * 3
	case CategoryFours:
		return counts[4] * 4
	case CategoryFives:
		return counts[5] * 5
	case CategorySixes:
		return counts[6] * 6
	case CategoryThreeOfAKind:
		if hasOfAKind(counts, 3) {
			return sum
		}
	case CategoryFourOfAKind:
		if hasOfAKind(counts, 4) {
			return sum
		}
	case CategoryFullHouse:
		if isFullHouse(counts) {
			return 25
		}
	case CategorySmallStraight:
		if hasRun(dice, 4) {
			return 30
		}
	case CategoryLargeStraight:
		if hasRun(dice, 5) {
			return 40
		}
	case CategoryFiveOfAKind:
		if hasOfAKind(counts, 5) {
			return 50
		}
	case CategoryChance:
		return sum
	}
	return 0
}

// UpperTotal sums the scored upper-section categories of a sheet.
func UpperTotal(sheet Sheet) int {
	total := 0
	for _, cat := range upperCategories {
		if v, ok := sheet[cat]; ok {
			total += v
		}
	}
	return total
}

// Total computes the full sheet total: upper section, the bonus when the
// upper section reaches the threshold, and the lower section. Callers store
// the result rather than accumulating scores incrementally, so the total can
// never drift from the sheet.
func Total(sheet Sheet) int {
	upper := UpperTotal(sheet)
	total := upper
	if upper >= UpperBonusThreshold {
		total += UpperBonus
	}
	for _, cat := range Categories[len(upperCategories):] {
		if v, ok := sheet[cat]; ok {
			total += v
		}
	}
	return total
}

// Complete reports whether every category on the sheet has been scored.
func Complete(sheet Sheet) bool {
	for _, cat := range Categories {
		if _, ok := sheet[cat]; !ok {
			return false
		}
	}
	return true
}

func hasOfAKind(counts map[int]int, n int) bool {
	for _, c := range counts {
		if c >= n {
			return true
		}
	}
	return false
}

func isFullHouse(counts map[int]int) bool {
	hasThree, hasTwo := false, false
	for _, c := range counts {
		switch c {
		case 3:
			hasThree = true
		case 2:
			hasTwo = true
		case 5:
			// Five of a kind also counts as a full house (3+2 of one face).
			return true
		}
	}
	return hasThree && hasTwo
}

// hasRun reports whether the dice contain a run of n consecutive values.
func hasRun(dice [5]int, n int) bool {
	seen := map[int]bool{}
	for _, v := range dice {
		seen[v] = true
	}
	uniq := make([]int, 0, len(seen))
	for v := range seen {
		uniq = append(uniq, v)
	}
	sort.Ints(uniq)

	run := 1
	for i := 1; i < len(uniq); i++ {
		if uniq[i] == uniq[i-1]+1 {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return run >= n
}
