package tracker

import "math"

// priceEpsilon absorbs rounding noise from the upstream source. Differences
// at or below it are not real price changes.
const priceEpsilon = 0.01

// Change describes a significant price move.
type Change struct {
	Old   float64
	New   float64
	Delta float64
}

// Detect compares a stored price with a freshly observed one. The second
// return value is false when the difference is within the noise epsilon.
func Detect(oldPrice, newPrice float64) (Change, bool) {
	if math.Abs(newPrice-oldPrice) <= priceEpsilon {
		return Change{}, false
	}
	return Change{Old: oldPrice, New: newPrice, Delta: newPrice - oldPrice}, true
}
