package bidding

import "github.com/shopspring/decimal"

// incrementBands maps visible bid amounts to the minimum step the next bid
// must clear. Bands get wider and steeper as the price climbs, Tradera-style.
var incrementBands = []struct {
	below int64
	step  int64
}{
	{20, 1},
	{100, 5},
	{200, 10},
	{400, 15},
	{1000, 20},
	{2500, 30},
	{4000, 50},
	{6000, 100},
}

const topStep = 200

// Increment returns the bid increment for a given amount: the minimum a new
// bid must exceed the current visible leading bid by, and the step an
// automatic counter-bid rises by.
func Increment(amount decimal.Decimal) decimal.Decimal {
	for _, band := range incrementBands {
		if amount.LessThan(decimal.NewFromInt(band.below)) {
			return decimal.NewFromInt(band.step)
		}
	}
	return decimal.NewFromInt(topStep)
}
