package workflow

import (
	"gigchat/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ServiceFee is feePercent of the base amount, rounded down to a whole unit.
func ServiceFee(baseAmount int64, feePercent int) int64 {
	return decimal.NewFromInt(baseAmount).
		Mul(decimal.NewFromInt(int64(feePercent))).
		Div(hundred).
		Floor().
		IntPart()
}

// TotalAmount is what the customer pays: base, equipment and fee.
func TotalAmount(baseAmount, equipmentCost int64, feePercent int) int64 {
	return decimal.NewFromInt(baseAmount).
		Add(decimal.NewFromInt(equipmentCost)).
		Add(decimal.NewFromInt(ServiceFee(baseAmount, feePercent))).
		IntPart()
}

// MinimumBid returns the lowest acceptable base amount for a category, or
// false when it has no price floor. Fractional floors round up.
func MinimumBid(c *models.Category) (int64, bool) {
	if c == nil || !c.HasPriceFloor() {
		return 0, false
	}
	return decimal.NewFromInt(c.BaselinePrice).
		Mul(decimal.NewFromInt(int64(c.MinimumPercentage))).
		Div(hundred).
		Ceil().
		IntPart(), true
}

// checkMinimum returns BID_BELOW_MINIMUM with the computed floor when
// baseAmount is under the category minimum.
func checkMinimum(c *models.Category, baseAmount int64) error {
	minimum, ok := MinimumBid(c)
	if !ok || baseAmount >= minimum {
		return nil
	}
	return fail(ErrBidBelowMinimum,
		"bid of %d is below the minimum of %d (%d%% of the %d baseline)",
		baseAmount, minimum, c.MinimumPercentage, c.BaselinePrice,
	).with(map[string]any{
		"minimumAmount":     minimum,
		"baselinePrice":     c.BaselinePrice,
		"minimumPercentage": c.MinimumPercentage,
	})
}
