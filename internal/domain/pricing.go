package domain

import "github.com/shopspring/decimal"

const (
	// MoneyScale is the number of decimal places kept for monetary amounts.
	MoneyScale = 2
	// RateScale is the number of decimal places kept for discount factors.
	RateScale = 4
)

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds an amount to MoneyScale using half-up rounding.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyScale)
}

// DiscountFactor converts a percentage into a multiplier rounded to RateScale (20 -> 0.2000).
func DiscountFactor(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred).Round(RateScale)
}

// ApplyDiscount returns price reduced by percent, rounded to MoneyScale.
func ApplyDiscount(price, percent decimal.Decimal) decimal.Decimal {
	if !percent.IsPositive() {
		return RoundMoney(price)
	}
	factor := DiscountFactor(percent)
	return RoundMoney(price.Sub(price.Mul(factor)))
}

// ValidDiscountPercent reports whether 0 < percent <= 100.
func ValidDiscountPercent(percent decimal.Decimal) bool {
	return percent.IsPositive() && percent.LessThanOrEqual(hundred)
}

// LineTotals computes the subtotal and discount of qty units priced at base and final.
func LineTotals(base, final decimal.Decimal, qty int) (subtotal, discount decimal.Decimal) {
	q := decimal.NewFromInt(int64(qty))
	subtotal = RoundMoney(final.Mul(q))
	discount = RoundMoney(base.Sub(final).Mul(q))
	return subtotal, discount
}
