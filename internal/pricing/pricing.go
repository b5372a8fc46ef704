// Package pricing implements the conversion and markup/cap arithmetic of
// spec §4.2: predicted price → desired price → capped final price, done
// in fixed-point decimal rather than float64 to avoid rounding drift
// across repeated CREATE_ORDER cycles.
package pricing

import "github.com/shopspring/decimal"

const displayPrecision = 4

// ErrNoPriceAvailable is returned when a prediction failed and the task
// has no configured max_price to fall back on — order creation must
// abort for this tick per §4.2.
type ErrNoPriceAvailable struct{}

func (ErrNoPriceAvailable) Error() string {
	return "pricing: no predicted price and no configured max_price"
}

// Compute returns the final order price given a raw prediction (nil if
// the prediction call failed), the configured max_price ceiling, and a
// percent markup coefficient.
//
//	P_desired = P_pred * (1 + coefficient/100)   when a prediction exists
//	          = max_price                         otherwise
//	P_final   = min(P_desired, max_price)
//
// If there is no prediction and max_price is zero (unconfigured),
// Compute returns ErrNoPriceAvailable.
func Compute(predictedUSDPerHour *float64, maxPriceUSDPerHour decimal.Decimal, coefficientPercent int) (decimal.Decimal, error) {
	var desired decimal.Decimal

	if predictedUSDPerHour != nil {
		pred := decimal.NewFromFloat(*predictedUSDPerHour)
		markup := decimal.NewFromInt(100 + int64(coefficientPercent)).Div(decimal.NewFromInt(100))
		desired = pred.Mul(markup)
	} else {
		if maxPriceUSDPerHour.IsZero() {
			return decimal.Zero, ErrNoPriceAvailable{}
		}
		desired = maxPriceUSDPerHour
	}

	final := desired
	if !maxPriceUSDPerHour.IsZero() && desired.GreaterThan(maxPriceUSDPerHour) {
		final = maxPriceUSDPerHour
	}

	return final.Round(displayPrecision), nil
}

// HumanToWire converts a USD/hour display price into integer
// wei-per-second (x · 1e18 / 3600, truncated), the inverse of
// marketapi.WireToHumanUSD's conversion.
func HumanToWire(usdPerHour decimal.Decimal) decimal.Decimal {
	return usdPerHour.
		Mul(decimal.New(1, 18)).
		Div(decimal.NewFromInt(3600)).
		Truncate(0)
}

// WireToHuman converts integer wei-per-second into a USD/hour display
// price, rounded to displayPrecision decimal places.
func WireToHuman(weiPerSecond decimal.Decimal) decimal.Decimal {
	return weiPerSecond.
		Mul(decimal.NewFromInt(3600)).
		Div(decimal.New(1, 18)).
		Round(displayPrecision)
}
