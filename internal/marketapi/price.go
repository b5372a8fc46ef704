package marketapi

import "github.com/shopspring/decimal"

var (
	secondsPerHour = decimal.NewFromInt(3600)
	weiPerToken    = decimal.New(1, 18) // 1e18
)

// WireToHumanUSD converts a decimal wei-per-second price string, as
// returned by the marketplace, into USD/hour (§4.1: x · 3600 / 1e18).
// An unparsable wire string yields zero rather than an error — callers
// treat a price as display-only, best-effort data.
func WireToHumanUSD(weiPerSecond string) decimal.Decimal {
	w, err := decimal.NewFromString(weiPerSecond)
	if err != nil {
		return decimal.Zero
	}
	return w.Mul(secondsPerHour).Div(weiPerToken)
}
