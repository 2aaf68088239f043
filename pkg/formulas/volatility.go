package formulas

import "github.com/markcheno/go-talib"

// DerivedVolatility estimates volatility from a price history the way the
// RiskGuardian's stop-distance gate resolves it when an IntentSignal doesn't
// carry an explicit volatility figure: standard deviation of the trailing
// returns over `period`, multiplied by the last price, so the result is
// expressed in price units comparable to a stop distance.
//
// Returns 0 when fewer than period+1 closes are available.
func DerivedVolatility(closes []float64, period int) float64 {
	if period < 2 || len(closes) < period+1 {
		return 0
	}

	returns := Returns(closes)
	stdDev := talib.StdDev(returns, period, 1)
	last := stdDev[len(stdDev)-1]
	if last != last { // NaN guard
		return 0
	}

	return last * closes[len(closes)-1]
}
