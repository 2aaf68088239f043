package formulas

import "math"

// Sharpe computes the annualized Sharpe ratio of a PnL series.
//
// Sharpe = mean(pnl) / stddev(pnl) * sqrt(365)
//
// Undefined with fewer than 2 samples returns 0. When stddev is zero the
// ratio degenerates to a signed saturation value (+3.0 / -3.0 / 0) rather
// than a division by zero.
func Sharpe(pnl []float64) float64 {
	if len(pnl) < 2 {
		return 0
	}

	mean := Mean(pnl)
	std := StdDev(pnl)

	if std == 0 {
		switch {
		case mean > 0:
			return 3.0
		case mean < 0:
			return -3.0
		default:
			return 0
		}
	}

	return (mean / std) * math.Sqrt(365)
}
