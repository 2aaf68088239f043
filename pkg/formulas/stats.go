// Package formulas implements the quantitative primitives shared by the
// performance tracker and the risk guardian: mean/stddev, Sharpe, drawdown,
// correlation and derived volatility.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample (n-1) standard deviation of a slice of values.
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// AnnualizedVolatility scales daily-return stddev to an annual figure.
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(365)
}

// Returns converts a price series into percentage returns.
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return out
}

// Correlation computes the Pearson correlation coefficient between two
// equal-length return series. Returns 0 when the inputs are too short or
// mismatched in length.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}
