package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharpeUndefinedBelowTwoSamples(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe(nil))
	assert.Equal(t, 0.0, Sharpe([]float64{10}))
}

func TestSharpeZeroStdDevSaturates(t *testing.T) {
	assert.Equal(t, 3.0, Sharpe([]float64{10, 10, 10}))
	assert.Equal(t, -3.0, Sharpe([]float64{-5, -5, -5}))
	assert.Equal(t, 0.0, Sharpe([]float64{0, 0, 0}))
}

func TestSharpePositiveSeries(t *testing.T) {
	s := Sharpe([]float64{10, -5, 15, 8, -2})
	assert.Greater(t, s, 0.0)
}

func TestMaxDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown([]float64{100}))
	dd := MaxDrawdown([]float64{100, 120, 90, 110})
	assert.InDelta(t, 0.25, dd, 1e-9) // peak 120 -> trough 90
}

func TestCorrelationSymmetric(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{2, 3, 1, 5, 4}
	assert.InDelta(t, Correlation(a, b), Correlation(b, a), 1e-9)
}

func TestCorrelationMismatchedLength(t *testing.T) {
	assert.Equal(t, 0.0, Correlation([]float64{1, 2}, []float64{1}))
}
