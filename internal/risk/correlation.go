package risk

import (
	"sort"
	"sync"
	"time"

	"github.com/aristath/brain/pkg/formulas"
)

// correlationCache memoizes the Pearson correlation between symbol pairs,
// keyed by the sorted pair so (A,B) and (B,A) share one entry (testable
// property: correlation is symmetric). Entries expire after TTL.
type correlationCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedCorrelation
	clock   Clock
}

type cachedCorrelation struct {
	value     float64
	computedAt time.Time
}

func newCorrelationCache(ttl time.Duration, clock Clock) *correlationCache {
	return &correlationCache{
		ttl:     ttl,
		entries: make(map[string]cachedCorrelation),
		clock:   clock,
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// get returns a cached, non-expired correlation for the pair if present.
func (c *correlationCache) get(a, b string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[pairKey(a, b)]
	if !ok {
		return 0, false
	}
	if c.clock.Now().Sub(entry.computedAt) > c.ttl {
		return 0, false
	}
	return entry.value, true
}

func (c *correlationCache) set(a, b string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[pairKey(a, b)] = cachedCorrelation{value: value, computedAt: c.clock.Now()}
}

// correlation computes (or returns cached) Pearson correlation between two
// symbols' aligned return series. Insufficient data (<2 returns on either
// side) returns 0.5, the neutral default the spec calls for.
func (g *Guardian) correlation(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if v, ok := g.corrCache.get(a, b); ok {
		return v
	}

	g.mu.RLock()
	bufA, okA := g.history[a]
	bufB, okB := g.history[b]
	g.mu.RUnlock()

	if !okA || !okB {
		return 0.5
	}

	retA := formulas.Returns(bufA.closes())
	retB := formulas.Returns(bufB.closes())
	n := minInt(len(retA), len(retB))
	if n < 2 {
		return 0.5
	}
	retA, retB = retA[len(retA)-n:], retB[len(retB)-n:]

	corr := formulas.Correlation(retA, retB)
	g.corrCache.set(a, b, corr)
	return corr
}

// maxCorrelationAgainstPositions returns the largest absolute correlation
// between symbol and any open position's symbol, and whether a
// same-direction correlated position exists above maxCorrelation.
func (g *Guardian) maxCorrelationAgainstPositions(symbol string, side string, positions map[string]positionView) (maxAbsCorr float64, sameDirectionBreach bool) {
	symbols := make([]string, 0, len(positions))
	for s := range positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols) // deterministic iteration order for reproducible logs

	for _, other := range symbols {
		if other == symbol {
			continue
		}
		corr := g.correlation(symbol, other)
		abs := corr
		if abs < 0 {
			abs = -abs
		}
		if abs > maxAbsCorr {
			maxAbsCorr = abs
		}
		if abs > g.cfg.MaxCorrelation && positions[other].side == side {
			sameDirectionBreach = true
		}
	}
	return maxAbsCorr, sameDirectionBreach
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
