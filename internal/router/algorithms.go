package router

import (
	"fmt"
	"sort"

	"github.com/aristath/brain/internal/domain"
)

// twap splits the order across the top-3 venues by market share, slicing
// each venue's allocation into timeSlices equal LIMIT-GTC slices.
func twap(venues []domain.Venue, req domain.OrderRequest, timeSlices int) ([]domain.Route, float64, string) {
	top := topNByMarketShare(venues, 3)
	if len(top) == 0 {
		return nil, 85, "TWAP: no active venues available"
	}

	perVenue := req.Quantity / float64(len(top))
	var routes []domain.Route
	for priority, v := range top {
		routes = append(routes, domain.Route{
			VenueID:               v.ID,
			Quantity:              perVenue,
			Percentage:            perVenue / req.Quantity,
			ExpectedPrice:         0, // resolved against the live book at execution time
			ExpectedFees:          perVenue * v.Fees.TakerBps / 10000,
			ExpectedLatencyMicros: v.LatencyMicros,
			Priority:              priority,
			OrderParams:           domain.OrderParams{Type: "LIMIT", TIF: "GTC"},
			TimeSlices:            timeSlices,
			SliceQuantity:         perVenue / float64(timeSlices),
		})
	}
	return routes, 85, fmt.Sprintf("TWAP across top %d venues by market share, %d time slices each", len(top), timeSlices)
}

// vwap allocates proportionally to each venue's recent traded volume share,
// skipping allocations under 1 unit.
func vwap(venues []domain.Venue, req domain.OrderRequest) ([]domain.Route, float64, string) {
	active := activeOnly(venues)
	var totalVolume float64
	for _, v := range active {
		totalVolume += v.RecentVolume
	}
	if totalVolume <= 0 {
		return nil, 90, "VWAP: no recent volume data across active venues"
	}

	var routes []domain.Route
	for priority, v := range active {
		share := v.RecentVolume / totalVolume
		qty := req.Quantity * share
		if qty < 1 {
			continue
		}
		routes = append(routes, domain.Route{
			VenueID:               v.ID,
			Quantity:              qty,
			Percentage:            share,
			ExpectedFees:          qty * v.Fees.TakerBps / 10000,
			ExpectedLatencyMicros: v.LatencyMicros,
			Priority:              priority,
			OrderParams:           domain.OrderParams{Type: "LIMIT", TIF: "IOC"},
		})
	}
	return routes, 90, "VWAP proportional to recent traded volume share"
}

// aggressive sorts venues by ascending latency and consumes available size
// up to 3 venues, MARKET-IOC.
func aggressive(venues []domain.Venue, req domain.OrderRequest) ([]domain.Route, float64, string) {
	active := activeOnly(venues)
	sort.Slice(active, func(i, j int) bool { return active[i].LatencyMicros < active[j].LatencyMicros })

	remaining := req.Quantity
	var routes []domain.Route
	for priority, v := range active {
		if priority >= 3 || remaining <= 0 {
			break
		}
		take := remaining
		if v.AvailableSize < take {
			take = v.AvailableSize
		}
		if take <= 0 {
			continue
		}
		routes = append(routes, domain.Route{
			VenueID:               v.ID,
			Quantity:              take,
			Percentage:            take / req.Quantity,
			ExpectedFees:          take * v.Fees.TakerBps / 10000,
			ExpectedLatencyMicros: v.LatencyMicros,
			Priority:              priority,
			OrderParams:           domain.OrderParams{Type: "MARKET", TIF: "IOC"},
		})
		remaining -= take
	}
	return routes, 95, "AGGRESSIVE: lowest-latency venues first, MARKET-IOC"
}

// stealth routes 70% to dark pools with hidden orders and the remaining 30%
// to the top-2 exchange venues as hidden-limit orders. The routes carry no
// display quantity: the exchange orders are fully hidden, and no part of
// their size is shown.
func stealth(venues []domain.Venue, req domain.OrderRequest) ([]domain.Route, float64, string) {
	var darkPools, exchanges []domain.Venue
	for _, v := range activeOnly(venues) {
		if v.Type == domain.VenueDarkPool {
			darkPools = append(darkPools, v)
		} else {
			exchanges = append(exchanges, v)
		}
	}
	sort.Slice(exchanges, func(i, j int) bool { return exchanges[i].Liquidity.MarketShare > exchanges[j].Liquidity.MarketShare })
	if len(exchanges) > 2 {
		exchanges = exchanges[:2]
	}

	darkQty := req.Quantity * 0.70
	exchangeQty := req.Quantity * 0.30

	var routes []domain.Route
	priority := 0
	if len(darkPools) > 0 {
		perPool := darkQty / float64(len(darkPools))
		for _, v := range darkPools {
			routes = append(routes, domain.Route{
				VenueID:               v.ID,
				Quantity:              perPool,
				Percentage:            perPool / req.Quantity,
				ExpectedFees:          perPool * v.Fees.TakerBps / 10000,
				ExpectedLatencyMicros: v.LatencyMicros,
				Priority:              priority,
				OrderParams:           domain.OrderParams{Type: "LIMIT", TIF: "GTC", Hidden: true},
			})
			priority++
		}
	}
	if len(exchanges) > 0 {
		perExchange := exchangeQty / float64(len(exchanges))
		for _, v := range exchanges {
			routes = append(routes, domain.Route{
				VenueID:               v.ID,
				Quantity:              perExchange,
				Percentage:            perExchange / req.Quantity,
				ExpectedFees:          perExchange * v.Fees.TakerBps / 10000,
				ExpectedLatencyMicros: v.LatencyMicros,
				Priority:              priority,
				OrderParams:           domain.OrderParams{Type: "LIMIT", TIF: "GTC", Hidden: true}, // fully hidden, no display quantity
			})
			priority++
		}
	}
	return routes, 80, "STEALTH: 70% dark pool hidden, 30% top-2 exchanges hidden-limit"
}
