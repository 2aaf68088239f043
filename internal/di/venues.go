package di

import "github.com/aristath/brain/internal/domain"

// staticVenues implements router.VenueSource from a fixed registry loaded
// at startup. Venue health (latency, available size, recent volume) is not
// updated after construction: every configured venue is reported active
// with the fixed baseline characteristics set here.
type staticVenues struct {
	venues []domain.Venue
}

func newStaticVenues(ids []string) *staticVenues {
	if len(ids) == 0 {
		ids = []string{"primary"}
	}
	venues := make([]domain.Venue, 0, len(ids))
	for _, id := range ids {
		venues = append(venues, domain.Venue{
			ID:     id,
			Name:   id,
			Type:   domain.VenueExchange,
			Active: true,
			Fees: domain.VenueFees{
				MakerBps: 2,
				TakerBps: 4,
			},
			Liquidity:     domain.VenueLiquidity{MarketShare: 1.0 / float64(len(ids))},
			AvailableSize: 1_000_000,
			RecentVolume:  1_000_000,
		})
	}
	return &staticVenues{venues: venues}
}

// ActiveVenues implements router.VenueSource.
func (s *staticVenues) ActiveVenues() []domain.Venue {
	active := make([]domain.Venue, 0, len(s.venues))
	for _, v := range s.venues {
		if v.Active {
			active = append(active, v)
		}
	}
	return active
}
