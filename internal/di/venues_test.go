package di

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/brain/internal/domain"
)

func TestNewStaticVenuesDefaultsToPrimary(t *testing.T) {
	venues := newStaticVenues(nil)

	active := venues.ActiveVenues()
	assert.Len(t, active, 1)
	assert.Equal(t, "primary", active[0].ID)
	assert.Equal(t, domain.VenueExchange, active[0].Type)
	assert.True(t, active[0].Active)
}

func TestNewStaticVenuesBuildsOneVenuePerID(t *testing.T) {
	venues := newStaticVenues([]string{"binance", "okx"})

	active := venues.ActiveVenues()
	assert.Len(t, active, 2)
	ids := []string{active[0].ID, active[1].ID}
	assert.Contains(t, ids, "binance")
	assert.Contains(t, ids, "okx")
	assert.Equal(t, 0.5, active[0].Liquidity.MarketShare)
}

func TestActiveVenuesFiltersOutInactive(t *testing.T) {
	venues := newStaticVenues([]string{"primary"})
	venues.venues[0].Active = false

	assert.Empty(t, venues.ActiveVenues())
}
