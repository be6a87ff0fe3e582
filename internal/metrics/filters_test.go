package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adpulse/campaign-watcher/pkg/types"
)

func TestApplyFiltersEquals(t *testing.T) {
	data := types.PlatformData{
		"google_ads": {
			{"campaign": "Summer Sale", "spend": 10.0},
			{"campaign": "winter promo", "spend": 20.0},
		},
	}

	got := ApplyFilters(data, []types.Filter{
		{Field: "campaign", Op: types.FilterEquals, Value: "summer sale"},
	})
	assert.Len(t, got["google_ads"], 1)
	assert.Equal(t, "Summer Sale", got["google_ads"][0]["campaign"])
}

func TestApplyFiltersAndCombined(t *testing.T) {
	data := types.PlatformData{
		"meta_ads": {
			{"campaign": "Summer Sale", "region": "US"},
			{"campaign": "Summer Sale", "region": "EU"},
			{"campaign": "Winter Promo", "region": "US"},
		},
	}

	got := ApplyFilters(data, []types.Filter{
		{Field: "campaign", Op: types.FilterStartsWith, Value: "summer"},
		{Field: "region", Op: types.FilterEquals, Value: "us"},
	})
	assert.Len(t, got["meta_ads"], 1)
}

func TestApplyFiltersContainsAndNotEquals(t *testing.T) {
	data := types.PlatformData{
		"p": {
			{"name": "Brand Awareness Q1"},
			{"name": "Retargeting Q1"},
			{"name": "Brand Awareness Q2"},
		},
	}

	got := ApplyFilters(data, []types.Filter{
		{Field: "name", Op: types.FilterContains, Value: "brand"},
		{Field: "name", Op: types.FilterNotEquals, Value: "brand awareness q2"},
	})
	assert.Len(t, got["p"], 1)
	assert.Equal(t, "Brand Awareness Q1", got["p"][0]["name"])
}

func TestApplyFiltersMissingFieldExcludesRow(t *testing.T) {
	data := types.PlatformData{
		"p": {
			{"campaign": "Summer"},
			{"spend": 10.0}, // no campaign field at all
		},
	}

	// a row without the field is excluded, not passed through
	got := ApplyFilters(data, []types.Filter{
		{Field: "campaign", Op: types.FilterNotEquals, Value: "winter"},
	})
	assert.Len(t, got["p"], 1)
}

func TestApplyFiltersEmptyFilterListIsIdentity(t *testing.T) {
	data := types.PlatformData{"p": {{"a": 1.0}}}
	assert.Equal(t, data, ApplyFilters(data, nil))
}
