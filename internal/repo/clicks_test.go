package repo_test

import (
	"context"
	"testing"
	"time"

	"burnlink/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClicksCreateAndStats(t *testing.T) {
	clicks := repo.NewClicksRepo(testDB)

	link := createLink(t, repo.CreateLinkParams{ShortCode: "clk0001", TargetURL: "https://example.com", ExpiryType: repo.ExpiryNone})

	first := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	second := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, clicks.Create(context.Background(), repo.ClickEvent{
		LinkID:     link.ID,
		ClickedAt:  first,
		IPHash:     "aGFzaA==",
		UserAgent:  "curl/8.4.0",
		DeviceType: "DESKTOP",
		Browser:    "Other",
	}))
	require.NoError(t, clicks.Create(context.Background(), repo.ClickEvent{
		LinkID:      link.ID,
		ClickedAt:   second,
		IPHash:      "aGFzaA==",
		UserAgent:   "curl/8.4.0",
		DeviceType:  "DESKTOP",
		Browser:     "Other",
		CountryCode: ptr("DE"),
		CountryName: ptr("Germany"),
		Region:      ptr("Berlin"),
		City:        ptr("Berlin"),
	}))

	stats, err := clicks.GetStatsForLink(context.Background(), link.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Total)
	require.NotNil(t, stats.LastClickedAt)
	assert.True(t, second.Equal(*stats.LastClickedAt))
}

func TestClicksStats_NoClicks(t *testing.T) {
	clicks := repo.NewClicksRepo(testDB)

	link := createLink(t, repo.CreateLinkParams{ShortCode: "clk0002", TargetURL: "https://example.com", ExpiryType: repo.ExpiryNone})

	stats, err := clicks.GetStatsForLink(context.Background(), link.ID)
	require.NoError(t, err)

	assert.Zero(t, stats.Total)
	assert.Nil(t, stats.LastClickedAt)
}
