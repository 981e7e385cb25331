package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		in   CampaignStatus
		want CampaignStatus
	}{
		{statusLegacyDone, StatusCompleted},
		{StatusCompleted, StatusCompleted},
		{StatusRunning, StatusRunning},
		{StatusFailed, StatusFailed},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeStatus(tc.in))
	}
}

func TestCampaign_EffectiveLimit(t *testing.T) {
	c := Campaign{MaxItems: 50}
	require.Equal(t, 50, c.EffectiveLimit(10))

	c = Campaign{Query: CampaignQuery{Limit: 25}}
	require.Equal(t, 25, c.EffectiveLimit(10))

	c = Campaign{}
	require.Equal(t, 10, c.EffectiveLimit(10))
}
