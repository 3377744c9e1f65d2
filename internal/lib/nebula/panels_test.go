package nebula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanelConfigs(t *testing.T) {
	testCases := []struct {
		panel    Panel
		label    string
		size     int
		parallax float64
		wallet   bool
	}{
		{PanelStake, "Stake", 280, 0.12, true},
		{PanelUnstake, "Unstake", 200, 0.10, true},
		{PanelSecurity, "Security", 140, 0.08, false},
		{PanelTools, "Tools", 110, 0.06, false},
	}
	for _, tc := range testCases {
		t.Run(tc.panel.String(), func(t *testing.T) {
			cfg := tc.panel.Config()
			assert.Equal(t, tc.label, cfg.Label)
			assert.Equal(t, tc.size, cfg.BaseSize)
			assert.InDelta(t, tc.parallax, cfg.Parallax, 1e-9)
			assert.Equal(t, tc.wallet, cfg.RequiresWallet)

			parsed, err := ParsePanel(tc.panel.String())
			require.NoError(t, err)
			assert.Equal(t, tc.panel, parsed)
		})
	}
	_, err := ParsePanel("planets")
	assert.Error(t, err)
}

func TestPanelScaledSize(t *testing.T) {
	stakeCfg := PanelStake.Config()
	assert.Equal(t, 140, stakeCfg.ScaledSize(375))
	assert.Equal(t, 196, stakeCfg.ScaledSize(800))
	assert.Equal(t, 280, stakeCfg.ScaledSize(1440))

	tools := PanelTools.Config()
	assert.Equal(t, 55, tools.ScaledSize(375))
	assert.Equal(t, 77, tools.ScaledSize(1000))
}

func TestWalletRequiredMessage(t *testing.T) {
	assert.Equal(t, "Please connect your wallet to unstake.", PanelUnstake.Config().WalletRequiredMessage())
	assert.Empty(t, PanelSecurity.Config().WalletRequiredMessage())
}
