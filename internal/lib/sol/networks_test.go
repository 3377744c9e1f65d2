package sol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetNetworkConfigDefaults(t *testing.T) {
	t.Setenv("SOL_RPC_URL", "")
	t.Setenv("SOL_RPC_TOKEN", "")
	t.Setenv("SOL_RPC_HEADERS", "")

	cfg := GetNetworkConfig("devnet")
	assert.Equal(t, "https://api.devnet.solana.com", cfg.RPCURL)
	assert.Empty(t, cfg.RPCToken)
	assert.Empty(t, cfg.RPCHeaders)

	assert.True(t, IsKnownNetwork("mainnet-beta"))
	assert.False(t, IsKnownNetwork("mainnet"))
}

func TestGetNetworkConfigOverrides(t *testing.T) {
	t.Setenv("SOL_RPC_URL", "https://rpc.example.com/")
	t.Setenv("SOL_RPC_TOKEN", "secret")
	t.Setenv("SOL_RPC_HEADERS", "x-api-key: abc:def , x-region:eu,bogus")

	cfg := GetNetworkConfig("mainnet-beta")
	assert.Equal(t, "https://rpc.example.com/", cfg.RPCURL)
	assert.Equal(t, "secret", cfg.RPCToken)
	assert.Equal(t, map[string]string{"x-api-key": "abc:def", "x-region": "eu"}, cfg.RPCHeaders)
	assert.NotContains(t, cfg.String(), "secret")
}
