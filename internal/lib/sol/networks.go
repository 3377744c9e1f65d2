package sol

import (
	"fmt"
	"strings"

	"github.com/NebulaNode/nebula/internal/lib/misc"
)

// Networks lists the clusters we know default endpoints for.
var Networks = []string{"mainnet-beta", "testnet", "devnet", "localnet"}

type NetworkConfig struct {
	Network string

	RPCURL     string
	RPCToken   string
	RPCHeaders map[string]string
}

func (n NetworkConfig) String() string {
	return fmt.Sprintf("Network: %s, RPCURL: %s, RPCToken: (length:%d), RPCHeaders: %v", n.Network, n.RPCURL, len(n.RPCToken), n.RPCHeaders)
}

func IsKnownNetwork(network string) bool {
	for _, name := range Networks {
		if name == network {
			return true
		}
	}
	return false
}

// GetNetworkConfig returns the defaults for network, overridden by SOL_RPC_URL, SOL_RPC_TOKEN and SOL_RPC_HEADERS
// (key:value[,key:value...]) from the environment / secrets.
func GetNetworkConfig(network string) NetworkConfig {
	cfg := getDefaults(network)

	if rpcURL := misc.GetSecret("SOL_RPC_URL"); rpcURL != "" {
		cfg.RPCURL = rpcURL
	}
	if token := misc.GetSecret("SOL_RPC_TOKEN"); token != "" {
		cfg.RPCToken = token
	}
	cfg.RPCHeaders = parseHeaders(misc.GetSecret("SOL_RPC_HEADERS"))
	return cfg
}

func parseHeaders(headers string) map[string]string {
	parsed := map[string]string{}
	for _, header := range strings.Split(headers, ",") {
		parts := strings.SplitN(header, ":", 2) // Just split on first : - they can have :'s in value.
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if key != "" {
				parsed[key] = value
			}
		}
	}
	return parsed
}

func getDefaults(network string) NetworkConfig {
	cfg := NetworkConfig{Network: network}
	switch network {
	case "mainnet-beta":
		cfg.RPCURL = "https://api.mainnet-beta.solana.com"
	case "testnet":
		cfg.RPCURL = "https://api.testnet.solana.com"
	case "devnet":
		cfg.RPCURL = "https://api.devnet.solana.com"
	case "localnet":
		cfg.RPCURL = "http://127.0.0.1:8899"
	}
	return cfg
}
