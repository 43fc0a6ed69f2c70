// Package chainregistry is the static table mapping chain IDs to RPC
// endpoints, registry/reputation contract addresses, and display
// metadata (spec.md §2 item 1). The compiled table is overridable per
// chain by environment variables so operators can point at private RPC
// providers without a code change.
package chainregistry

import (
	"fmt"
	"os"
	"strings"
)

// ChainConfig describes one supported chain.
type ChainConfig struct {
	ChainID          uint64
	Name             string
	RPCURL           string
	RegistryAddress  string
	ReputationAddress string
	Testnet          bool
}

// defaults is the compile-time table. Addresses are placeholders for the
// canonical EIP-8004 identity/reputation registries on each network;
// operators override RPCURL per chain via WATCHY_CHAIN_<id>_RPC_URL.
var defaults = map[uint64]ChainConfig{
	8453: {
		ChainID:           8453,
		Name:              "Base",
		RPCURL:            "https://mainnet.base.org",
		RegistryAddress:   "0x000000000000000000000000000000000eip8004",
		ReputationAddress: "0x000000000000000000000000000000000repu8k",
		Testnet:           false,
	},
	84532: {
		ChainID:           84532,
		Name:              "Base Sepolia",
		RPCURL:            "https://sepolia.base.org",
		RegistryAddress:   "0x000000000000000000000000000000000eip8004",
		ReputationAddress: "0x000000000000000000000000000000000repu8k",
		Testnet:           true,
	},
	11155111: {
		ChainID:           11155111,
		Name:              "Ethereum Sepolia",
		RPCURL:            "https://rpc.sepolia.org",
		RegistryAddress:   "0x000000000000000000000000000000000eip8004",
		ReputationAddress: "0x000000000000000000000000000000000repu8k",
		Testnet:           true,
	},
}

// Registry resolves chain configuration, applying env overrides once at
// startup; the table itself is immutable thereafter per spec.md §5.
type Registry struct {
	chains map[uint64]ChainConfig
}

// New builds a Registry from the compiled defaults, applying any
// WATCHY_CHAIN_<id>_RPC_URL overrides found in the environment.
func New() *Registry {
	chains := make(map[uint64]ChainConfig, len(defaults))
	for id, cfg := range defaults {
		envKey := fmt.Sprintf("WATCHY_CHAIN_%d_RPC_URL", id)
		if override := strings.TrimSpace(os.Getenv(envKey)); override != "" {
			cfg.RPCURL = override
		}
		chains[id] = cfg
	}
	return &Registry{chains: chains}
}

// Lookup returns the ChainConfig for chainID, or ok=false if unsupported.
func (r *Registry) Lookup(chainID uint64) (ChainConfig, bool) {
	cfg, ok := r.chains[chainID]
	return cfg, ok
}

// SupportedChainIDs returns every configured chain ID.
func (r *Registry) SupportedChainIDs() []uint64 {
	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}
