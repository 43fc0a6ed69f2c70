// Package onchain implements the On-chain Verifier (spec.md §4.3): reads
// ownerOf/tokenURI/agentURI/getAgentWallet from the registry contract via
// go-ethereum's ABI encoding, the same inline-ABI-fragment + Pack/Call/
// Unpack pattern the corpus's ERC-8004 reference code uses.
package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/builders-garden/watchy/internal/model"
	"github.com/builders-garden/watchy/internal/resilience"
)

const (
	ownerOfABI = `[{"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"}],"name":"ownerOf","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

	tokenURIABI = `[{"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"}],"name":"tokenURI","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"}]`

	agentURIABI = `[{"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"}],"name":"agentURI","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"}]`

	agentWalletABI = `[{"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"}],"name":"getAgentWallet","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
)

// ErrAgentNotFound is returned when ownerOf reverts or yields the zero
// address — the one critical, audit-terminating failure spec.md §4.3
// defines.
var ErrAgentNotFound = fmt.Errorf("onchain: agent not found")

// Result bundles the verifier's findings with the chain head block
// number recorded at fetch time, for report reproducibility.
type Result struct {
	Check       model.OnchainCheck
	BlockNumber uint64
}

// Verifier reads agent registration state from an EIP-8004 registry
// contract.
type Verifier struct {
	client          *ethclient.Client
	registryAddress common.Address
}

// New wraps a dialed ethclient against the given registry address.
func New(client *ethclient.Client, registryAddress string) *Verifier {
	return &Verifier{client: client, registryAddress: common.HexToAddress(registryAddress)}
}

func call(ctx context.Context, client *ethclient.Client, to common.Address, abiJSON, method string, args ...interface{}) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("onchain: parse abi for %s: %w", method, err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("onchain: pack %s: %w", method, err)
	}
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("onchain: call %s: %w", method, err)
	}
	return result, nil
}

func unpackAddress(abiJSON, method string, data []byte) (common.Address, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return common.Address{}, err
	}
	var out common.Address
	if err := parsed.UnpackIntoInterface(&out, method, data); err != nil {
		return common.Address{}, err
	}
	return out, nil
}

func unpackString(abiJSON, method string, data []byte) (string, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return "", err
	}
	var out string
	if err := parsed.UnpackIntoInterface(&out, method, data); err != nil {
		return "", err
	}
	return out, nil
}

// Verify performs the three registry reads plus a block-number read,
// retrying non-fatal RPC failures with exponential backoff
// (resilience.OnchainRetryConfig). ownerOf failure is not retried beyond
// that schedule and, on exhaustion, returns ErrAgentNotFound.
func (v *Verifier) Verify(ctx context.Context, agentID *big.Int) (*Result, error) {
	var issues []model.Issue

	var owner common.Address
	ownerErr := resilience.Retry(ctx, resilience.OnchainRetryConfig(), func() error {
		data, err := call(ctx, v.client, v.registryAddress, ownerOfABI, "ownerOf", agentID)
		if err != nil {
			return err
		}
		owner, err = unpackAddress(ownerOfABI, "ownerOf", data)
		return err
	})
	if ownerErr != nil || owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: %v", ErrAgentNotFound, ownerErr)
	}

	var tokenURI, agentURI string
	var tokenURIErr, agentURIErr error
	_ = resilience.Retry(ctx, resilience.OnchainRetryConfig(), func() error {
		data, err := call(ctx, v.client, v.registryAddress, tokenURIABI, "tokenURI", agentID)
		if err != nil {
			tokenURIErr = err
			return err
		}
		tokenURI, tokenURIErr = unpackString(tokenURIABI, "tokenURI", data)
		return tokenURIErr
	})
	_ = resilience.Retry(ctx, resilience.OnchainRetryConfig(), func() error {
		data, err := call(ctx, v.client, v.registryAddress, agentURIABI, "agentURI", agentID)
		if err != nil {
			agentURIErr = err
			return err
		}
		agentURI, agentURIErr = unpackString(agentURIABI, "agentURI", data)
		return agentURIErr
	})

	metadataURI := tokenURI
	uriMatch := true
	switch {
	case tokenURIErr == nil && agentURIErr == nil:
		if tokenURI != agentURI {
			uriMatch = false
			issues = append(issues, model.Issue{Severity: model.SeverityWarning, Code: "URI_MISMATCH",
				Message: "tokenURI and agentURI disagree"})
		}
	case tokenURIErr != nil && agentURIErr == nil:
		metadataURI = agentURI
	case tokenURIErr != nil && agentURIErr != nil:
		issues = append(issues, model.Issue{Severity: model.SeverityError, Code: "METADATA_URI_UNAVAILABLE",
			Message: "neither tokenURI nor agentURI could be read"})
	}

	var wallet common.Address
	walletErr := resilience.Retry(ctx, resilience.OnchainRetryConfig(), func() error {
		data, err := call(ctx, v.client, v.registryAddress, agentWalletABI, "getAgentWallet", agentID)
		if err != nil {
			return err
		}
		wallet, err = unpackAddress(agentWalletABI, "getAgentWallet", data)
		return err
	})
	walletSet := walletErr == nil && wallet != (common.Address{})
	if !walletSet {
		issues = append(issues, model.Issue{Severity: model.SeverityWarning, Code: "NO_WALLET",
			Message: "agent has no registered payment wallet"})
	}

	var blockNumber uint64
	if header, err := v.client.HeaderByNumber(ctx, nil); err == nil {
		blockNumber = header.Number.Uint64()
	}

	walletStr := ""
	if walletSet {
		walletStr = wallet.Hex()
	}

	return &Result{
		Check: model.OnchainCheck{
			Exists:      true,
			Owner:       owner.Hex(),
			MetadataURI: metadataURI,
			URIMatch:    uriMatch,
			Wallet:      walletStr,
			WalletSet:   walletSet,
			Issues:      issues,
		},
		BlockNumber: blockNumber,
	}, nil
}
