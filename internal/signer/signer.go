// Package signer implements the optional Signer capability spec.md §2
// item 2 describes: address(), sign_bytes(digest), and
// send_transaction(...), backed by a single secp256k1 key held either
// directly or derived from a mnemonic. Its absence disables uploads and
// on-chain writes; callers check Signer == nil before invoking either.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// Signer holds a single secp256k1 key and exposes the operations the
// Submission Pipeline needs: signing arbitrary report digests and
// broadcasting reputation-registry writes. Nonce allocation for
// send_transaction is serialized by nonceMu, per spec.md §5.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	nonceMu sync.Mutex
}

// FromPrivateKey builds a Signer from a hex-encoded private key (with or
// without a 0x prefix).
func FromPrivateKey(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("signer: invalid private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// FromMnemonic derives a key at BIP-44 Ethereum path m/44'/60'/0'/0/<index>
// from a BIP-39 mnemonic, the same derivation the corpus's wallet
// bootstrap tooling uses.
func FromMnemonic(mnemonic string, index uint32) (*Signer, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("signer: invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")

	path := append(accounts.DerivationPath(nil), accounts.DefaultBaseDerivationPath...)
	path[len(path)-1] = index

	key, err := deriveKeyFromSeed(seed, path)
	if err != nil {
		return nil, fmt.Errorf("signer: derive key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// deriveKeyFromSeed walks a BIP-32 derivation path from a BIP-39 seed,
// producing the secp256k1 key at that path. accounts.DerivationPath
// encodes hardened components with the top bit set, matching go-bip32's
// convention for FirstHardenedChild.
func deriveKeyFromSeed(seed []byte, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}

	node := master
	for _, component := range path {
		node, err = node.NewChildKey(component)
		if err != nil {
			return nil, fmt.Errorf("derive child key: %w", err)
		}
	}

	return crypto.ToECDSA(node.Key)
}

func trim0x(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Address returns the signer's public address.
func (s *Signer) Address() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.address
}

// SignBytes signs a digest (typically keccak256(canonicalJSON)) and
// returns a 0x-prefixed hex signature.
func (s *Signer) SignBytes(digest []byte) (string, error) {
	if s == nil {
		return "", fmt.Errorf("signer: not configured")
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("signer: sign: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// SendTransactionParams describes an on-chain contract call.
type SendTransactionParams struct {
	Client   *ethclient.Client
	To       common.Address
	Data     []byte
	GasLimit uint64
}

// SendTransaction signs and broadcasts an EIP-1559 transaction, holding
// nonceMu for the duration so concurrent writers never race on nonce
// allocation.
func (s *Signer) SendTransaction(ctx context.Context, p SendTransactionParams) (common.Hash, error) {
	if s == nil {
		return common.Hash{}, fmt.Errorf("signer: not configured")
	}

	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()

	nonce, err := p.Client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signer: fetch nonce: %w", err)
	}

	chainID, err := p.Client.NetworkID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signer: fetch chain id: %w", err)
	}

	tip, err := p.Client.SuggestGasTipCap(ctx)
	if err != nil {
		tip = big.NewInt(1_500_000_000) // 1.5 gwei fallback
	}
	head, err := p.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signer: fetch head: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gasLimit := p.GasLimit
	if gasLimit == 0 {
		gasLimit = 200_000
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &p.To,
		Data:      p.Data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signer: sign tx: %w", err)
	}

	if err := p.Client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("signer: broadcast: %w", err)
	}
	return signedTx.Hash(), nil
}
