package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestFromPrivateKeyDerivesAddress(t *testing.T) {
	s, err := FromPrivateKey(testPrivateKey)
	require.NoError(t, err)
	assert.NotEqual(t, "0x0000000000000000000000000000000000000000", s.Address().Hex())
}

func TestFromPrivateKeyAcceptsHexPrefix(t *testing.T) {
	s1, err := FromPrivateKey(testPrivateKey)
	require.NoError(t, err)
	s2, err := FromPrivateKey("0x" + testPrivateKey)
	require.NoError(t, err)
	assert.Equal(t, s1.Address(), s2.Address())
}

func TestFromPrivateKeyRejectsInvalidHex(t *testing.T) {
	_, err := FromPrivateKey("not-a-key")
	assert.Error(t, err)
}

func TestSignBytesIsDeterministicPerKey(t *testing.T) {
	s, err := FromPrivateKey(testPrivateKey)
	require.NoError(t, err)

	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}
	sig1, err := s.SignBytes(digest)
	require.NoError(t, err)
	sig2, err := s.SignBytes(digest)
	require.NoError(t, err)
	assert.Equal(t, sig1, sig2)
	assert.Equal(t, "0x", sig1[:2])
}

func TestNilSignerReturnsErrors(t *testing.T) {
	var s *Signer
	assert.Equal(t, "0x0000000000000000000000000000000000000000", s.Address().Hex())
	_, err := s.SignBytes([]byte("digest"))
	assert.Error(t, err)
}

func TestFromMnemonicRejectsInvalidMnemonic(t *testing.T) {
	_, err := FromMnemonic("not a valid mnemonic phrase at all", 0)
	assert.Error(t, err)
}

func TestFromMnemonicDerivesConsistentAddress(t *testing.T) {
	mnemonic := "test test test test test test test test test test test junk"
	s1, err := FromMnemonic(mnemonic, 0)
	require.NoError(t, err)
	s2, err := FromMnemonic(mnemonic, 0)
	require.NoError(t, err)
	assert.Equal(t, s1.Address(), s2.Address())

	s3, err := FromMnemonic(mnemonic, 1)
	require.NoError(t, err)
	assert.NotEqual(t, s1.Address(), s3.Address())
}
