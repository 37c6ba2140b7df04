package wallet

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/vaultgate/pkg/secretstore"
)

const testMnemonic = "tag volcano eight thank tide danger coast health above argue embrace heavy"

func TestFromMnemonic(t *testing.T) {
	s, err := FromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xC49926C4124cEe1cbA0Ea94Ea31a6c12318df947"), s.Address)
	assert.Equal(t, s.Address, crypto.PubkeyToAddress(s.Key.PublicKey))

	second, err := FromMnemonic(testMnemonic, "m/44'/60'/0'/0/1")
	require.NoError(t, err)
	assert.NotEqual(t, s.Address, second.Address)
}

func TestFromMnemonic_Invalid(t *testing.T) {
	_, err := FromMnemonic("", "")
	require.Error(t, err)
	_, err = FromMnemonic(testMnemonic, "not/a/path")
	require.Error(t, err)
}

func TestFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw := hex.EncodeToString(crypto.FromECDSA(key))

	for _, in := range []string{raw, "0x" + raw, "  " + raw + "\n"} {
		s, err := FromHex(in)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address)
	}
	_, err = FromHex("zz")
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	_, err := Load("", "", "")
	require.Error(t, err)

	s, err := Load("", testMnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xC49926C4124cEe1cbA0Ea94Ea31a6c12318df947"), s.Address)
}

func TestFromSecretStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "secrets")
	rawKey := strings.Repeat("2a", 32)
	key, err := secretstore.ParseKey(rawKey)
	require.NoError(t, err)

	ss, err := secretstore.Open(secretstore.OpenOptions{Path: dir, EncryptionKey: key})
	require.NoError(t, err)
	require.NoError(t, ss.SetString(secretstore.KeyMnemonic, testMnemonic))
	require.NoError(t, ss.Close())

	s, err := FromSecretStore(dir, rawKey, "")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xC49926C4124cEe1cbA0Ea94Ea31a6c12318df947"), s.Address)

	_, err = FromSecretStore(dir, "", "")
	require.Error(t, err)
}
