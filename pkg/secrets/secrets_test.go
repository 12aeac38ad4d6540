package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ekyc/pkg/domain"
)

func TestGenerateSigningKey(t *testing.T) {
	a, err := GenerateSigningKey()
	require.NoError(t, err)
	b, err := GenerateSigningKey()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestGenerateWalletKey(t *testing.T) {
	k, err := GenerateWalletKey()
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(k.PrivateKeyHex)
	require.NoError(t, err)
	assert.True(t, k.Address.Equal(domain.WalletFromAddress(crypto.PubkeyToAddress(key.PublicKey))))
}
