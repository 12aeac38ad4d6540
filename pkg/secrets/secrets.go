// Package secrets generates the key material a deployment needs.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"

	"ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
)

// GenerateSigningKey returns a random 256-bit key, base64url-encoded, for
// HMAC token signing.
func GenerateSigningKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate signing key")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// WalletKey is a freshly generated secp256k1 key and its address.
type WalletKey struct {
	PrivateKeyHex string
	Address       domain.WalletAddress
}

func GenerateWalletKey() (*WalletKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate wallet key")
	}
	return &WalletKey{
		PrivateKeyHex: hex.EncodeToString(crypto.FromECDSA(key)),
		Address:       domain.WalletFromAddress(crypto.PubkeyToAddress(key.PublicKey)),
	}, nil
}
