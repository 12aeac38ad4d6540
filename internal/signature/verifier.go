// Package signature recovers wallet addresses from personal-message signatures.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"ekyc/pkg/domain"
)

// DefaultLoginMessage is signed by wallets when the client supplies no message.
const DefaultLoginMessage = "Please sign this message to authenticate."

var (
	ErrSignatureLength   = errors.New("signature must be 65 bytes")
	ErrRecoveryByte      = errors.New("signature recovery byte must be 0, 1, 27 or 28")
	ErrRecoveryFailed    = errors.New("public key recovery failed")
	ErrMalformedHexInput = errors.New("signature is not valid hex")
)

// Verifier checks that a personal message was signed by a claimed wallet.
// It holds no state and is safe for concurrent use.
type Verifier struct{}

func NewVerifier() *Verifier { return &Verifier{} }

// Verify reports whether signature over message recovers to claimed.
// Malformed input yields false.
func (v *Verifier) Verify(message string, signature []byte, claimed domain.WalletAddress) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if claimed.IsZero() {
		return false
	}
	addr, err := Recover(message, signature)
	if err != nil {
		return false
	}
	return strings.EqualFold(addr.Hex(), claimed.String())
}

// VerifyHex is Verify for a 0x-prefixed hex signature as wallets return it.
func (v *Verifier) VerifyHex(message, signatureHex string, claimed domain.WalletAddress) bool {
	sig, err := DecodeHex(signatureHex)
	if err != nil {
		return false
	}
	return v.Verify(message, sig, claimed)
}

// Recover returns the address whose key produced signature over the
// "\x19Ethereum Signed Message:\n<len>" framed message.
func Recover(message string, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, ErrSignatureLength
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	switch sig[crypto.RecoveryIDOffset] {
	case 0, 1:
	case 27, 28:
		sig[crypto.RecoveryIDOffset] -= 27
	default:
		return common.Address{}, ErrRecoveryByte
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil || pub == nil {
		return common.Address{}, ErrRecoveryFailed
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// DecodeHex decodes a 0x-prefixed (or bare) hex signature.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, ErrMalformedHexInput
	}
	return b, nil
}

// Sign produces a personal-message signature with v in {27, 28}. Used by
// custodial signers and tests.
func Sign(message string, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
