package ledger

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"ekyc/pkg/domain"
)

// Keyring resolves which private key signs a call. Wallets with a custodial
// key sign as themselves; everything else falls back to the operator key.
type Keyring struct {
	operator     *ecdsa.PrivateKey
	operatorAddr domain.WalletAddress
	custodial    map[domain.WalletAddress]*ecdsa.PrivateKey
}

// NewKeyring parses hex keys. operatorHex may be empty, in which case only
// custodial wallets can sign. Each custodial key must derive its own address.
func NewKeyring(operatorHex string, custodial map[string]string) (*Keyring, error) {
	k := &Keyring{custodial: make(map[domain.WalletAddress]*ecdsa.PrivateKey, len(custodial))}
	if operatorHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("operator key: %w", err)
		}
		k.operator = key
		k.operatorAddr = domain.WalletFromAddress(crypto.PubkeyToAddress(key.PublicKey))
	}
	for addr, hexKey := range custodial {
		wallet, err := domain.ParseWalletAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("custodial wallet %q: %w", addr, err)
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("custodial key for %s: %w", wallet, err)
		}
		derived := domain.WalletFromAddress(crypto.PubkeyToAddress(key.PublicKey))
		if !derived.Equal(wallet) {
			return nil, fmt.Errorf("custodial key for %s derives %s", wallet, derived)
		}
		k.custodial[wallet] = key
	}
	return k, nil
}

// NewKeyringFromKeys builds a keyring from already-parsed keys (tests, tools).
func NewKeyringFromKeys(operator *ecdsa.PrivateKey, custodial ...*ecdsa.PrivateKey) *Keyring {
	k := &Keyring{custodial: make(map[domain.WalletAddress]*ecdsa.PrivateKey, len(custodial))}
	if operator != nil {
		k.operator = operator
		k.operatorAddr = domain.WalletFromAddress(crypto.PubkeyToAddress(operator.PublicKey))
	}
	for _, key := range custodial {
		k.custodial[domain.WalletFromAddress(crypto.PubkeyToAddress(key.PublicKey))] = key
	}
	return k
}

// Resolve returns the key and its address for signer.
func (k *Keyring) Resolve(signer domain.WalletAddress) (*ecdsa.PrivateKey, domain.WalletAddress, bool) {
	if key, ok := k.custodial[signer]; ok {
		return key, signer, true
	}
	if k.operator != nil {
		return k.operator, k.operatorAddr, true
	}
	return nil, "", false
}

// SignerFor reports which address would sign for signer without exposing the key.
func (k *Keyring) SignerFor(signer domain.WalletAddress) (domain.WalletAddress, bool) {
	_, addr, ok := k.Resolve(signer)
	return addr, ok
}

func (k *Keyring) Operator() domain.WalletAddress { return k.operatorAddr }
