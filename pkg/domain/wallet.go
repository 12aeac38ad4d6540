package domain

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "ekyc/pkg/domain-errors"
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// WalletAddress is a lower-cased 0x-prefixed hex address. Addresses are
// checksum-agnostic, so two spellings of the same account compare equal.
type WalletAddress string

// ParseWalletAddress validates the 42-char hex form and normalizes case.
func ParseWalletAddress(s string) (WalletAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "wallet address cannot be empty")
	}
	if !walletPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "wallet address must match ^0x[0-9a-fA-F]{40}$")
	}
	return WalletAddress(strings.ToLower(s)), nil
}

// WalletFromAddress converts a go-ethereum address.
func WalletFromAddress(a common.Address) WalletAddress {
	return WalletAddress(strings.ToLower(a.Hex()))
}

func (w WalletAddress) String() string { return string(w) }
func (w WalletAddress) IsZero() bool   { return w == "" }

// Address returns the go-ethereum form of the wallet.
func (w WalletAddress) Address() common.Address { return common.HexToAddress(string(w)) }

// Checksum returns the EIP-55 mixed-case spelling.
func (w WalletAddress) Checksum() string { return w.Address().Hex() }

// Equal compares two addresses ignoring case.
func (w WalletAddress) Equal(other WalletAddress) bool {
	return strings.EqualFold(string(w), string(other))
}
