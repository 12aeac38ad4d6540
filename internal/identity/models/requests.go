package models

import (
	"strings"

	"ekyc/pkg/validation"
)

// WalletAuthRequest binds a wallet to an identity after proof of key ownership.
type WalletAuthRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required,wallet"`
	Message       string `json:"message" validate:"required,notblank,max=1024"`
	Signature     string `json:"signature" validate:"required,ethsig"`
}

func (r *WalletAuthRequest) Normalize() {
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
	r.Signature = strings.TrimSpace(r.Signature)
}

func (r *WalletAuthRequest) Validate() error { return validation.Validate(r) }

// VerifySignatureRequest checks a signature without binding anything. An
// empty message means the default login message.
type VerifySignatureRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required,wallet"`
	Message       string `json:"message" validate:"max=1024"`
	Signature     string `json:"signature" validate:"required"`
}

func (r *VerifySignatureRequest) Normalize() {
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
	r.Signature = strings.TrimSpace(r.Signature)
}

func (r *VerifySignatureRequest) Validate() error { return validation.Validate(r) }
