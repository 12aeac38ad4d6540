package models

import (
	"time"

	"ekyc/pkg/domain"
)

// VerificationStatus is the KYC state of the identity itself, independent of
// any single document.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "Pending"
	StatusApproved VerificationStatus = "Approved"
	StatusRejected VerificationStatus = "Rejected"
)

func (s VerificationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Identity is a user of the workflow. Wallet, when set, is unique across
// identities. IsInstitution grants the verifier capability.
type Identity struct {
	ID                 domain.UserID
	Wallet             domain.WalletAddress
	IsInstitution      bool
	VerificationStatus VerificationStatus
	CreatedAt          time.Time
}

// NewWalletIdentity builds the identity created on a first wallet login.
func NewWalletIdentity(wallet domain.WalletAddress, now time.Time) *Identity {
	return &Identity{
		ID:                 domain.NewUserID(),
		Wallet:             wallet,
		IsInstitution:      false,
		VerificationStatus: StatusPending,
		CreatedAt:          now,
	}
}

func (i *Identity) HasWallet() bool { return !i.Wallet.IsZero() }
