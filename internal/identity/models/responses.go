package models

import "time"

type WalletAuthResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresIn   int64            `json:"expires_in"`
	NewAccount  bool             `json:"new_account"`
	Identity    IdentityResponse `json:"identity"`
}

type VerifySignatureResponse struct {
	Valid bool `json:"valid"`
}

type IdentityResponse struct {
	ID                 string    `json:"id"`
	WalletAddress      string    `json:"wallet_address,omitempty"`
	IsInstitution      bool      `json:"is_institution"`
	VerificationStatus string    `json:"verification_status"`
	CreatedAt          time.Time `json:"created_at"`
}

func ToIdentityResponse(i *Identity) IdentityResponse {
	resp := IdentityResponse{
		ID:                 i.ID.String(),
		IsInstitution:      i.IsInstitution,
		VerificationStatus: string(i.VerificationStatus),
		CreatedAt:          i.CreatedAt,
	}
	if i.HasWallet() {
		resp.WalletAddress = i.Wallet.Checksum()
	}
	return resp
}
