package models

import (
	"strings"

	"ekyc/pkg/validation"
)

// VerifyRequest is an institution's verdict on a document.
type VerifyRequest struct {
	Status string `json:"status" validate:"required,oneof=Verified Rejected verified rejected"`
	Notes  string `json:"notes" validate:"max=2000"`
}

func (r *VerifyRequest) Normalize() {
	r.Status = strings.TrimSpace(r.Status)
	r.Notes = strings.TrimSpace(r.Notes)
}

func (r *VerifyRequest) Validate() error { return validation.Validate(r) }
