package models

import (
	"fmt"
	"strings"
	"time"

	"ekyc/pkg/domain"
)

// DocumentType enumerates the accepted identity documents.
type DocumentType string

const (
	TypePassport       DocumentType = "passport"
	TypeDriversLicense DocumentType = "drivers_license"
	TypeNationalID     DocumentType = "national_id"
	TypeUtilityBill    DocumentType = "utility_bill"
	TypeBankStatement  DocumentType = "bank_statement"
)

var documentTypes = []DocumentType{TypePassport, TypeDriversLicense, TypeNationalID, TypeUtilityBill, TypeBankStatement}

func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown document type %q", s)
	}
	return t, nil
}

func (t DocumentType) IsValid() bool {
	for _, known := range documentTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t DocumentType) String() string { return string(t) }

// Status is the document lifecycle state. Verified and Rejected are terminal.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusVerified Status = "Verified"
	StatusRejected Status = "Rejected"
)

func (s Status) IsTerminal() bool { return s == StatusVerified || s == StatusRejected }

// ParseDecision accepts the two verdicts a verifier may record.
func ParseDecision(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verified":
		return StatusVerified, nil
	case "rejected":
		return StatusRejected, nil
	}
	return "", fmt.Errorf("decision must be Verified or Rejected, got %q", s)
}

// DocumentRecord is the authoritative local view of an uploaded document.
//
// AnchorTxHash, AnchorAddress and ChainIndex describe the upload anchor on
// the ledger. TxHash is the verification transaction; while it is empty a
// terminal Status is provisional.
type DocumentRecord struct {
	ID               domain.DocumentID
	OwnerID          domain.UserID
	ContentID        string
	DocumentType     DocumentType
	FileName         string
	FileSize         int64
	Digest           string
	Status           Status
	UploadedAt       time.Time
	VerifiedBy       *domain.UserID
	VerificationDate *time.Time
	Notes            string
	LedgerIndex      domain.LedgerIndex
	AnchorTxHash     string
	AnchorAddress    domain.WalletAddress
	ChainIndex       *uint64
	TxHash           string
}

func NewDocumentRecord(owner domain.UserID, contentID string, docType DocumentType, fileName string, size int64, digest string, now time.Time) *DocumentRecord {
	return &DocumentRecord{
		ID:           domain.NewDocumentID(),
		OwnerID:      owner,
		ContentID:    contentID,
		DocumentType: docType,
		FileName:     fileName,
		FileSize:     size,
		Digest:       digest,
		Status:       StatusPending,
		UploadedAt:   now,
		LedgerIndex:  domain.NewLedgerIndex(),
	}
}

// Clone returns a deep copy.
func (d *DocumentRecord) Clone() *DocumentRecord {
	cp := *d
	if d.VerifiedBy != nil {
		v := *d.VerifiedBy
		cp.VerifiedBy = &v
	}
	if d.VerificationDate != nil {
		t := *d.VerificationDate
		cp.VerificationDate = &t
	}
	if d.ChainIndex != nil {
		i := *d.ChainIndex
		cp.ChainIndex = &i
	}
	return &cp
}

// ApplyDecision writes a verdict. TxHash is cleared until the ledger confirms.
func (d *DocumentRecord) ApplyDecision(verifier domain.UserID, decision Status, notes string, now time.Time) {
	d.Status = decision
	d.VerifiedBy = &verifier
	d.VerificationDate = &now
	d.Notes = notes
	d.TxHash = ""
}

// RestoreVerification copies the verification fields back from a snapshot.
func (d *DocumentRecord) RestoreVerification(snapshot *DocumentRecord) {
	s := snapshot.Clone()
	d.Status = s.Status
	d.VerifiedBy = s.VerifiedBy
	d.VerificationDate = s.VerificationDate
	d.Notes = s.Notes
	d.TxHash = s.TxHash
}

// HasChainSlot reports whether the record knows its on-chain position.
func (d *DocumentRecord) HasChainSlot() bool {
	return d.ChainIndex != nil && !d.AnchorAddress.IsZero()
}

// IsProvisional reports a terminal status not yet backed by a transaction.
func (d *DocumentRecord) IsProvisional() bool {
	return d.Status.IsTerminal() && d.TxHash == ""
}

// CheckInvariants validates the verifier pairing rules.
func (d *DocumentRecord) CheckInvariants() error {
	if (d.VerifiedBy == nil) != (d.VerificationDate == nil) {
		return fmt.Errorf("verified_by and verification_date must be set together")
	}
	if d.Status.IsTerminal() && d.VerifiedBy == nil {
		return fmt.Errorf("status %s requires a verifier", d.Status)
	}
	return nil
}

// VerificationEvent is an append-only record of a confirmed verdict.
type VerificationEvent struct {
	ID         domain.EventID
	DocumentID domain.DocumentID
	VerifierID domain.UserID
	Status     Status
	Notes      string
	TxHash     string
	CreatedAt  time.Time
}

// ListFilter narrows owner listings.
type ListFilter struct {
	Status        *Status
	ExcludeStatus *Status
	NameContains  string
}
