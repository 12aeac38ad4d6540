package testutil

import (
	"time"

	"github.com/google/uuid"

	docmodels "ekyc/internal/document/models"
	idmodels "ekyc/internal/identity/models"
	"ekyc/pkg/domain"
)

// TestIDs provides deterministic IDs for tests.
var TestIDs = struct {
	UserID1     domain.UserID
	UserID2     domain.UserID
	DocumentID1 domain.DocumentID
	DocumentID2 domain.DocumentID
}{
	UserID1:     domain.UserID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	UserID2:     domain.UserID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
	DocumentID1: domain.DocumentID(uuid.MustParse("dddd0000-0000-0000-0000-000000000001")),
	DocumentID2: domain.DocumentID(uuid.MustParse("dddd0000-0000-0000-0000-000000000002")),
}

// FixedTime is the reference clock used by fixtures.
var FixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// IdentityBuilder provides a fluent interface for building test identities.
type IdentityBuilder struct {
	identity *idmodels.Identity
}

func NewIdentityBuilder() *IdentityBuilder {
	return &IdentityBuilder{
		identity: &idmodels.Identity{
			ID:                 domain.NewUserID(),
			VerificationStatus: idmodels.StatusPending,
			CreatedAt:          FixedTime,
		},
	}
}

func (b *IdentityBuilder) WithID(id domain.UserID) *IdentityBuilder {
	b.identity.ID = id
	return b
}

func (b *IdentityBuilder) WithWallet(wallet domain.WalletAddress) *IdentityBuilder {
	b.identity.Wallet = wallet
	return b
}

// AsInstitution grants the verifier capability.
func (b *IdentityBuilder) AsInstitution() *IdentityBuilder {
	b.identity.IsInstitution = true
	return b
}

func (b *IdentityBuilder) WithStatus(status idmodels.VerificationStatus) *IdentityBuilder {
	b.identity.VerificationStatus = status
	return b
}

func (b *IdentityBuilder) Build() *idmodels.Identity {
	cp := *b.identity
	return &cp
}

// DocumentBuilder provides a fluent interface for building document records.
// Defaults describe a freshly uploaded passport without a ledger anchor.
type DocumentBuilder struct {
	record *docmodels.DocumentRecord
}

func NewDocumentBuilder(owner domain.UserID) *DocumentBuilder {
	return &DocumentBuilder{
		record: docmodels.NewDocumentRecord(owner, "bafkreitestcontent", docmodels.TypePassport, "passport.pdf", 1024, "digest", FixedTime),
	}
}

func (b *DocumentBuilder) WithID(id domain.DocumentID) *DocumentBuilder {
	b.record.ID = id
	return b
}

func (b *DocumentBuilder) WithContentID(cid string) *DocumentBuilder {
	b.record.ContentID = cid
	return b
}

func (b *DocumentBuilder) WithType(t docmodels.DocumentType) *DocumentBuilder {
	b.record.DocumentType = t
	return b
}

func (b *DocumentBuilder) WithFile(name string, size int64) *DocumentBuilder {
	b.record.FileName = name
	b.record.FileSize = size
	return b
}

func (b *DocumentBuilder) UploadedAt(t time.Time) *DocumentBuilder {
	b.record.UploadedAt = t
	return b
}

// Anchored sets the upload anchor fields.
func (b *DocumentBuilder) Anchored(txHash string, signer domain.WalletAddress, chainIndex uint64) *DocumentBuilder {
	b.record.AnchorTxHash = txHash
	b.record.AnchorAddress = signer
	b.record.ChainIndex = &chainIndex
	return b
}

// Decided applies a verdict confirmed by txHash. An empty txHash leaves the
// record provisional.
func (b *DocumentBuilder) Decided(verifier domain.UserID, decision docmodels.Status, txHash string) *DocumentBuilder {
	b.record.ApplyDecision(verifier, decision, "", FixedTime)
	b.record.TxHash = txHash
	return b
}

func (b *DocumentBuilder) Build() *docmodels.DocumentRecord {
	return b.record.Clone()
}
