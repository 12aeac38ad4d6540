package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ekyc/internal/audit"
	"ekyc/internal/contentstore"
	"ekyc/internal/document/models"
	"ekyc/internal/document/service/mocks"
	"ekyc/internal/document/store"
	idmodels "ekyc/internal/identity/models"
	idservice "ekyc/internal/identity/service"
	idstore "ekyc/internal/identity/store"
	"ekyc/internal/ledger"
	"ekyc/internal/ledger/watcher"
	"ekyc/internal/signature"
	"ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/platform/sentinel"
	"ekyc/pkg/testutil"
)

var (
	operator    = domain.WalletAddress("0x1111111111111111111111111111111111111111")
	ownerWallet = domain.WalletAddress("0x52908400098527886e0f7030069857d2e4169ee7")
	bankWallet  = domain.WalletAddress("0x8617e340b3d01fa5f11f306f4090fd50e238070d")
	fixedAt     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// LifecycleSuite runs the service against in-memory collaborators.
type LifecycleSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	notifier   *mocks.MockNotifier
	docs       *store.InMemoryStore
	identities *idstore.InMemoryStore
	content    *contentstore.MemoryStore
	ledger     *ledger.MemoryLedger
	auditStore *audit.InMemoryStore
	service    *Service

	owner    *idmodels.Identity
	verifier *idmodels.Identity
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.docs = store.NewInMemory()
	s.identities = idstore.NewInMemory()
	s.content = contentstore.NewMemoryStore("https://gateway.test/ipfs/")
	s.ledger = ledger.NewMemoryLedger(operator)
	s.ledger.AddVerifierDirect(bankWallet)
	s.auditStore = audit.NewInMemoryStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader := idservice.NewService(s.identities, signature.NewVerifier(), logger)
	s.service = NewService(s.docs, reader, s.content, s.ledger, logger,
		WithNotifier(s.notifier),
		WithAuditor(audit.NewPublisher(s.auditStore)),
		WithClock(func() time.Time { return fixedAt }),
	)

	s.owner = s.createIdentity(ownerWallet, false)
	s.verifier = s.createIdentity(bankWallet, true)
}

func (s *LifecycleSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *LifecycleSuite) createIdentity(wallet domain.WalletAddress, institution bool) *idmodels.Identity {
	identity := idmodels.NewWalletIdentity(wallet, fixedAt)
	identity.IsInstitution = institution
	s.Require().NoError(s.identities.Create(context.Background(), identity))
	return identity
}

func (s *LifecycleSuite) upload(owner domain.UserID) *models.DocumentRecord {
	result, err := s.service.Upload(context.Background(), owner, []byte("passport scan"), "passport.pdf", "passport")
	s.Require().NoError(err)
	return result.Record
}

func (s *LifecycleSuite) TestUpload() {
	ctx := context.Background()

	s.Run("wallet-bound owner is anchored with its chain slot", func() {
		result, err := s.service.Upload(ctx, s.owner.ID, []byte("first"), "id.png", "national_id")
		s.Require().NoError(err)
		s.Nil(result.Advisory)

		record := result.Record
		s.Equal(models.StatusPending, record.Status)
		s.NotEmpty(record.ContentID)
		s.NotEmpty(record.AnchorTxHash)
		s.Empty(record.TxHash)
		s.True(record.AnchorAddress.Equal(ownerWallet))
		s.Require().NotNil(record.ChainIndex)
		s.Equal(uint64(0), *record.ChainIndex)

		second, err := s.service.Upload(ctx, s.owner.ID, []byte("second"), "bill.pdf", "utility_bill")
		s.Require().NoError(err)
		s.Require().NotNil(second.Record.ChainIndex)
		s.Equal(uint64(1), *second.Record.ChainIndex)

		stored, err := s.docs.FindByID(ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(record.AnchorTxHash, stored.AnchorTxHash)
	})

	s.Run("wallet-less owner skips the ledger", func() {
		walletless := &idmodels.Identity{ID: domain.NewUserID(), VerificationStatus: idmodels.StatusPending, CreatedAt: fixedAt}
		s.Require().NoError(s.identities.Create(ctx, walletless))
		calls := len(s.ledger.Calls())

		result, err := s.service.Upload(ctx, walletless.ID, []byte("scan"), "scan.jpg", "drivers_license")
		s.Require().NoError(err)
		s.Require().NotNil(result.Advisory)
		s.Equal(models.AdvisoryLedgerSkipped, result.Advisory.Code)
		s.Equal(models.StatusPending, result.Record.Status)
		s.Empty(result.Record.AnchorTxHash)
		s.Empty(result.Record.TxHash)
		s.Len(s.ledger.Calls(), calls)
	})

	s.Run("ledger failure still persists the record with an advisory", func() {
		s.ledger.FailNext(&ledger.Error{Kind: ledger.KindUnavailable, Method: ledger.MethodUploadDocument, Message: "connection refused"})

		result, err := s.service.Upload(ctx, s.owner.ID, []byte("statement"), "statement.pdf", "bank_statement")
		s.Require().NoError(err)
		s.Require().NotNil(result.Advisory)
		s.Equal(models.AdvisoryLedgerFailed, result.Advisory.Code)
		s.Equal(string(dErrors.CodeLedgerUnavailable), result.Advisory.Cause)

		stored, err := s.docs.FindByID(ctx, result.Record.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, stored.Status)
		s.NotEmpty(stored.ContentID)
		s.Empty(stored.AnchorTxHash)
		s.Empty(stored.TxHash)
		s.False(stored.HasChainSlot())
	})

	s.Run("content store failure creates nothing", func() {
		for _, failure := range []*contentstore.Error{
			{Kind: contentstore.KindUnavailable, Backend: "memory", Message: "down"},
			{Kind: contentstore.KindRejected, Backend: "memory", Message: "bad credentials", StatusCode: 401},
		} {
			s.content.FailWith(failure)
			before, err := s.docs.ListByOwner(ctx, s.owner.ID, models.ListFilter{})
			s.Require().NoError(err)

			_, err = s.service.Upload(ctx, s.owner.ID, []byte("x"), "x.pdf", "passport")
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeUploadFailed))
			s.ErrorIs(err, failure)

			after, err := s.docs.ListByOwner(ctx, s.owner.ID, models.ListFilter{})
			s.Require().NoError(err)
			s.Len(after, len(before))
		}
		s.content.FailWith(nil)
	})

	s.Run("invalid input", func() {
		_, err := s.service.Upload(ctx, s.owner.ID, []byte("x"), "x.pdf", "birth_certificate")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = s.service.Upload(ctx, s.owner.ID, nil, "x.pdf", "passport")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = s.service.Upload(ctx, s.owner.ID, []byte("x"), "   ", "passport")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown owner", func() {
		_, err := s.service.Upload(ctx, domain.NewUserID(), []byte("x"), "x.pdf", "passport")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *LifecycleSuite) TestVerify_Success() {
	ctx := context.Background()
	record := s.upload(s.owner.ID)

	s.notifier.EXPECT().
		Notify(gomock.Any(), s.owner.ID, "Your document 'passport.pdf' has been verified.").
		Return(nil)

	result, err := s.service.Verify(ctx, s.verifier.ID, record.ID, "Verified", "looks good")
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, result.Record.Status)
	s.NotEmpty(result.Record.TxHash)
	s.False(result.Record.IsProvisional())

	events, err := s.docs.ListEvents(ctx, record.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(result.Record.TxHash, events[0].TxHash)
	s.Equal(s.verifier.ID, events[0].VerifierID)
	s.Equal(models.StatusVerified, events[0].Status)

	stored, err := s.docs.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(events[0].TxHash, stored.TxHash)
	s.Require().NotNil(stored.VerifiedBy)
	s.Equal(s.verifier.ID, *stored.VerifiedBy)
	s.Equal(fixedAt, *stored.VerificationDate)
	s.NoError(stored.CheckInvariants())

	onChain, err := s.ledger.GetDocument(ctx, ownerWallet, *stored.ChainIndex)
	s.Require().NoError(err)
	s.Equal("Verified", onChain.Status)
	s.True(onChain.Verifier.Equal(bankWallet))

	s.Contains(s.auditStore.Actions(s.verifier.ID.String()), string(audit.EventDocumentVerified))
	trail := s.auditStore.ListByDocument(record.ID.String())
	s.Require().Len(trail, 2)
	s.Equal(string(audit.EventDocumentUploaded), trail[0].Action)
	s.Equal(s.owner.ID.String(), trail[0].UserID)
	s.Equal(events[0].TxHash, trail[1].TxHash)
}

func (s *LifecycleSuite) TestVerify_RollbackRestoresExactState() {
	ctx := context.Background()

	cases := []struct {
		name    string
		failure error
		code    dErrors.Code
	}{
		{"timeout", &ledger.Error{Kind: ledger.KindTimeout, Method: ledger.MethodVerifyDocument, Message: "no receipt"}, dErrors.CodeLedgerTimeout},
		{"unavailable", &ledger.Error{Kind: ledger.KindUnavailable, Method: ledger.MethodVerifyDocument, Message: "dial tcp"}, dErrors.CodeLedgerUnavailable},
		{"reverted", &ledger.Error{Kind: ledger.KindRejected, Method: ledger.MethodVerifyDocument, Message: "execution reverted"}, dErrors.CodeLedgerRejected},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			record := s.upload(s.owner.ID)
			before, err := s.docs.FindByID(ctx, record.ID)
			s.Require().NoError(err)

			s.ledger.FailNext(tc.failure)
			_, err = s.service.Verify(ctx, s.verifier.ID, record.ID, "Verified", "approved")
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
			s.ErrorIs(err, &dErrors.Error{Code: tc.code})

			after, err := s.docs.FindByID(ctx, record.ID)
			s.Require().NoError(err)
			s.Equal(before, after)

			events, err := s.docs.ListEvents(ctx, record.ID)
			s.Require().NoError(err)
			s.Empty(events)
		})
	}
	s.Contains(s.auditStore.Actions(s.verifier.ID.String()), string(audit.EventVerificationRolledBack))
}

func (s *LifecycleSuite) TestVerify_RollbackOfReverification() {
	ctx := context.Background()
	record := s.upload(s.owner.ID)

	s.notifier.EXPECT().Notify(gomock.Any(), s.owner.ID, gomock.Any()).Return(nil)
	_, err := s.service.Verify(ctx, s.verifier.ID, record.ID, "Rejected", "blurry")
	s.Require().NoError(err)
	before, err := s.docs.FindByID(ctx, record.ID)
	s.Require().NoError(err)

	s.ledger.FailNext(&ledger.Error{Kind: ledger.KindTimeout, Method: ledger.MethodVerifyDocument, Message: "no receipt"})
	_, err = s.service.Verify(ctx, s.verifier.ID, record.ID, "Verified", "rescanned")
	s.Require().Error(err)

	after, err := s.docs.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(before, after)
	s.Equal(models.StatusRejected, after.Status)

	events, err := s.docs.ListEvents(ctx, record.ID)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *LifecycleSuite) TestVerify_Preconditions() {
	ctx := context.Background()
	record := s.upload(s.owner.ID)

	s.Run("non-institution is forbidden", func() {
		_, err := s.service.Verify(ctx, s.owner.ID, record.ID, "Verified", "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown verifier is forbidden", func() {
		_, err := s.service.Verify(ctx, domain.NewUserID(), record.ID, "Verified", "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown document", func() {
		_, err := s.service.Verify(ctx, s.verifier.ID, domain.NewDocumentID(), "Verified", "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("bad decision", func() {
		_, err := s.service.Verify(ctx, s.verifier.ID, record.ID, "Pending", "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("document without chain slot", func() {
		s.ledger.FailNext(&ledger.Error{Kind: ledger.KindUnavailable, Method: ledger.MethodUploadDocument, Message: "down"})
		unanchored := s.upload(s.owner.ID)

		_, err := s.service.Verify(ctx, s.verifier.ID, unanchored.ID, "Verified", "")
		s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
		s.ErrorIs(err, ledger.ErrRejected)

		stored, err := s.docs.FindByID(ctx, unanchored.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, stored.Status)
		s.Nil(stored.VerifiedBy)
	})

	s.Run("verifier without ledger role is rejected and rolled back", func() {
		rogue := s.createIdentity("0x9999999999999999999999999999999999999999", true)

		_, err := s.service.Verify(ctx, rogue.ID, record.ID, "Verified", "")
		s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
		s.ErrorIs(err, ledger.ErrRejected)

		stored, err := s.docs.FindByID(ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, stored.Status)
	})
}

func (s *LifecycleSuite) TestVerify_NotificationFailureIsSwallowed() {
	record := s.upload(s.owner.ID)
	s.notifier.EXPECT().Notify(gomock.Any(), s.owner.ID, gomock.Any()).Return(errors.New("broker down"))

	result, err := s.service.Verify(context.Background(), s.verifier.ID, record.ID, "verified", "")
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, result.Record.Status)
}

func (s *LifecycleSuite) TestVerify_SurvivesCallerCancellation() {
	record := s.upload(s.owner.ID)
	s.ledger.SetConfirmationDelay(20 * time.Millisecond)
	s.notifier.EXPECT().Notify(gomock.Any(), s.owner.ID, gomock.Any()).Return(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	result, err := s.service.Verify(ctx, s.verifier.ID, record.ID, "Verified", "")
	s.Require().NoError(err)
	s.NotEmpty(result.Record.TxHash)
}

func (s *LifecycleSuite) TestEndToEnd_PassportRejected() {
	ctx := context.Background()
	file := bytes.Repeat([]byte{0xA5}, 1024)

	uploaded, err := s.service.Upload(ctx, s.owner.ID, file, "passport.jpg", "passport")
	s.Require().NoError(err)
	s.Nil(uploaded.Advisory)
	s.NotEmpty(uploaded.Record.ID.String())
	s.NotEmpty(uploaded.Record.ContentID)
	s.NotEmpty(uploaded.Record.AnchorTxHash)
	s.Equal(int64(1024), uploaded.Record.FileSize)

	s.notifier.EXPECT().
		Notify(gomock.Any(), s.owner.ID, "Your document 'passport.jpg' has been rejected.").
		Return(nil)

	verified, err := s.service.Verify(ctx, s.verifier.ID, uploaded.Record.ID, "Rejected", "expired")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, verified.Record.Status)

	events, err := s.service.ListEvents(ctx, s.owner.ID, uploaded.Record.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(verified.Record.TxHash, events[0].TxHash)

	blob, ok := s.content.Get(uploaded.Record.ContentID)
	s.Require().True(ok)
	s.Equal(file, blob)
}

func (s *LifecycleSuite) TestReadSide() {
	ctx := context.Background()
	a := s.upload(s.owner.ID)
	_, err := s.service.Upload(ctx, s.owner.ID, []byte("bill"), "Electricity-Bill.pdf", "utility_bill")
	s.Require().NoError(err)

	s.notifier.EXPECT().Notify(gomock.Any(), s.owner.ID, gomock.Any()).Return(nil)
	_, err = s.service.Verify(ctx, s.verifier.ID, a.ID, "Verified", "")
	s.Require().NoError(err)

	all, err := s.service.ListByOwner(ctx, s.owner.ID)
	s.Require().NoError(err)
	s.Len(all, 2)

	history, err := s.service.History(ctx, s.owner.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(a.ID, history[0].ID)

	found, err := s.service.Search(ctx, s.owner.ID, "bill")
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("Electricity-Bill.pdf", found[0].FileName)

	pending, err := s.service.ListPending(ctx, s.verifier.ID)
	s.Require().NoError(err)
	s.Len(pending, 1)

	_, err = s.service.ListPending(ctx, s.owner.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.Get(ctx, s.verifier.ID, a.ID)
	s.NoError(err)

	stranger := s.createIdentity("0x2222222222222222222222222222222222222222", false)
	_, err = s.service.Get(ctx, stranger.ID, a.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	locator, err := s.service.Locator(a)
	s.Require().NoError(err)
	s.Equal("https://gateway.test/ipfs/"+a.ContentID, locator)
}

func (s *LifecycleSuite) TestReconcileAnchor() {
	ctx := context.Background()
	s.ledger.FailNext(&ledger.Error{Kind: ledger.KindTimeout, Method: ledger.MethodUploadDocument, Message: "no receipt"})
	record := s.upload(s.owner.ID)
	s.Require().False(record.HasChainSlot())

	updated, err := s.service.ReconcileAnchor(ctx, ledger.Anchor{
		Owner:      ownerWallet,
		ContentID:  record.ContentID,
		TxHash:     "0xabc",
		ChainIndex: 4,
	})
	s.Require().NoError(err)
	s.True(updated)

	stored, err := s.docs.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal("0xabc", stored.AnchorTxHash)
	s.True(stored.HasChainSlot())
	s.Equal(uint64(4), *stored.ChainIndex)

	updated, err = s.service.ReconcileAnchor(ctx, ledger.Anchor{Owner: ownerWallet, ContentID: record.ContentID, TxHash: "0xdef"})
	s.Require().NoError(err)
	s.False(updated)
}

func (s *LifecycleSuite) TestReconcileAnchor_MatchesOnlyTheSigningOwner() {
	ctx := context.Background()
	walletless := &idmodels.Identity{ID: domain.NewUserID(), VerificationStatus: idmodels.StatusPending, CreatedAt: fixedAt}
	s.Require().NoError(s.identities.Create(ctx, walletless))
	other := s.createIdentity("0x3333333333333333333333333333333333333333", false)
	shared := []byte("shared bill")

	skipped, err := s.service.Upload(ctx, walletless.ID, shared, "bill.pdf", "utility_bill")
	s.Require().NoError(err)
	s.ledger.FailNext(&ledger.Error{Kind: ledger.KindTimeout, Method: ledger.MethodUploadDocument, Message: "no receipt"})
	unanchored, err := s.service.Upload(ctx, other.ID, shared, "bill.pdf", "utility_bill")
	s.Require().NoError(err)
	anchored, err := s.service.Upload(ctx, s.owner.ID, shared, "bill.pdf", "utility_bill")
	s.Require().NoError(err)
	s.Require().Nil(anchored.Advisory)
	s.Equal(skipped.Record.ContentID, anchored.Record.ContentID)

	// The owner's own upload log is already recorded and must not move.
	w := watcher.New(s.ledger, s.ledger, s.service, time.Second, 1, 100)
	applied, err := w.Poll(ctx)
	s.Require().NoError(err)
	s.Zero(applied)

	for _, id := range []domain.DocumentID{skipped.Record.ID, unanchored.Record.ID} {
		stored, err := s.docs.FindByID(ctx, id)
		s.Require().NoError(err)
		s.Empty(stored.AnchorTxHash)
		s.False(stored.HasChainSlot())
	}
	owned, err := s.docs.FindByID(ctx, anchored.Record.ID)
	s.Require().NoError(err)
	s.Equal(anchored.Record.AnchorTxHash, owned.AnchorTxHash)

	// A log from a third wallet matches nobody.
	updated, err := s.service.ReconcileAnchor(ctx, ledger.Anchor{
		Owner:     "0x4444444444444444444444444444444444444444",
		ContentID: skipped.Record.ContentID,
		TxHash:    "0x01",
	})
	s.Require().NoError(err)
	s.False(updated)

	// The other wallet's log skips the older wallet-less record.
	updated, err = s.service.ReconcileAnchor(ctx, ledger.Anchor{
		Owner:      other.Wallet,
		ContentID:  skipped.Record.ContentID,
		TxHash:     "0x02",
		ChainIndex: 0,
	})
	s.Require().NoError(err)
	s.True(updated)

	stored, err := s.docs.FindByID(ctx, unanchored.Record.ID)
	s.Require().NoError(err)
	s.Equal("0x02", stored.AnchorTxHash)
	s.True(stored.HasChainSlot())
	stored, err = s.docs.FindByID(ctx, skipped.Record.ID)
	s.Require().NoError(err)
	s.Empty(stored.AnchorTxHash)

	_, err = s.service.Verify(ctx, s.verifier.ID, skipped.Record.ID, "Verified", "")
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
}

// countFailingLedger includes transactions but cannot read document counts.
type countFailingLedger struct {
	*ledger.MemoryLedger
}

func (countFailingLedger) GetDocumentCountAt(context.Context, domain.WalletAddress, uint64) (uint64, error) {
	return 0, ledger.ErrUnavailable
}

func (s *LifecycleSuite) TestUpload_UnreadableCountKeepsAnchorTx() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(s.docs, idservice.NewService(s.identities, signature.NewVerifier(), logger),
		s.content, countFailingLedger{s.ledger}, logger, WithClock(func() time.Time { return fixedAt }))

	s.ledger.FailNext(&ledger.Error{Kind: ledger.KindTimeout, Method: ledger.MethodUploadDocument, Message: "no receipt"})
	earlier, err := svc.Upload(ctx, s.owner.ID, []byte("lease"), "lease.pdf", "utility_bill")
	s.Require().NoError(err)
	s.Require().NotNil(earlier.Advisory)
	s.Equal(models.AdvisoryLedgerFailed, earlier.Advisory.Code)

	result, err := svc.Upload(ctx, s.owner.ID, []byte("lease"), "lease.pdf", "utility_bill")
	s.Require().NoError(err)
	s.Require().NotNil(result.Advisory)
	s.Equal(models.AdvisoryAnchorNotRecorded, result.Advisory.Code)

	stored, err := s.docs.FindByID(ctx, result.Record.ID)
	s.Require().NoError(err)
	s.NotEmpty(stored.AnchorTxHash)
	s.Contains(result.Advisory.Message, stored.AnchorTxHash)
	s.True(stored.AnchorAddress.Equal(ownerWallet))
	s.Nil(stored.ChainIndex)
	s.False(stored.HasChainSlot())

	w := watcher.New(s.ledger, s.ledger, svc, time.Second, 1, 100)
	applied, err := w.Poll(ctx)
	s.Require().NoError(err)
	s.Equal(1, applied)

	stored, err = s.docs.FindByID(ctx, result.Record.ID)
	s.Require().NoError(err)
	s.Require().True(stored.HasChainSlot())
	s.Equal(uint64(0), *stored.ChainIndex)

	untouched, err := s.docs.FindByID(ctx, earlier.Record.ID)
	s.Require().NoError(err)
	s.Empty(untouched.AnchorTxHash)
}

func (s *LifecycleSuite) TestReconcileVerification_IgnoresRecordedVerdicts() {
	ctx := context.Background()
	record := s.upload(s.owner.ID)
	s.notifier.EXPECT().Notify(gomock.Any(), s.owner.ID, gomock.Any()).Return(nil)
	result, err := s.service.Verify(ctx, s.verifier.ID, record.ID, "Verified", "")
	s.Require().NoError(err)

	w := watcher.New(s.ledger, s.ledger, s.service, time.Second, 1, 100)
	applied, err := w.Poll(ctx)
	s.Require().NoError(err)
	s.Zero(applied)

	updated, err := s.service.ReconcileVerification(ctx, ledger.VerifiedEvent{
		Owner:    ownerWallet,
		Verifier: bankWallet,
		DocIndex: *result.Record.ChainIndex,
		Status:   "Verified",
		TxHash:   result.Record.TxHash,
	})
	s.Require().NoError(err)
	s.False(updated)

	events, err := s.docs.ListEvents(ctx, record.ID)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func TestVerify_FinalizeFailureIsRepairedFromLedger(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	identities := mocks.NewMockIdentityReader(ctrl)
	ldg := ledger.NewMemoryLedger(operator)
	ldg.AddVerifierDirect(bankWallet)

	ctx := context.Background()
	receipt, err := ldg.Submit(ctx, ledger.Call{Method: ledger.MethodUploadDocument, Args: ledger.UploadArgs("bafy", "passport"), Signer: ownerWallet})
	require.NoError(t, err)

	verifier := testutil.NewIdentityBuilder().WithWallet(bankWallet).AsInstitution().Build()
	record := testutil.NewDocumentBuilder(testutil.TestIDs.UserID1).
		WithContentID("bafy").
		Anchored(receipt.TxHash, ownerWallet, 0).
		Build()

	current := record.Clone()
	identities.EXPECT().Get(gomock.Any(), verifier.ID).Return(verifier, nil).AnyTimes()
	mockStore.EXPECT().FindByID(gomock.Any(), record.ID).DoAndReturn(
		func(context.Context, domain.DocumentID) (*models.DocumentRecord, error) {
			return current.Clone(), nil
		}).AnyTimes()
	mockStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, r *models.DocumentRecord) error {
			current = r.Clone()
			return nil
		}).AnyTimes()

	var appended *models.VerificationEvent
	gomock.InOrder(
		mockStore.EXPECT().AppendEvent(gomock.Any(), gomock.Any()).Return(sentinel.ErrNotFound),
		mockStore.EXPECT().AppendEvent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e *models.VerificationEvent) error {
				appended = e
				return nil
			}),
	)

	svc := NewService(mockStore, identities, contentstore.NewMemoryStore(""), ldg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err = svc.Verify(ctx, verifier.ID, record.ID, "Verified", "clear scan")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	assert.True(t, current.IsProvisional())
	assert.Equal(t, models.StatusVerified, current.Status)

	head, err := ldg.LatestBlock(ctx)
	require.NoError(t, err)
	verified, err := ldg.VerifiedEvents(ctx, 1, head)
	require.NoError(t, err)
	require.Len(t, verified, 1)

	mockStore.EXPECT().FindByAnchorTx(gomock.Any(), receipt.TxHash).DoAndReturn(
		func(context.Context, string) (*models.DocumentRecord, error) { return current.Clone(), nil })
	mockStore.EXPECT().FindByChainSlot(gomock.Any(), ownerWallet, uint64(0)).DoAndReturn(
		func(context.Context, domain.WalletAddress, uint64) (*models.DocumentRecord, error) { return current.Clone(), nil })
	mockStore.EXPECT().ListEvents(gomock.Any(), record.ID).Return(nil, nil)

	w := watcher.New(ldg, ldg, svc, time.Second, 1, 100)
	applied, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	assert.False(t, current.IsProvisional())
	assert.Equal(t, verified[0].TxHash, current.TxHash)
	require.NotNil(t, appended)
	assert.Equal(t, verified[0].TxHash, appended.TxHash)
	assert.Equal(t, verifier.ID, appended.VerifierID)
	assert.Equal(t, models.StatusVerified, appended.Status)
	assert.Equal(t, "clear scan", appended.Notes)
}

func TestVerify_SerializesPerDocument(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	identities := idstore.NewInMemory()
	docs := store.NewInMemory()
	ldg := ledger.NewMemoryLedger(operator)
	ldg.AddVerifierDirect(bankWallet)
	ldg.SetConfirmationDelay(5 * time.Millisecond)

	owner := idmodels.NewWalletIdentity(ownerWallet, fixedAt)
	verifier := idmodels.NewWalletIdentity(bankWallet, fixedAt)
	verifier.IsInstitution = true
	require.NoError(t, identities.Create(ctx, owner))
	require.NoError(t, identities.Create(ctx, verifier))

	svc := NewService(docs, idservice.NewService(identities, signature.NewVerifier(), logger),
		contentstore.NewMemoryStore(""), ldg, logger)
	uploaded, err := svc.Upload(ctx, owner.ID, []byte("doc"), "doc.pdf", "passport")
	require.NoError(t, err)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		decision := "Verified"
		if i%2 == 1 {
			decision = "Rejected"
		}
		go func() {
			_, err := svc.Verify(ctx, verifier.ID, uploaded.Record.ID, decision, "")
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}

	events, err := docs.ListEvents(ctx, uploaded.Record.ID)
	require.NoError(t, err)
	require.Len(t, events, 4)

	stored, err := docs.FindByID(ctx, uploaded.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, events[3].TxHash, stored.TxHash)
	assert.Equal(t, events[3].Status, stored.Status)
}
