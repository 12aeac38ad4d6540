//go:build integration

package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ekyc/internal/document/models"
	"ekyc/pkg/domain"
	"ekyc/pkg/platform/sentinel"
	"ekyc/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
	owner    domain.UserID
	verifier domain.UserID
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateAll(ctx))
	s.owner = s.postgres.CreateTestIdentity(ctx, s.T(), "0x52908400098527886e0f7030069857d2e4169ee7", false)
	s.verifier = s.postgres.CreateTestIdentity(ctx, s.T(), "0x8617e340b3d01fa5f11f306f4090fd50e238070d", true)
}

func (s *PostgresStoreSuite) newRecord(name, contentID string, at time.Time) *models.DocumentRecord {
	r := models.NewDocumentRecord(s.owner, contentID, models.TypeNationalID, name, 2048, "abc123", at.UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.store.Create(context.Background(), r))
	return r
}

func (s *PostgresStoreSuite) TestRoundTripWithAnchorAndVerification() {
	ctx := context.Background()
	now := time.Now()
	r := s.newRecord("id-card.png", "bafkreiexample", now)

	found, err := s.store.FindByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, found.Status)
	s.Nil(found.VerifiedBy)
	s.Nil(found.ChainIndex)
	s.Empty(found.AnchorTxHash)
	s.Equal(r.LedgerIndex, found.LedgerIndex)
	s.True(r.UploadedAt.Equal(found.UploadedAt))

	index := uint64(7)
	found.AnchorTxHash = "0x" + "a1b2"
	found.AnchorAddress = "0x52908400098527886e0f7030069857d2e4169ee7"
	found.ChainIndex = &index
	found.ApplyDecision(s.verifier, models.StatusVerified, "ok", now.UTC().Truncate(time.Microsecond))
	found.TxHash = "0xbeef"
	s.Require().NoError(s.store.Update(ctx, found))

	again, err := s.store.FindByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, again.Status)
	s.Require().NotNil(again.VerifiedBy)
	s.Equal(s.verifier, *again.VerifiedBy)
	s.Require().NotNil(again.ChainIndex)
	s.Equal(uint64(7), *again.ChainIndex)
	s.Equal("0xbeef", again.TxHash)
	s.Equal("0xa1b2", again.AnchorTxHash)
	s.True(again.HasChainSlot())
	s.NoError(again.CheckInvariants())

	_, err = s.store.FindByID(ctx, domain.NewDocumentID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRollbackWriteClearsVerification() {
	ctx := context.Background()
	r := s.newRecord("p.pdf", "cid", time.Now())
	snapshot := r.Clone()

	r.ApplyDecision(s.verifier, models.StatusRejected, "blurry", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.store.Update(ctx, r))
	r.RestoreVerification(snapshot)
	s.Require().NoError(s.store.Update(ctx, r))

	found, err := s.store.FindByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, found.Status)
	s.Nil(found.VerifiedBy)
	s.Nil(found.VerificationDate)
	s.Empty(found.Notes)
}

func (s *PostgresStoreSuite) TestTerminalStatusRequiresVerifier() {
	ctx := context.Background()
	r := s.newRecord("p.pdf", "cid", time.Now())
	r.Status = models.StatusVerified
	s.Error(s.store.Update(ctx, r))
}

func (s *PostgresStoreSuite) TestListings() {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	older := s.newRecord("Passport_scan.png", "cid-1", base)
	newer := s.newRecord("100%_bill.pdf", "cid-2", base.Add(time.Minute))

	newer.ApplyDecision(s.verifier, models.StatusRejected, "", base)
	s.Require().NoError(s.store.Update(ctx, newer))

	all, err := s.store.ListByOwner(ctx, s.owner, models.ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(newer.ID, all[0].ID)

	pending := models.StatusPending
	history, err := s.store.ListByOwner(ctx, s.owner, models.ListFilter{ExcludeStatus: &pending})
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(newer.ID, history[0].ID)

	search, err := s.store.ListByOwner(ctx, s.owner, models.ListFilter{NameContains: "passport"})
	s.Require().NoError(err)
	s.Require().Len(search, 1)
	s.Equal(older.ID, search[0].ID)

	literal, err := s.store.ListByOwner(ctx, s.owner, models.ListFilter{NameContains: "100%"})
	s.Require().NoError(err)
	s.Require().Len(literal, 1)
	s.Equal(newer.ID, literal[0].ID)

	queue, err := s.store.ListByStatus(ctx, models.StatusPending)
	s.Require().NoError(err)
	s.Require().Len(queue, 1)
	s.Equal(older.ID, queue[0].ID)
}

func (s *PostgresStoreSuite) TestListUnanchoredOldestFirst() {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	first := s.newRecord("a", "dup", base)
	second := s.newRecord("b", "dup", base.Add(time.Minute))

	found, err := s.store.ListUnanchored(ctx, "dup")
	s.Require().NoError(err)
	s.Require().Len(found, 2)
	s.Equal(first.ID, found[0].ID)

	found[0].AnchorTxHash = "0x1"
	s.Require().NoError(s.store.Update(ctx, found[0]))

	next, err := s.store.ListUnanchored(ctx, "dup")
	s.Require().NoError(err)
	s.Require().Len(next, 1)
	s.Equal(second.ID, next[0].ID)

	none, err := s.store.ListUnanchored(ctx, "none")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *PostgresStoreSuite) TestFindByAnchorTxAndChainSlot() {
	ctx := context.Background()
	wallet := domain.WalletAddress("0x52908400098527886e0f7030069857d2e4169ee7")
	r := s.newRecord("a", "slot", time.Now())
	idx := uint64(7)
	r.AnchorTxHash = "0x" + strings.Repeat("ab", 32)
	r.AnchorAddress = wallet
	r.ChainIndex = &idx
	s.Require().NoError(s.store.Update(ctx, r))

	byTx, err := s.store.FindByAnchorTx(ctx, r.AnchorTxHash)
	s.Require().NoError(err)
	s.Equal(r.ID, byTx.ID)

	bySlot, err := s.store.FindByChainSlot(ctx, wallet, 7)
	s.Require().NoError(err)
	s.Equal(r.ID, bySlot.ID)

	_, err = s.store.FindByChainSlot(ctx, wallet, 8)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByAnchorTx(ctx, "0xmissing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestEventsInTransaction() {
	ctx := context.Background()
	r := s.newRecord("a", "cid", time.Now())

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txStore := NewPostgresTx(tx)
	event := &models.VerificationEvent{
		ID:         domain.NewEventID(),
		DocumentID: r.ID,
		VerifierID: s.verifier,
		Status:     models.StatusVerified,
		Notes:      "ok",
		TxHash:     "0xfeed",
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(txStore.AppendEvent(ctx, event))
	s.Require().NoError(tx.Rollback())

	events, err := s.store.ListEvents(ctx, r.ID)
	s.Require().NoError(err)
	s.Empty(events)

	s.Require().NoError(s.store.AppendEvent(ctx, event))
	events, err = s.store.ListEvents(ctx, r.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("0xfeed", events[0].TxHash)
	s.Equal(s.verifier, events[0].VerifierID)
}
