package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ekyc/internal/audit"
	"ekyc/internal/identity/models"
	"ekyc/internal/identity/service/mocks"
	"ekyc/internal/identity/store"
	"ekyc/internal/signature"
	"ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/platform/sentinel"
	"ekyc/pkg/testutil"
)

var (
	wallet  = domain.WalletAddress("0x52908400098527886e0f7030069857d2e4169ee7")
	fixedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	mockStore  *mocks.MockStore
	verifier   *mocks.MockSignatureVerifier
	auditStore *audit.InMemoryStore
	service    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.verifier = mocks.NewMockSignatureVerifier(s.ctrl)
	s.auditStore = audit.NewInMemoryStore()
	s.service = NewService(s.mockStore, s.verifier, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithAuditor(audit.NewPublisher(s.auditStore)),
		WithClock(func() time.Time { return fixedAt }),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) TestBindOrCreate_InvalidSignature() {
	s.verifier.EXPECT().Verify("hello", []byte{1}, wallet).Return(false)

	_, _, err := s.service.BindOrCreate(context.Background(), wallet, "hello", []byte{1})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
}

func (s *ServiceSuite) TestBindOrCreate_ExistingIdentity() {
	existing := &models.Identity{ID: domain.NewUserID(), Wallet: wallet, VerificationStatus: models.StatusApproved}
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), wallet).Return(true)
	s.mockStore.EXPECT().FindByWallet(gomock.Any(), wallet).Return(existing, nil)

	identity, isNew, err := s.service.BindOrCreate(context.Background(), wallet, "hello", []byte{1})
	s.Require().NoError(err)
	s.False(isNew)
	s.Equal(existing.ID, identity.ID)
	s.Equal([]string{string(audit.EventWalletLogin)}, s.auditStore.Actions(existing.ID.String()))
}

func (s *ServiceSuite) TestBindOrCreate_CreatesOnFirstLogin() {
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), wallet).Return(true)
	s.mockStore.EXPECT().FindByWallet(gomock.Any(), wallet).Return(nil, sentinel.ErrNotFound)
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, i *models.Identity) error {
		s.Equal(wallet, i.Wallet)
		s.False(i.IsInstitution)
		s.Equal(models.StatusPending, i.VerificationStatus)
		s.Equal(fixedAt, i.CreatedAt)
		return nil
	})

	identity, isNew, err := s.service.BindOrCreate(context.Background(), wallet, "hello", []byte{1})
	s.Require().NoError(err)
	s.True(isNew)
	s.Equal([]string{string(audit.EventIdentityCreated)}, s.auditStore.Actions(identity.ID.String()))
}

func (s *ServiceSuite) TestBindOrCreate_LosingRaceRereadsWinner() {
	winner := &models.Identity{ID: domain.NewUserID(), Wallet: wallet}
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), wallet).Return(true)
	gomock.InOrder(
		s.mockStore.EXPECT().FindByWallet(gomock.Any(), wallet).Return(nil, sentinel.ErrNotFound),
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict),
		s.mockStore.EXPECT().FindByWallet(gomock.Any(), wallet).Return(winner, nil),
	)

	identity, isNew, err := s.service.BindOrCreate(context.Background(), wallet, "hello", []byte{1})
	s.Require().NoError(err)
	s.False(isNew)
	s.Equal(winner.ID, identity.ID)
}

func (s *ServiceSuite) TestBindOrCreate_StoreFailure() {
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), wallet).Return(true)
	s.mockStore.EXPECT().FindByWallet(gomock.Any(), wallet).Return(nil, errors.New("connection reset"))

	_, _, err := s.service.BindOrCreate(context.Background(), wallet, "hello", []byte{1})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestGet_NotFound() {
	id := domain.NewUserID()
	s.mockStore.EXPECT().FindByID(gomock.Any(), id).Return(nil, sentinel.ErrNotFound)

	_, err := s.service.Get(context.Background(), id)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// Concurrent first logins from one wallet must converge on a single identity.
func TestBindOrCreate_ConcurrentFirstLogin(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := domain.WalletFromAddress(crypto.PubkeyToAddress(key.PublicKey))
	sig, err := signature.Sign(signature.DefaultLoginMessage, key)
	require.NoError(t, err)

	st := store.NewInMemory()
	svc := NewService(st, signature.NewVerifier(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	const goroutines = 32
	var (
		mu    sync.Mutex
		ids   = make(map[domain.UserID]int)
		fresh int
	)
	result := testutil.RunConcurrent(goroutines, func(int) error {
		identity, isNew, err := svc.BindOrCreate(context.Background(), owner, signature.DefaultLoginMessage, sig)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		ids[identity.ID]++
		if isNew {
			fresh++
		}
		return nil
	})

	assert.Equal(t, int32(goroutines), result.Successes)
	assert.Len(t, ids, 1)
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, st.Count())
}
