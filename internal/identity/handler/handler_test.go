package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ekyc/internal/identity/handler/mocks"
	"ekyc/internal/identity/models"
	"ekyc/internal/platform/metrics"
	"ekyc/internal/signature"
	"ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/platform/httputil"
	"ekyc/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	tokens  *mocks.MockTokenIssuer
	router  chi.Router
	metrics *metrics.Metrics

	wallet domain.WalletAddress
	sigHex string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.tokens = mocks.NewMockTokenIssuer(s.ctrl)

	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	h := New(s.service, s.tokens, slog.New(slog.NewTextHandler(io.Discard, nil)), WithMetrics(s.metrics))
	s.router = chi.NewRouter()
	h.Register(s.router)
	s.router.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if id, err := domain.ParseUserID(r.Header.Get("X-Test-User")); err == nil {
					r = r.WithContext(requestcontext.WithUserID(r.Context(), id))
				}
				next.ServeHTTP(w, r)
			})
		})
		h.RegisterAuthenticated(r)
	})

	key, err := crypto.GenerateKey()
	s.Require().NoError(err)
	s.wallet = domain.WalletFromAddress(crypto.PubkeyToAddress(key.PublicKey))
	sig, err := signature.Sign(signature.DefaultLoginMessage, key)
	s.Require().NoError(err)
	s.sigHex = hexutil.Encode(sig)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) walletBody() string {
	return `{"wallet_address":"` + s.wallet.Checksum() + `","message":"` + signature.DefaultLoginMessage + `","signature":"` + s.sigHex + `"}`
}

func (s *HandlerSuite) TestWalletAuth() {
	s.Run("new account issues token", func() {
		s.SetupTest()
		identity := &models.Identity{ID: domain.NewUserID(), Wallet: s.wallet, VerificationStatus: models.StatusPending}
		s.service.EXPECT().BindOrCreate(gomock.Any(), s.wallet, signature.DefaultLoginMessage, gomock.Any()).Return(identity, true, nil)
		s.tokens.EXPECT().GenerateAccessToken(gomock.Any(), identity.ID, s.wallet, false).Return("token-123", nil)
		s.tokens.EXPECT().TTL().Return(15 * time.Minute)

		rec := s.do(http.MethodPost, "/auth/wallet", s.walletBody())
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		var resp models.WalletAuthResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal("token-123", resp.AccessToken)
		s.True(resp.NewAccount)
		s.Equal(int64(900), resp.ExpiresIn)
		s.Equal(identity.ID.String(), resp.Identity.ID)
		s.Equal(s.wallet.Checksum(), resp.Identity.WalletAddress)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.UsersCreated))
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.TokenRequests))
	})

	s.Run("invalid signature is 401", func() {
		s.SetupTest()
		s.service.EXPECT().BindOrCreate(gomock.Any(), s.wallet, gomock.Any(), gomock.Any()).
			Return(nil, false, dErrors.New(dErrors.CodeInvalidSignature, "signature does not match wallet"))

		rec := s.do(http.MethodPost, "/auth/wallet", s.walletBody())
		s.Equal(http.StatusUnauthorized, rec.Code)
		var body httputil.ErrorResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
		s.Equal(string(dErrors.CodeInvalidSignature), body.Error)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.AuthFailures.WithLabelValues("invalid_signature")))
		s.Equal(float64(0), testutil.ToFloat64(s.metrics.TokenRequests))
	})

	s.Run("malformed address is 400 without calling the service", func() {
		s.SetupTest()
		rec := s.do(http.MethodPost, "/auth/wallet", `{"wallet_address":"0x123","message":"hi","signature":"`+s.sigHex+`"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown fields are rejected", func() {
		s.SetupTest()
		rec := s.do(http.MethodPost, "/auth/wallet", `{"wallet_address":"`+s.wallet.String()+`","password":"x"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestVerifySignature() {
	s.Run("defaults the message", func() {
		s.SetupTest()
		s.service.EXPECT().VerifySignature(signature.DefaultLoginMessage, gomock.Any(), s.wallet).Return(true)

		rec := s.do(http.MethodPost, "/auth/verify-signature", `{"wallet_address":"`+s.wallet.String()+`","signature":"`+s.sigHex+`"}`)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"valid":true}`, rec.Body.String())
	})

	s.Run("garbage signature is invalid, not an error", func() {
		s.SetupTest()
		rec := s.do(http.MethodPost, "/auth/verify-signature", `{"wallet_address":"`+s.wallet.String()+`","signature":"0xzz"}`)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"valid":false}`, rec.Body.String())
	})
}

func (s *HandlerSuite) TestStatus() {
	s.Run("requires an authenticated user", func() {
		s.SetupTest()
		rec := s.do(http.MethodGet, "/auth/status", "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("returns the identity", func() {
		s.SetupTest()
		identity := &models.Identity{ID: domain.NewUserID(), IsInstitution: true, VerificationStatus: models.StatusApproved}
		s.service.EXPECT().Get(gomock.Any(), identity.ID).Return(identity, nil)

		rec := s.do(http.MethodGet, "/auth/status", "", "X-Test-User", identity.ID.String())
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp models.IdentityResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.True(resp.IsInstitution)
		s.Empty(resp.WalletAddress)
	})
}
