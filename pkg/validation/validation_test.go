package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "ekyc/pkg/domain-errors"
)

type loginRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required,wallet"`
	Signature     string `json:"signature" validate:"required,ethsig"`
	Message       string `json:"message" validate:"omitempty,notblank,max=512"`
}

func valid() loginRequest {
	return loginRequest{
		WalletAddress: "0x52908400098527886E0F7030069857D2E4169EE7",
		Signature:     "0x" + strings.Repeat("ab", 65),
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(valid()))

	cases := map[string]struct {
		mutate func(*loginRequest)
		msg    string
	}{
		"missing wallet": {func(r *loginRequest) { r.WalletAddress = "" }, "wallet_address is required"},
		"short wallet":   {func(r *loginRequest) { r.WalletAddress = "0x1234" }, "wallet_address must be a 0x-prefixed 40 hex digit address"},
		"short sig":      {func(r *loginRequest) { r.Signature = "0xabcd" }, "signature must be a 65 byte hex signature"},
		"blank message":  {func(r *loginRequest) { r.Message = "   " }, "message must not be blank"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid()
			tc.mutate(&req)
			err := Validate(req)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.EqualError(t, err, tc.msg)
		})
	}
}
