package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "ipv4", input: "192.168.1.47", expected: "192.168.1.0"},
		{name: "ipv4 already zeroed", input: "10.0.0.0", expected: "10.0.0.0"},
		{name: "ipv4 mapped ipv6", input: "::ffff:203.0.113.9", expected: "203.0.113.0"},
		{name: "ipv6", input: "2001:db8:85a3::8a2e:370:7334", expected: "2001:0db8:85a3::"},
		{name: "empty", input: "", expected: "unknown"},
		{name: "unknown", input: "unknown", expected: "unknown"},
		{name: "garbage", input: "not-an-ip", expected: "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AnonymizeIP(tt.input))
		})
	}
}

func TestMaskWallet(t *testing.T) {
	assert.Equal(t, "0x5290…9ee7", MaskWallet("0x52908400098527886e0f7030069857d2e4169ee7"))
	assert.Equal(t, "0x5290…9EE7", MaskWallet("0X52908400098527886E0F7030069857D2E4169EE7"))
	assert.Equal(t, "0x…", MaskWallet("0x1234"))
	assert.Equal(t, "0x…", MaskWallet(""))
}
