// Package privacy masks personal identifiers before they reach logs.
package privacy

import (
	"fmt"
	"net"
	"strings"
)

// AnonymizeIP keeps the /24 network of an IPv4 address and the /48 prefix of
// an IPv6 address.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}
	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1], parsed[2], parsed[3], parsed[4], parsed[5])
}

// MaskWallet keeps the first and last four hex digits of an address:
// "0x5290…9ee7". Input that is not an address is fully masked.
func MaskWallet(addr string) string {
	hex := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if len(hex) != 40 {
		return "0x…"
	}
	return "0x" + hex[:4] + "…" + hex[36:]
}
