package internal

import (
	"net/netip"
	"strings"
)

// MaskIP reduces addr to the range used for session binding: the first two
// octets for IPv4 (/16) and the first four groups for IPv6 (/64). IPv4-mapped
// IPv6 addresses are treated as IPv4. Unparseable input is returned as-is so
// it can only ever match itself.
func MaskIP(addr string) string {
	addr = strings.TrimSpace(addr)
	ip, err := netip.ParseAddr(stripZone(addr))
	if err != nil {
		return addr
	}
	ip = ip.Unmap()

	bits := 64
	if ip.Is4() {
		bits = 16
	}
	prefix, err := ip.Prefix(bits)
	if err != nil {
		return addr
	}
	return prefix.String()
}

// SameRange reports whether a and b fall in the same binding range.
func SameRange(a, b string) bool {
	return MaskIP(a) == MaskIP(b)
}

func stripZone(addr string) string {
	if i := strings.IndexByte(addr, '%'); i >= 0 {
		return addr[:i]
	}
	return addr
}
