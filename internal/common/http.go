package common

import (
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address part of r.RemoteAddr. Behind a proxy the
// router runs middleware.RealIP first, which rewrites RemoteAddr from the
// forwarding headers.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if ip, err := netip.ParseAddr(addr); err == nil {
		return ip.Unmap().String()
	}
	return addr
}
