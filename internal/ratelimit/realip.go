package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

var (
	headerXForwardedFor = http.CanonicalHeaderKey("X-Forwarded-For")
	headerXRealIP       = http.CanonicalHeaderKey("X-Real-IP")
)

// RealIP rewrites RemoteAddr to the client address reported by a trusted
// proxy. Forwarding headers from any other peer are ignored, so a caller
// cannot pick its own rate-limit identity. With no trusted proxies it is a
// no-op.
func RealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if peer, ok := peerAddr(r.RemoteAddr); ok && isTrusted(peer, trusted) {
				if client, ok := forwardedClient(r.Header, trusted); ok {
					r.RemoteAddr = client.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func peerAddr(remoteAddr string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// forwardedClient walks X-Forwarded-For from the right and returns the first
// hop that is not itself a trusted proxy. Entries left of it were written by
// the client and are not believed. X-Real-IP is used when there is no
// X-Forwarded-For.
func forwardedClient(h http.Header, trusted []netip.Prefix) (netip.Addr, bool) {
	var hops []string
	for _, v := range h.Values(headerXForwardedFor) {
		hops = append(hops, strings.Split(v, ",")...)
	}
	if len(hops) == 0 {
		addr, err := netip.ParseAddr(strings.TrimSpace(h.Get(headerXRealIP)))
		if err != nil {
			return netip.Addr{}, false
		}
		return addr.Unmap(), true
	}
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return netip.Addr{}, false
		}
		addr = addr.Unmap()
		if !isTrusted(addr, trusted) {
			return addr, true
		}
	}
	return netip.Addr{}, false
}
