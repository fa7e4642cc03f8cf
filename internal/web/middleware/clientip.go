package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	webcontext "github.com/conduit-lang/portal/internal/web/context"
)

// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP
// headers are believed. Requests from any other peer are keyed by their
// socket address.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts CIDR blocks or bare addresses
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	proxies := make(TrustedProxies, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

// Trusts reports whether ip falls inside one of the trusted ranges
func (p TrustedProxies) Trusts(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP resolves the address a request came from. Forwarding headers are
// only read when the direct peer is trusted; X-Forwarded-For is walked from
// the right and the first untrusted hop wins.
func (p TrustedProxies) ClientIP(r *http.Request) string {
	remote := remoteIP(r.RemoteAddr)
	if !p.Trusts(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip, ok := p.forwardedClient(xff); ok {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return remote
}

func (p TrustedProxies) forwardedClient(xff string) (string, bool) {
	hops := strings.Split(xff, ",")
	leftmost := ""
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			// a forged or mangled entry ends the trusted chain
			break
		}
		if !p.Trusts(hop) {
			return hop, true
		}
		leftmost = hop
	}
	return leftmost, leftmost != ""
}

// TenantIPKeyFunc scopes the client IP to the request's tenant
func (p TrustedProxies) TenantIPKeyFunc(r *http.Request) string {
	ip := p.ClientIP(r)
	if ip == "" {
		return ""
	}
	if t := webcontext.GetTenant(r.Context()); t != nil {
		return t.Slug + ":ip:" + ip
	}
	return "ip:" + ip
}

// UserKeyFunc keys authenticated traffic by user, falling back to the IP
func (p TrustedProxies) UserKeyFunc(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID
	}
	return p.TenantIPKeyFunc(r)
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
