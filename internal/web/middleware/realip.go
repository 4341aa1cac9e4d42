package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// proxyNets is the parsed set of trusted proxy networks.
type proxyNets []*net.IPNet

// parseProxyNets accepts CIDRs and bare addresses; invalid entries are
// logged and skipped.
func parseProxyNets(entries []string) proxyNets {
	var nets proxyNets
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "entry", entry)
			continue
		}
		bits := 128
		if ip.To4() != nil {
			ip, bits = ip.To4(), 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

func (p proxyNets) contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, network := range p {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// TrustedRealIP rewrites r.RemoteAddr to the client address reported in
// X-Real-IP or X-Forwarded-For, but only when the connection comes from a
// trusted proxy. Otherwise the headers are ignored and RemoteAddr is reduced
// to its host part, so rate limiting and logs key on a bare address either
// way.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	trusted := parseProxyNets(trustedCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remote := hostOnly(r.RemoteAddr)
			if trusted.contains(net.ParseIP(remote)) {
				if ip := forwardedIP(r.Header); ip != "" {
					remote = ip
				}
			}
			r.RemoteAddr = remote
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedIP returns the client address from proxy headers, or "".
// X-Real-IP wins; otherwise the first X-Forwarded-For hop is used.
func forwardedIP(h http.Header) string {
	if rip := strings.TrimSpace(h.Get("X-Real-IP")); rip != "" {
		if ip := net.ParseIP(rip); ip != nil {
			return ip.String()
		}
		return ""
	}
	xff := h.Get("X-Forwarded-For")
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return ""
}

// hostOnly strips the port from a host:port address.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
