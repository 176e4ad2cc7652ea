package utils

import (
	"net"
	"net/http"
	"strings"
)

// ExtractClientIP extracts the real client IP address from HTTP request headers.
// It checks headers in the following priority order:
//  1. X-Forwarded-For (takes the first IP if multiple are present)
//  2. X-Real-IP
//  3. RemoteAddr (strips port if present)
//
// This matters when the daemon runs behind a reverse proxy or load balancer,
// where RemoteAddr is the proxy rather than the caller.
func ExtractClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2".
	// The first entry is the original client.
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	// RemoteAddr format: "IP:port" or "[IPv6]:port"
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// IsPrivateIP reports whether an IP address is private, loopback, or
// link-local. Used to skip geolocation lookups for internal traffic and to
// relax rate limits for health probes.
func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() ||
		parsed.IsPrivate() ||
		parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast()
}
