package dbcapabilities

import (
	"net"
	"strings"
)

// NormalizeHost converts localhost variants to a canonical form.
// It converts "localhost", "127.0.0.1", and "::1" to "localhost".
// All other hosts remain unchanged (no DNS resolution is performed).
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.ToLower(host)

	if host == "localhost" {
		return "localhost"
	}

	ip := net.ParseIP(host)
	if ip != nil && ip.IsLoopback() {
		return "localhost"
	}

	return host
}

// IsLocalhostVariant checks if the given host is a localhost variant.
// This includes "localhost", "127.x.x.x", and "::1".
func IsLocalhostVariant(host string) bool {
	return NormalizeHost(host) == "localhost"
}

// DialHost returns the address to dial for a host. Loopback names are pinned
// to 127.0.0.1 because container ports are published on the IPv4 loopback.
func DialHost(host string) string {
	if IsLocalhostVariant(host) {
		return "127.0.0.1"
	}
	return host
}
