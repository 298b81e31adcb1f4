package urlcodec

import (
	"net"
	"strings"
)

// splitPort splits a bare host[:port] token. Bracketed IPv6 literals are
// supported; an unbracketed IPv6 address has no port.
func splitPort(host string) (string, string) {
	if strings.Count(host, ":") > 1 && !strings.HasPrefix(host, "[") {
		return host, ""
	}
	if !strings.Contains(host, ":") {
		return host, ""
	}
	h, p, err := net.SplitHostPort(host)
	if err != nil {
		return host, ""
	}
	for _, c := range p {
		if c < '0' || c > '9' {
			return host, ""
		}
	}
	if p == "" {
		return h, ""
	}
	return h, p
}

// ContainsPortNumber reports whether host carries a numeric port.
func ContainsPortNumber(host string) bool {
	_, p := splitPort(host)
	return p != ""
}

// ExtractPortNumber returns the port of host, or "" when there is none.
func ExtractPortNumber(host string) string {
	_, p := splitPort(host)
	return p
}

// StripPortNumber returns host without its port.
func StripPortNumber(host string) string {
	h, p := splitPort(host)
	if p == "" && strings.HasSuffix(host, ":") {
		return strings.TrimSuffix(host, ":")
	}
	if p == "" {
		return host
	}
	return h
}
