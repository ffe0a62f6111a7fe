package export

import (
	"net"
	"strings"
)

// HostMatches reports whether host is acceptable for the registered
// registry host: an exact match or a dot-bounded subdomain.
//
//	HostMatches("decisions.example.gc.ca", "decisions.example.gc.ca")      == true
//	HostMatches("www.decisions.example.gc.ca", "decisions.example.gc.ca")  == true
//	HostMatches("decisions.example.gc.ca.attacker.test", "decisions.example.gc.ca") == false
//	HostMatches("evildecisions.example.gc.ca", "decisions.example.gc.ca")  == false
//
// The dot boundary is what defeats suffix spoofing: "a.b" only matches
// registered "b" when the candidate ends in ".b".
func HostMatches(host, registered string) bool {
	host = canonicalHost(host)
	registered = canonicalHost(registered)
	if host == "" || registered == "" {
		return false
	}
	if host == registered {
		return true
	}
	return strings.HasSuffix(host, "."+registered)
}

// canonicalHost lowercases and strips any port and trailing dot.
func canonicalHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if bare, _, err := net.SplitHostPort(h); err == nil {
		h = bare
	}
	return strings.TrimSuffix(h, ".")
}
