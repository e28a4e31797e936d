// Package safeurl provides the security primitives the fetch proxy relies on:
// URL safety checks (SSRF prevention), secret validation, and bounded I/O.
//
// Host checks are literal only: hostnames are never resolved, so a public
// name that points at an internal address is not caught here. Callers that
// need DNS rebinding protection must pin the dialer themselves.
package safeurl

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// MinSecretLen is the minimum acceptable length for symmetric secrets (HMAC,
// JWT HS256, cookie keys). 32 bytes = 256 bits of entropy.
const MinSecretLen = 32

// ErrSecretTooShort is returned when a secret does not meet MinSecretLen.
var ErrSecretTooShort = fmt.Errorf("safeurl: secret must be at least %d bytes", MinSecretLen)

// ErrUnsafeURL is returned for every rejected URL. The reason is deliberately
// not part of the error so that callers cannot leak it to clients.
var ErrUnsafeURL = errors.New("safeurl: invalid or unsafe URL")

// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
var ErrTooLarge = errors.New("safeurl: response too large")

// blockedHosts are rejected by name regardless of how they would resolve.
var blockedHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"[::1]":     true,
	"::1":       true,
}

var privateNets = mustParseCIDRs(
	"0.0.0.0/8",       // "this" network
	"10.0.0.0/8",      // RFC 1918
	"100.64.0.0/10",   // carrier-grade NAT
	"127.0.0.0/8",     // loopback
	"169.254.0.0/16",  // link-local
	"172.16.0.0/12",   // RFC 1918
	"192.0.0.0/24",    // IETF protocol assignments
	"192.0.2.0/24",    // TEST-NET-1
	"192.168.0.0/16",  // RFC 1918
	"198.18.0.0/15",   // benchmarking
	"198.51.100.0/24", // TEST-NET-2
	"203.0.113.0/24",  // TEST-NET-3
	"224.0.0.0/4",     // multicast
	"240.0.0.0/4",     // reserved
	"::/128",
	"::1/128",
	"fc00::/7",  // unique local
	"fe80::/10", // link-local
	"ff00::/8",  // multicast
)

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// IsSafeURL reports whether rawURL may be fetched on behalf of a client.
func IsSafeURL(rawURL string) bool {
	return ValidateURL(rawURL) == nil
}

// ValidateURL checks that rawURL uses http/https, has a host, is not a
// loopback name, and is not a literal IP inside a private or reserved range.
// Every failure returns ErrUnsafeURL.
func ValidateURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ErrUnsafeURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ErrUnsafeURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeURL
	}
	if u.Host == "" || u.Hostname() == "" {
		return ErrUnsafeURL
	}

	if blockedHosts[strings.ToLower(u.Host)] || blockedHosts[strings.ToLower(u.Hostname())] {
		return ErrUnsafeURL
	}

	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return ErrUnsafeURL
		}
		return nil
	}

	// Compare internationalised names in their ASCII form.
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return ErrUnsafeURL
	}
	if blockedHosts[strings.ToLower(ascii)] {
		return ErrUnsafeURL
	}
	return nil
}

// IsPrivateIP reports whether ip is loopback, link-local, or inside one of
// the private/reserved blocks.
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// LimitedReadAll reads at most maxBytes from r. Returns ErrTooLarge if the
// limit is exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("safeurl: bad CIDR " + c)
		}
		out = append(out, n)
	}
	return out
}
