// Package peeraddr normalizes the addresses under which peers register with
// a gridledger node.
//
// A peer address is any non-empty token without whitespace. Two forms are
// common:
//
//	http://10.0.0.7:8000          (a reachable node; snapshots can be pulled)
//	0x5f1c…e2                     (a simulated market agent's wallet address)
//
// Only the first form is reachable over HTTP; see HTTPBase.
package peeraddr

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize trims surrounding whitespace and trailing slashes and checks that
// the address contains no illegal characters.
func Normalize(raw string) (string, error) {
	addr := strings.TrimRight(strings.TrimSpace(raw), "/")
	if addr == "" {
		return "", fmt.Errorf("peer address must not be empty")
	}
	if strings.ContainsAny(addr, " \t\r\n\\") {
		return "", fmt.Errorf("peer address %q contains invalid characters", raw)
	}

	if u, ok := parseHTTP(addr); ok {
		// Scheme and host are case-insensitive; keep the path as given.
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		return strings.TrimRight(u.String(), "/"), nil
	}
	return addr, nil
}

// HTTPBase returns the base URL of addr when it names an http(s) endpoint.
func HTTPBase(addr string) (string, bool) {
	u, ok := parseHTTP(addr)
	if !ok {
		return "", false
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), true
}

// MustNormalize is like Normalize but panics on error. Useful in tests.
func MustNormalize(raw string) string {
	addr, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return addr
}

func parseHTTP(addr string) (*url.URL, bool) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}
