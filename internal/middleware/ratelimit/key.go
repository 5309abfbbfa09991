package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"dreamproxy/internal/core"
)

// KeyFunc extracts the rate limit key from a request
type KeyFunc func(core.Request) string

// ClientKey buckets requests by the first X-Forwarded-For entry, falling
// back to the peer address without its port.
//
// The header is client controlled; deployments not behind a trusted
// proxy can be keyed on ByPeer instead.
func ClientKey(req core.Request) string {
	if xff := http.Header(req.Headers()).Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return ByPeer(req)
}

// ByPeer keys on the connection's remote address only
func ByPeer(req core.Request) string {
	return stripPort(req.RemoteAddr())
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
