// Package requestid generates and propagates request IDs.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Header carries the request ID in both directions
const Header = "X-Request-ID"

// maxLength bounds client supplied IDs before they reach logs
const maxLength = 128

// counter is used as fallback when random generation fails
var counter atomic.Uint64

// GenerateRequestID generates a unique request ID with format: timestamp-randomhex
// Example: 1737039600123-a2b3c4d5
func GenerateRequestID() string {
	timestamp := time.Now().UnixMilli()

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Sprintf("%d-%d", timestamp, counter.Add(1))
	}

	return fmt.Sprintf("%d-%s", timestamp, hex.EncodeToString(randomBytes))
}

// FromHeader returns the caller's request ID when it is usable, otherwise a fresh one
func FromHeader(h http.Header) string {
	if id := h.Get(Header); valid(id) {
		return id
	}
	return GenerateRequestID()
}

func valid(id string) bool {
	if id == "" || len(id) > maxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
