/*
Package uid – request tokens.

Idempotency tokens for transactional writes. The service accepts at most 36
characters, which a canonical UUID string fills exactly.
*/
package uid

import (
	"github.com/google/uuid"
)

// MaxTokenLen is the longest ClientRequestToken the service accepts.
const MaxTokenLen = 36

// NewToken returns a random (v4) UUID string.
func NewToken() string {
	return uuid.NewString()
}

// Valid reports whether s can be used as a ClientRequestToken.
func Valid(s string) bool {
	return s != "" && len(s) <= MaxTokenLen
}
