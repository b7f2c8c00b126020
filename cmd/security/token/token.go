package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// ScopeKeyEnv is the env var name for the scope hash key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	ScopeKeyEnv = "CMS_SCOPE_HASH_KEY"

	// TabIDBytes is the entropy of a tab id.
	TabIDBytes = 32

	// MinScopeKeyBytes is the minimum accepted key length in keyed mode.
	MinScopeKeyBytes = 16
)

// NewOpaque returns nBytes of crypto/rand entropy, base64url-encoded without padding.
func NewOpaque(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = TabIDBytes
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandom, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewTabID returns a fresh tab session id.
func NewTabID() (string, error) {
	return NewOpaque(TabIDBytes)
}

// ValidTabID reports whether s has the shape produced by NewTabID.
func ValidTabID(s string) bool {
	if len(s) != base64.RawURLEncoding.EncodedLen(TabIDBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}

// ScopeHex returns the hex BLAKE2b-256 digest of id, keyed when key is non-empty.
// Keys longer than 64 bytes are rejected by blake2b; callers validate with ScopeKeyFromEnv.
func ScopeHex(id string, key []byte) string {
	h, err := blake2b.New256(key)
	if err != nil {
		sum := blake2b.Sum256([]byte(id))
		return hex.EncodeToString(sum[:])
	}
	_, _ = h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil))
}

// ScopeKeyFromEnv returns the configured key bytes (trimmed), enforcing the length policy.
// If the env var is missing/blank -> ErrScopeKeyMissing.
func ScopeKeyFromEnv() ([]byte, error) {
	return ParseScopeKey(os.Getenv(ScopeKeyEnv))
}

// ParseScopeKey validates a raw key string.
func ParseScopeKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrScopeKeyMissing
	}
	b := []byte(raw)
	if len(b) < MinScopeKeyBytes {
		return nil, ErrScopeKeyTooShort
	}
	if len(b) > blake2b.Size {
		return nil, ErrScopeKeyTooLong
	}
	return b, nil
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
