// Package token provides the opaque identifiers and hashing primitives behind a console
// tab session.
//
// A tab id is 32 random bytes, base64url-encoded, handed to the browser in a cookie.
// Storage never sees it directly: backends are keyed by ScopeHex(id, key), a keyed
// BLAKE2b-256 digest.
//
// Environment:
// - CMS_SCOPE_HASH_KEY: when set, enables keyed mode (16..64 bytes).
// Policy:
//   - Without a key the digest is plain BLAKE2b-256 (dev only). Production configs
//     require a key; see ScopeKeyFromEnv.
package token
