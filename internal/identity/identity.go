// Package identity turns a signed login challenge into a caller address.
//
// A waver proves control of an ed25519 key by signing a one-time challenge. The
// waver's address is the last 20 bytes of the Keccak-256 digest of the public key.
// On success the portal issues an HS256 JWT whose subject is that address; every
// transport derives the caller identity from the token, never from the payload.
//
// It provides:
//   - Authenticator : challenge issuance and signature verification
//   - ChallengeStore: one-time nonce storage (in-memory or Redis)
//   - TokenIssuer   : issues and verifies waver session tokens
//   - RequireWaver  : Gin middleware enforcing a valid Bearer token
package identity
