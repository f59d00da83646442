// Package auth provides the kernel's bearer-token guard.
//
// A loopback kernel has exactly one caller and one secret, so there are
// no claims, roles, or scoped tokens to verify — only "does this request
// carry the one configured secret."
package auth

import (
	"crypto/subtle"
)

// Guard verifies a bearer token against a single configured secret. The
// zero value (no token configured) always verifies, matching the
// loopback-only default posture where the host OS socket is the real
// boundary.
type Guard struct {
	token    string
	hash     string // set when the secret is stored hashed, "" otherwise
	required bool
}

// NewGuard builds a Guard from a plaintext token. An empty token disables
// verification entirely.
func NewGuard(token string) *Guard {
	return &Guard{token: token, required: token != ""}
}

// NewHashedGuard builds a Guard that verifies against an Argon2id hash
// (see HashToken), for deployments that prefer not to keep the secret in
// plaintext config.
func NewHashedGuard(hash string) *Guard {
	return &Guard{hash: hash, required: hash != ""}
}

// Required reports whether this Guard rejects unauthenticated requests.
func (g *Guard) Required() bool {
	return g != nil && g.required
}

// Verify reports whether got matches the configured secret. Constant-time
// throughout so a wrong-length or wrong-value guess takes the same time
// as a correct one.
func (g *Guard) Verify(got string) bool {
	if g == nil || !g.required {
		return true
	}
	if g.hash != "" {
		ok, err := VerifyToken(got, g.hash)
		return err == nil && ok
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(g.token)) == 1
}
