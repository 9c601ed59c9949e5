package auth

import (
	"crypto/rsa"
	"time"
)

type contextKey struct{ name string }

var userCtxKey = &contextKey{"user"}

type Middleware struct {
	adminRole string
	devBypass bool

	// Assertion verification
	assertCookieName string
	assertIssuer     string
	assertAudience   string
	assertLeeway     time.Duration

	// exactly one of these is set
	hmacSecret []byte
	assertKey  *rsa.PublicKey
}
