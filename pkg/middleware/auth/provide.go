package auth

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
)

// ProvideAuthentication builds the middleware from the [auth] manifest
// section. It returns nil when authentication is disabled.
func ProvideAuthentication(cfg manifest.Config) (*Middleware, error) {
	a := cfg.Auth
	if !a.Enabled {
		return nil, nil
	}

	m := &Middleware{
		adminRole:        os.Getenv("ADMIN_ROLE_NAME"),
		devBypass:        os.Getenv("AUTH_DEV_BYPASS") == "true",
		assertCookieName: a.Cookie,
		assertIssuer:     strings.TrimSpace(a.Issuer),
		assertAudience:   strings.TrimSpace(a.Audience),
		assertLeeway:     time.Duration(a.LeewaySeconds) * time.Second,
	}

	if a.PublicKeyFile != "" {
		pemBytes, err := os.ReadFile(a.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("auth public key: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("auth public key: %w", err)
		}
		m.assertKey = key
		return m, nil
	}
	m.hmacSecret = []byte(a.HMACSecret)
	return m, nil
}
