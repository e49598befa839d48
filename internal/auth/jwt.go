// Package auth resolves caller identity (JWT or API key) and computes
// effective permission levels on resource targets.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/convoy-ops/convoy/internal/oops"
)

// jwtKeyBytes is the size of the HMAC signing key generated at startup.
// Generating it fresh on every start invalidates all outstanding tokens
// across restarts.
const jwtKeyBytes = 32

// JWTClaims is the token payload: subject user id plus issued/expiry.
type JWTClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTProvider mints and verifies HMAC-signed JWTs.
type JWTProvider struct {
	key   []byte
	valid time.Duration
}

// NewJWTProvider generates a fresh signing key.
func NewJWTProvider(valid time.Duration) (*JWTProvider, error) {
	key := make([]byte, jwtKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return &JWTProvider{key: key, valid: valid}, nil
}

// Mint issues a token for the given user id.
func (p *JWTProvider) Mint(userID string) (string, error) {
	now := time.Now().UTC()
	claims := JWTClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.valid)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", oops.Wrap(oops.Internal, err, "sign jwt")
	}
	return signed, nil
}

// Verify validates signature and expiry and returns the user id.
// A token exactly at its expiry instant is rejected.
func (p *JWTProvider) Verify(tokenStr string) (string, error) {
	var claims JWTClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, oops.New(oops.AuthInvalid, "unexpected signing method %v", t.Header["alg"])
		}
		return p.key, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", oops.Wrap(oops.AuthInvalid, err, "invalid jwt")
	}
	if !claims.ExpiresAt.After(time.Now()) {
		return "", oops.New(oops.AuthInvalid, "jwt expired")
	}
	return claims.UserID, nil
}

// ExtractBearerToken pulls the token out of an Authorization header.
// Returns empty string if not present or malformed.
func ExtractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// exchangeTokenTTL bounds how long an OAuth callback's exchange token can
// sit unclaimed.
const exchangeTokenTTL = 60 * time.Second

// exchangeEntry is one stored JWT awaiting exchange.
type exchangeEntry struct {
	jwt     string
	expires time.Time
}

// ExchangeTokens bridges OAuth callbacks to front-ends: the callback stores
// a freshly minted JWT under a random key, and the front-end redeems the
// key exactly once within the TTL.
type ExchangeTokens struct {
	mu      sync.Mutex
	entries map[string]exchangeEntry
}

// NewExchangeTokens creates an empty exchange-token table.
func NewExchangeTokens() *ExchangeTokens {
	return &ExchangeTokens{entries: make(map[string]exchangeEntry)}
}

// Store saves a JWT and returns the 40-char exchange key.
func (e *ExchangeTokens) Store(jwtStr string) (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	key := hex.EncodeToString(raw)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked()
	e.entries[key] = exchangeEntry{jwt: jwtStr, expires: time.Now().Add(exchangeTokenTTL)}
	return key, nil
}

// Redeem consumes an exchange key and returns the stored JWT. A key can be
// redeemed at most once.
func (e *ExchangeTokens) Redeem(key string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[key]
	if !ok {
		return "", oops.New(oops.AuthInvalid, "invalid exchange token")
	}
	delete(e.entries, key)
	if time.Now().After(entry.expires) {
		return "", oops.New(oops.AuthInvalid, "exchange token expired")
	}
	return entry.jwt, nil
}

// sweepLocked drops expired entries. Caller holds the lock.
func (e *ExchangeTokens) sweepLocked() {
	now := time.Now()
	for k, entry := range e.entries {
		if now.After(entry.expires) {
			delete(e.entries, k)
		}
	}
}

// GenerateSecret creates a random url-safe secret string.
func GenerateSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
