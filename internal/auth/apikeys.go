package auth

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

const (
	apiKeyPrefix    = "K-"
	apiSecretPrefix = "S-"
	bcryptCost      = 10
)

// GenerateAPIKey creates a key/secret pair plus the bcrypt hash of the
// secret for storage. The plaintext secret is shown once.
func GenerateAPIKey() (key, secret, secretHash string, err error) {
	rawKey := make([]byte, 20)
	if _, err = rand.Read(rawKey); err != nil {
		return "", "", "", err
	}
	rawSecret := make([]byte, 30)
	if _, err = rand.Read(rawSecret); err != nil {
		return "", "", "", err
	}
	key = apiKeyPrefix + base64.RawURLEncoding.EncodeToString(rawKey)
	secret = apiSecretPrefix + base64.RawURLEncoding.EncodeToString(rawSecret)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", "", "", err
	}
	return key, secret, string(hash), nil
}

// CheckAPIKey verifies a presented secret against a stored key record,
// rejecting expired keys. Expires zero means the key never expires.
func CheckAPIKey(k *types.ApiKey, secret string) error {
	if k.Expires != 0 && k.Expires < time.Now().UnixMilli() {
		return oops.New(oops.AuthInvalid, "api key expired")
	}
	if bcrypt.CompareHashAndPassword([]byte(k.SecretHash), []byte(secret)) != nil {
		return oops.New(oops.AuthInvalid, "api secret mismatch")
	}
	return nil
}

// HashPassword returns a bcrypt hash of a local user's password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", oops.New(oops.InvalidConfig, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
