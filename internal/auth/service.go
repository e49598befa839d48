package auth

import (
	"net/http"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// Header names accepted for programmatic auth.
const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderAPISecret = "X-Api-Secret"
)

// WebhookUserID is the synthetic identity executions triggered by webhooks
// run under.
const WebhookUserID = "git_webhook_user"

// Service is the auth and permission gate.
type Service struct {
	db     *store.DB
	JWT    *JWTProvider
	Exchange *ExchangeTokens
}

// NewService wires the gate over the store.
func NewService(db *store.DB, jwtProvider *JWTProvider) *Service {
	return &Service{db: db, JWT: jwtProvider, Exchange: NewExchangeTokens()}
}

// Authenticate resolves the caller from either a Bearer JWT or an
// X-Api-Key/X-Api-Secret pair. Disabled users are rejected.
func (s *Service) Authenticate(r *http.Request) (*types.User, error) {
	if bearer := ExtractBearerToken(r.Header.Get("Authorization")); bearer != "" {
		userID, err := s.JWT.Verify(bearer)
		if err != nil {
			return nil, err
		}
		return s.enabledUser(userID)
	}

	key := r.Header.Get(HeaderAPIKey)
	secret := r.Header.Get(HeaderAPISecret)
	if key != "" && secret != "" {
		rec, err := s.db.GetAPIKey(key)
		if err != nil {
			if oops.Is(err, oops.NotFound) {
				return nil, oops.New(oops.AuthInvalid, "unknown api key")
			}
			return nil, err
		}
		if err := CheckAPIKey(rec, secret); err != nil {
			return nil, err
		}
		return s.enabledUser(rec.UserID)
	}

	return nil, oops.New(oops.AuthMissing, "no credentials provided")
}

// enabledUser loads a user and rejects disabled accounts.
func (s *Service) enabledUser(id string) (*types.User, error) {
	user, err := s.db.GetUser(id)
	if err != nil {
		if oops.Is(err, oops.NotFound) {
			return nil, oops.New(oops.AuthInvalid, "user no longer exists")
		}
		return nil, err
	}
	if !user.Enabled {
		return nil, oops.New(oops.AuthInvalid, "user is disabled")
	}
	return user, nil
}

// Level computes the caller's effective level on a target.
func (s *Service) Level(user *types.User, target types.ResourceTarget) (types.PermissionLevel, error) {
	return EffectiveLevel(s.db, user, target)
}

// CheckPermission fails with PermissionDenied unless the user's effective
// level on the target meets required.
func (s *Service) CheckPermission(user *types.User, target types.ResourceTarget, required types.PermissionLevel) error {
	level, err := s.Level(user, target)
	if err != nil {
		return err
	}
	if !level.Meets(required) {
		return oops.New(oops.PermissionDenied, "%s on %s requires %s, user has %s",
			user.Username, target, required, level)
	}
	return nil
}

// WebhookUser returns the synthetic webhook identity, creating it on first
// use.
func (s *Service) WebhookUser() (*types.User, error) {
	user, err := s.db.GetUser(WebhookUserID)
	if err == nil {
		return user, nil
	}
	if !oops.Is(err, oops.NotFound) {
		return nil, err
	}
	user = &types.User{
		ID:       WebhookUserID,
		Username: WebhookUserID,
		Enabled:  true,
		Admin:    true,
		Credential: types.UserCredential{
			Type:   "Service",
			Params: types.UserCredentialParams{Description: "runs executions triggered by git webhooks"},
		},
	}
	if err := s.db.CreateUser(user); err != nil && !oops.Is(err, oops.AlreadyExists) {
		return nil, err
	}
	return user, nil
}
