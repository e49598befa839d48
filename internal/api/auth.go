package api

import (
	"net/http"

	"github.com/convoy-ops/convoy/internal/auth"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// handleAuth serves the pre-login union: login options, local signup and
// login, exchange-token redemption, and the authenticated GetUser.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch req.Type {
	case "GetLoginOptions":
		writeJSON(w, http.StatusOK, map[string]any{
			"local":     s.cfg.LocalAuth,
			"oauth":     s.oauth.Providers(),
			"new_users": s.cfg.NewUsersEnabled,
		})

	case "CreateLocalUser":
		s.createLocalUser(w, req)

	case "LoginLocalUser":
		s.loginLocalUser(w, req)

	case "ExchangeForJwt":
		params, err := decodeParams[struct {
			Token string `json:"token"`
		}](req)
		if err != nil {
			writeError(w, err)
			return
		}
		jwt, err := s.auth.Exchange.Redeem(params.Token)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"jwt": jwt})

	case "GetUser":
		user, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, sanitizeUser(user))

	default:
		s.unknownType(w, "auth", req.Type)
	}
}

type localUserParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) createLocalUser(w http.ResponseWriter, req *request) {
	if !s.cfg.LocalAuth {
		writeError(w, oops.New(oops.PermissionDenied, "local auth is disabled"))
		return
	}
	params, err := decodeParams[localUserParams](req)
	if err != nil {
		writeError(w, err)
		return
	}
	if params.Username == "" {
		writeError(w, oops.New(oops.InvalidConfig, "username must not be empty"))
		return
	}
	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	// The first user becomes the enabled super admin; later signups wait
	// for enablement unless open signups are configured.
	existing, err := s.db.ListUsers()
	if err != nil {
		writeError(w, err)
		return
	}
	first := len(existing) == 0
	user := &types.User{
		Username:   params.Username,
		Enabled:    first || s.cfg.NewUsersEnabled,
		Admin:      first,
		SuperAdmin: first,
		Credential: types.UserCredential{
			Type:   "Local",
			Params: types.UserCredentialParams{PasswordHash: hash},
		},
	}
	if err := s.db.CreateUser(user); err != nil {
		writeError(w, err)
		return
	}
	if !user.Enabled {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	jwt, err := s.auth.JWT.Mint(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jwt": jwt})
}

func (s *Server) loginLocalUser(w http.ResponseWriter, req *request) {
	if !s.cfg.LocalAuth {
		writeError(w, oops.New(oops.PermissionDenied, "local auth is disabled"))
		return
	}
	params, err := decodeParams[localUserParams](req)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := s.db.GetUserByUsername(params.Username)
	if err != nil {
		// Same failure for unknown user and bad password.
		writeError(w, oops.New(oops.AuthInvalid, "invalid username or password"))
		return
	}
	if user.Credential.Type != "Local" || !auth.CheckPassword(user.Credential.Params.PasswordHash, params.Password) {
		writeError(w, oops.New(oops.AuthInvalid, "invalid username or password"))
		return
	}
	if !user.Enabled {
		writeError(w, oops.New(oops.AuthInvalid, "user is disabled"))
		return
	}
	jwt, err := s.auth.JWT.Mint(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jwt": jwt})
}

func (s *Server) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	s.oauth.Login(w, r, r.PathValue("provider"))
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	s.oauth.Callback(w, r, r.PathValue("provider"))
}

// sanitizeUser strips credential secrets from a user before it leaves the
// API.
func sanitizeUser(u *types.User) *types.User {
	cp := *u
	cp.Credential.Params.PasswordHash = ""
	return &cp
}
