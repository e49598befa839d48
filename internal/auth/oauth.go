package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/convoy-ops/convoy/internal/config"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// OAuthHandler runs the provider login/callback flows and bridges the
// resulting JWT to the front-end via an exchange token.
type OAuthHandler struct {
	svc        *Service
	host       string
	newEnabled bool
	providers  map[string]*oauth2.Config
}

// NewOAuthHandler builds the handler from the configured providers.
func NewOAuthHandler(svc *Service, cfg *config.Config) *OAuthHandler {
	providers := map[string]*oauth2.Config{}
	if cfg.GithubOAuth.Enabled {
		providers["github"] = &oauth2.Config{
			ClientID:     cfg.GithubOAuth.ClientID,
			ClientSecret: cfg.GithubOAuth.ClientSecret,
			Endpoint:     endpoints.GitHub,
			RedirectURL:  cfg.Host + "/auth/github/callback",
			Scopes:       []string{"read:user"},
		}
	}
	if cfg.GoogleOAuth.Enabled {
		providers["google"] = &oauth2.Config{
			ClientID:     cfg.GoogleOAuth.ClientID,
			ClientSecret: cfg.GoogleOAuth.ClientSecret,
			Endpoint:     endpoints.Google,
			RedirectURL:  cfg.Host + "/auth/google/callback",
			Scopes:       []string{"openid", "email"},
		}
	}
	return &OAuthHandler{
		svc:        svc,
		host:       cfg.Host,
		newEnabled: cfg.NewUsersEnabled,
		providers:  providers,
	}
}

// Enabled reports whether a provider is configured.
func (h *OAuthHandler) Enabled(provider string) bool {
	_, ok := h.providers[provider]
	return ok
}

// Providers lists the configured provider names.
func (h *OAuthHandler) Providers() []string {
	var names []string
	for name := range h.providers {
		names = append(names, name)
	}
	return names
}

// Login redirects the browser into the provider's consent flow.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request, provider string) {
	conf, ok := h.providers[provider]
	if !ok {
		http.Error(w, "oauth provider not enabled", http.StatusNotFound)
		return
	}
	state, err := GenerateSecret()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name: "oauth_state", Value: state, Path: "/",
		MaxAge: 300, HttpOnly: true, SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, conf.AuthCodeURL(state), http.StatusFound)
}

// Callback exchanges the code, resolves or creates the user, mints a JWT,
// and 302s to the configured host with a one-shot exchange token.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request, provider string) {
	conf, ok := h.providers[provider]
	if !ok {
		http.Error(w, "oauth provider not enabled", http.StatusNotFound)
		return
	}
	cookie, err := r.Cookie("oauth_state")
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "oauth state mismatch", http.StatusUnauthorized)
		return
	}

	token, err := conf.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "oauth code exchange failed", http.StatusBadGateway)
		return
	}

	identity, err := fetchIdentity(r.Context(), conf, provider, token)
	if err != nil {
		http.Error(w, "fetch provider identity failed", http.StatusBadGateway)
		return
	}

	user, err := h.resolveUser(provider, identity)
	if err != nil {
		http.Error(w, err.Error(), oops.HTTPStatus(err))
		return
	}

	jwtStr, err := h.svc.JWT.Mint(user.ID)
	if err != nil {
		http.Error(w, "mint token failed", http.StatusInternalServerError)
		return
	}
	exchange, err := h.svc.Exchange.Store(jwtStr)
	if err != nil {
		http.Error(w, "store exchange token failed", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.host+"?token="+exchange, http.StatusFound)
}

// providerIdentity is the subset of the provider profile we keep.
type providerIdentity struct {
	ID       string
	Username string
	Avatar   string
}

// fetchIdentity reads the provider's profile endpoint with the token.
func fetchIdentity(ctx context.Context, conf *oauth2.Config, provider string, token *oauth2.Token) (*providerIdentity, error) {
	client := conf.Client(ctx, token)
	var url string
	switch provider {
	case "github":
		url = "https://api.github.com/user"
	case "google":
		url = "https://www.googleapis.com/oauth2/v2/userinfo"
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider profile returned %s", resp.Status)
	}

	switch provider {
	case "github":
		var gh struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&gh); err != nil {
			return nil, err
		}
		return &providerIdentity{ID: fmt.Sprintf("%d", gh.ID), Username: gh.Login, Avatar: gh.AvatarURL}, nil
	default:
		var gg struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			Picture string `json:"picture"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&gg); err != nil {
			return nil, err
		}
		return &providerIdentity{ID: gg.ID, Username: gg.Email, Avatar: gg.Picture}, nil
	}
}

// resolveUser finds the user linked to the provider id, creating one when
// new-user signups are enabled.
func (h *OAuthHandler) resolveUser(provider string, id *providerIdentity) (*types.User, error) {
	credType := "Github"
	if provider == "google" {
		credType = "Google"
	}

	users, err := h.svc.db.ListUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Credential.Type == credType && u.Credential.Params.ProviderID == id.ID {
			if !u.Enabled {
				return nil, oops.New(oops.AuthInvalid, "user is disabled")
			}
			return u, nil
		}
	}

	user := &types.User{
		Username: id.Username,
		Enabled:  h.newEnabled,
		Credential: types.UserCredential{
			Type:   credType,
			Params: types.UserCredentialParams{ProviderID: id.ID, Avatar: id.Avatar},
		},
	}
	if err := h.svc.db.CreateUser(user); err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, oops.New(oops.AuthInvalid, "user created but awaiting enablement")
	}
	return user, nil
}
