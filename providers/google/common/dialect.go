package common

import (
	"strings"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/identity"
	"github.com/goliatone/go-connections/providers"
)

const (
	AuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL = "https://oauth2.googleapis.com/token"

	ScopeOpenID    = "openid"
	ScopeProfile   = "profile"
	ScopeUserEmail = "https://www.googleapis.com/auth/userinfo.email"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	HTTPClient   providers.HTTPDoer
	Resolver     providers.IdentityResolver
}

// New builds a Google-family adapter. All Google services share the
// dialect: space-delimited scopes, client secret in the body, and
// access_type=offline with prompt=consent so a refresh token is issued
// on every connect.
func New(service core.ServiceKey, cfg Config) (*providers.OAuth2Adapter, error) {
	if cfg.AuthURL == "" {
		cfg.AuthURL = AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = TokenURL
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = identity.DefaultResolver()
	}
	return providers.NewOAuth2Adapter(providers.OAuth2Config{
		Service:            service,
		AuthURL:            cfg.AuthURL,
		TokenURL:           cfg.TokenURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		RedirectURI:        cfg.RedirectURI,
		Scopes:             cfg.Scopes,
		ScopeDelimiter:     " ",
		ExtraAuthParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
		SupportsRefresh:  true,
		IdentityResolver: resolver,
		HTTPClient:       cfg.HTTPClient,
	})
}

// WithEmailScope ensures the userinfo.email scope is present so identity
// resolution can read the account email after the exchange.
func WithEmailScope(scopes []string) []string {
	return dedupeScopes(append(append([]string(nil), scopes...), ScopeUserEmail))
}

func dedupeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	seen := map[string]struct{}{}
	result := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		trimmed := strings.TrimSpace(scope)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
