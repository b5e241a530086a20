package github

import (
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/identity"
	"github.com/goliatone/go-connections/providers"
)

const (
	AuthURL  = "https://github.com/login/oauth/authorize"
	TokenURL = "https://github.com/login/oauth/access_token"
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

func DefaultConfig() Config {
	return Config{
		AuthURL:  AuthURL,
		TokenURL: TokenURL,
		Scopes:   []string{"repo", "read:user", "user:email"},
	}
}

// New builds the GitHub adapter. GitHub joins scopes with commas, takes
// a JSON token request with the client secret in the body, and never
// issues refresh tokens: the granted access token lives until revoked.
func New(cfg Config) (*providers.OAuth2Adapter, error) {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = identity.DefaultResolver()
	}
	return providers.NewOAuth2Adapter(providers.OAuth2Config{
		Service:            core.ServiceGitHub,
		AuthURL:            cfg.AuthURL,
		TokenURL:           cfg.TokenURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		RedirectURI:        cfg.RedirectURI,
		Scopes:             cfg.Scopes,
		ScopeDelimiter:     ",",
		BodyFormat:         providers.BodyFormatJSON,
		IdentityResolver:   resolver,
		HTTPClient:         cfg.HTTPClient,
	})
}
