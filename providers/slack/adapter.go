package slack

import (
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/identity"
	"github.com/goliatone/go-connections/providers"
)

const (
	AuthURL  = "https://slack.com/oauth/v2/authorize"
	TokenURL = "https://slack.com/api/oauth.v2.access"
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
		Scopes: []string{
			"channels:history",
			"channels:read",
			"chat:write",
			"users:read",
			"users:read.email",
		},
	}
}

// New builds the Slack adapter. Slack reports failure as ok=false with
// an error string instead of the RFC 6749 envelope, and the token
// response carries the workspace identity inline, so no userinfo call
// follows the exchange.
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
		Service:            core.ServiceSlack,
		AuthURL:            cfg.AuthURL,
		TokenURL:           cfg.TokenURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		RedirectURI:        cfg.RedirectURI,
		Scopes:             cfg.Scopes,
		ScopeDelimiter:     ",",
		IdentityResolver:   resolver,
		HTTPClient:         cfg.HTTPClient,
		ErrorShape:         providers.ErrorShapeSlack,
	})
}
