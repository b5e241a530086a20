package gmail

import (
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/providers"
	"github.com/goliatone/go-connections/providers/google/common"
)

type Config = common.Config

func DefaultScopes() []string {
	return []string{
		"https://www.googleapis.com/auth/gmail.readonly",
	}
}

func New(cfg Config) (*providers.OAuth2Adapter, error) {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	cfg.Scopes = common.WithEmailScope(cfg.Scopes)
	return common.New(core.ServiceGmail, cfg)
}
