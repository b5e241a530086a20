package core

import (
	"fmt"
	"strings"
)

type ProviderConfig struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
}

type Config struct {
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`

	// UIRedirectURL is the front-end route the OAuth callback redirects
	// back to, with ?success= or ?error= appended.
	UIRedirectURL string `koanf:"ui_redirect_url" mapstructure:"ui_redirect_url"`

	Providers map[string]ProviderConfig `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:   "connections",
		UIRedirectURL: "/integrations",
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.UIRedirectURL) == "" {
		return fmt.Errorf("core: ui_redirect_url is required")
	}
	for name := range c.Providers {
		if _, err := ParseServiceKey(name); err != nil {
			return fmt.Errorf("core: providers config: %w", err)
		}
	}
	return nil
}

// Provider returns the configured credentials for a service, reporting
// whether a block was present at all. A missing or incomplete block is a
// construction-time failure for the adapter, never a per-request error.
func (c Config) Provider(service ServiceKey) (ProviderConfig, bool) {
	if len(c.Providers) == 0 {
		return ProviderConfig{}, false
	}
	for name, cfg := range c.Providers {
		if strings.EqualFold(strings.TrimSpace(name), string(service)) {
			return cfg, true
		}
	}
	return ProviderConfig{}, false
}

func (p ProviderConfig) Validate(service ServiceKey) error {
	if strings.TrimSpace(p.ClientID) == "" {
		return fmt.Errorf("core: client_id is required for provider %q", service)
	}
	if strings.TrimSpace(p.ClientSecret) == "" {
		return fmt.Errorf("core: client_secret is required for provider %q", service)
	}
	if strings.TrimSpace(p.RedirectURI) == "" {
		return fmt.Errorf("core: redirect_uri is required for provider %q", service)
	}
	return nil
}
