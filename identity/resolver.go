package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultRequestTimeout    = 10 * time.Second
	maxIdentityResponseBytes = 1 << 20 // 1 MiB
	githubUserInfoURL        = "https://api.github.com/user"
	googleUserInfoURL        = "https://www.googleapis.com/oauth2/v2/userinfo"
)

var ErrIdentityUnavailable = errors.New("identity: identity unavailable")

type IdentityFetchError struct {
	Service core.ServiceKey
	Cause   error
}

func (e *IdentityFetchError) Error() string {
	if e == nil {
		return ErrIdentityUnavailable.Error()
	}
	message := fmt.Sprintf("identity: fetch failed for %s", e.Service)
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	return message
}

func (e *IdentityFetchError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrIdentityUnavailable
	}
	return errors.Join(ErrIdentityUnavailable, e.Cause)
}

func (e *IdentityFetchError) ToBrokerError() *goerrors.Error {
	message := ErrIdentityUnavailable.Error()
	if e != nil {
		message = e.Error()
	}
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.BrokerErrorIdentityFetchFailed)
}

func fetchFailed(service core.ServiceKey, cause error) error {
	return &IdentityFetchError{Service: service, Cause: cause}
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// IdentityNormalizer maps a decoded userinfo payload onto the canonical
// identity fields for one service.
type IdentityNormalizer func(payload map[string]any) core.Identity

type ServiceUserInfoConfig struct {
	URL        string
	Normalizer IdentityNormalizer
}

type Config struct {
	HTTPClient      HTTPDoer
	RequestTimeout  time.Duration
	ServiceUserInfo map[core.ServiceKey]ServiceUserInfoConfig
}

// Resolver resolves provider identities. GitHub and the Google family
// hit their userinfo endpoints with the exchanged access token; Slack
// carries identity inline in the token response, so no extra request is
// made for it.
type Resolver struct {
	httpClient      HTTPDoer
	requestTimeout  time.Duration
	serviceUserInfo map[core.ServiceKey]ServiceUserInfoConfig
}

func NewResolver(cfg Config) *Resolver {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	serviceUserInfo := defaultServiceUserInfoConfigs()
	for key, value := range cfg.ServiceUserInfo {
		service, err := core.ParseServiceKey(string(key))
		if err != nil {
			continue
		}
		merged := serviceUserInfo[service]
		if strings.TrimSpace(value.URL) != "" {
			merged.URL = strings.TrimSpace(value.URL)
		}
		if value.Normalizer != nil {
			merged.Normalizer = value.Normalizer
		}
		serviceUserInfo[service] = merged
	}

	return &Resolver{
		httpClient:      httpClient,
		requestTimeout:  requestTimeout,
		serviceUserInfo: serviceUserInfo,
	}
}

func DefaultResolver() *Resolver {
	return NewResolver(Config{})
}

func (r *Resolver) Resolve(ctx context.Context, service core.ServiceKey, token core.TokenResult) (core.Identity, error) {
	if r == nil {
		return core.Identity{}, fetchFailed(service, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key, err := core.ParseServiceKey(string(service))
	if err != nil {
		return core.Identity{}, fetchFailed(service, err)
	}

	if key == core.ServiceSlack {
		identity := normalizeSlackIdentity(token.Raw)
		if strings.TrimSpace(identity.TeamID) == "" && strings.TrimSpace(identity.ExternalID) == "" {
			return core.Identity{}, fetchFailed(key, fmt.Errorf("token response carried no team or user"))
		}
		return identity, nil
	}

	endpoint, ok := r.serviceUserInfo[key]
	if !ok || strings.TrimSpace(endpoint.URL) == "" {
		return core.Identity{}, fetchFailed(key, fmt.Errorf("no userinfo endpoint configured"))
	}
	payload, fetchErr := r.fetchUserInfo(ctx, endpoint.URL, strings.TrimSpace(token.AccessToken))
	if fetchErr != nil {
		return core.Identity{}, fetchFailed(key, fetchErr)
	}
	normalizer := endpoint.Normalizer
	if normalizer == nil {
		normalizer = normalizeGoogleIdentity
	}
	identity := normalizer(payload)
	if strings.TrimSpace(identity.ExternalID) == "" {
		return core.Identity{}, fetchFailed(key, fmt.Errorf("userinfo payload carried no account id"))
	}
	return identity, nil
}

func defaultServiceUserInfoConfigs() map[core.ServiceKey]ServiceUserInfoConfig {
	return map[core.ServiceKey]ServiceUserInfoConfig{
		core.ServiceGitHub: {
			URL:        githubUserInfoURL,
			Normalizer: normalizeGitHubIdentity,
		},
		core.ServiceGmail: {
			URL:        googleUserInfoURL,
			Normalizer: normalizeGoogleIdentity,
		},
		core.ServiceGoogleChat: {
			URL:        googleUserInfoURL,
			Normalizer: normalizeGoogleIdentity,
		},
		core.ServiceGoogleDrive: {
			URL:        googleUserInfoURL,
			Normalizer: normalizeGoogleIdentity,
		},
	}
}

func (r *Resolver) fetchUserInfo(ctx context.Context, endpoint string, accessToken string) (map[string]any, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("identity: access token is required")
	}
	requestCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxIdentityResponseBytes+1))
	if readErr != nil {
		return nil, fmt.Errorf("identity: read userinfo response: %w", readErr)
	}
	if int64(len(body)) > maxIdentityResponseBytes {
		return nil, fmt.Errorf("identity: userinfo response exceeds %d bytes", maxIdentityResponseBytes)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("identity: userinfo endpoint returned status %d", res.StatusCode)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("identity: decode userinfo response: %w", err)
	}
	return payload, nil
}

func normalizeGitHubIdentity(payload map[string]any) core.Identity {
	externalID := strings.TrimSpace(readString(payload["id"]))
	if externalID == "" {
		externalID = strings.TrimSpace(readString(payload["node_id"]))
	}
	if externalID == "" {
		externalID = strings.TrimSpace(readString(payload["login"]))
	}
	return core.Identity{
		ExternalID: externalID,
		Username:   strings.TrimSpace(readString(payload["login"])),
		Email:      strings.TrimSpace(readString(payload["email"])),
		Raw:        copyMap(payload),
	}
}

func normalizeGoogleIdentity(payload map[string]any) core.Identity {
	externalID := strings.TrimSpace(readString(payload["id"]))
	if externalID == "" {
		externalID = strings.TrimSpace(readString(payload["sub"]))
	}
	return core.Identity{
		ExternalID: externalID,
		Email:      strings.TrimSpace(readString(payload["email"])),
		Raw:        copyMap(payload),
	}
}

func normalizeSlackIdentity(raw map[string]any) core.Identity {
	identity := core.Identity{
		BotUserID: strings.TrimSpace(readString(raw["bot_user_id"])),
		Raw:       copyMap(raw),
	}
	if team, ok := raw["team"].(map[string]any); ok {
		identity.TeamID = strings.TrimSpace(readString(team["id"]))
		identity.TeamName = strings.TrimSpace(readString(team["name"]))
	}
	if authedUser, ok := raw["authed_user"].(map[string]any); ok {
		identity.ExternalID = strings.TrimSpace(readString(authedUser["id"]))
	}
	if identity.ExternalID == "" {
		identity.ExternalID = strings.TrimSpace(readString(raw["user_id"]))
	}
	return identity
}

func copyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func readString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	case json.Number:
		return strings.TrimSpace(typed.String())
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}
