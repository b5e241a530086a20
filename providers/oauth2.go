package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrorShape selects how the token endpoint reports failure.
type ErrorShape int

const (
	// ErrorShapeOAuth is the RFC 6749 envelope: error / error_description.
	ErrorShapeOAuth ErrorShape = iota
	// ErrorShapeSlack is Slack's envelope: ok=false plus an error string.
	ErrorShapeSlack
)

// BodyFormat selects how token requests are encoded.
type BodyFormat int

const (
	// BodyFormatForm posts application/x-www-form-urlencoded per RFC 6749.
	BodyFormatForm BodyFormat = iota
	// BodyFormatJSON posts a JSON object; GitHub's token endpoint takes
	// this shape.
	BodyFormatJSON
)

// IdentityResolver turns an exchanged token into the provider-side
// account it belongs to.
type IdentityResolver interface {
	Resolve(ctx context.Context, service core.ServiceKey, token core.TokenResult) (core.Identity, error)
}

// OAuth2Config describes one provider dialect. The dialect fields
// (endpoints, scope delimiter, error shape, extra auth params) are fixed
// per service; client credentials come from deployment config.
type OAuth2Config struct {
	Service             core.ServiceKey
	AuthURL             string
	TokenURL            string
	ClientID            string
	ClientSecret        string
	ClientSecretInBody  bool
	RedirectURI         string
	Scopes              []string
	ScopeDelimiter      string
	BodyFormat          BodyFormat
	ExtraAuthParams     map[string]string
	SupportsRefresh     bool
	IdentityResolver    IdentityResolver
	TokenRequestTimeout time.Duration
	Now                 func() time.Time
	HTTPClient          HTTPDoer
	ErrorShape          ErrorShape
}

// OAuth2Adapter implements the authorization-code flow for one service.
// State is passed through untouched; the caller owns its meaning.
type OAuth2Adapter struct {
	cfg        OAuth2Config
	httpClient HTTPDoer
}

func NewOAuth2Adapter(cfg OAuth2Config) (*OAuth2Adapter, error) {
	service, err := core.ParseServiceKey(string(cfg.Service))
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	cfg.Service = service
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, fmt.Errorf("providers: auth url is required for %q", service)
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("providers: token url is required for %q", service)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("providers: client id is required for %q", service)
	}
	if strings.TrimSpace(cfg.RedirectURI) == "" {
		return nil, fmt.Errorf("providers: redirect uri is required for %q", service)
	}
	if cfg.IdentityResolver == nil {
		return nil, fmt.Errorf("providers: identity resolver is required for %q", service)
	}

	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	cfg.Scopes = normalizeScopes(cfg.Scopes)
	if strings.TrimSpace(cfg.ScopeDelimiter) == "" {
		cfg.ScopeDelimiter = " "
	}
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			return time.Now().UTC()
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	return &OAuth2Adapter{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

func (a *OAuth2Adapter) ID() core.ServiceKey {
	if a == nil {
		return ""
	}
	return a.cfg.Service
}

func (a *OAuth2Adapter) Label() string {
	if a == nil {
		return ""
	}
	return a.cfg.Service.Label()
}

func (a *OAuth2Adapter) Scopes() []string {
	if a == nil {
		return []string{}
	}
	return append([]string(nil), a.cfg.Scopes...)
}

func (a *OAuth2Adapter) BuildAuthorizationURL(_ context.Context, req core.AuthorizationURLRequest) (string, error) {
	if a == nil {
		return "", fmt.Errorf("providers: oauth2 adapter is nil")
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return "", fmt.Errorf("providers: state is required")
	}
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = a.cfg.RedirectURI
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", a.cfg.ClientID)
	values.Set("redirect_uri", redirectURI)
	values.Set("scope", strings.Join(a.cfg.Scopes, a.cfg.ScopeDelimiter))
	values.Set("state", state)
	for key, value := range a.cfg.ExtraAuthParams {
		if strings.TrimSpace(key) == "" {
			continue
		}
		values.Set(key, value)
	}

	authURL := a.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}
	return authURL, nil
}

func (a *OAuth2Adapter) ExchangeCode(ctx context.Context, req core.ExchangeCodeRequest) (core.TokenResult, error) {
	if a == nil {
		return core.TokenResult{}, fmt.Errorf("providers: oauth2 adapter is nil")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.TokenResult{}, fmt.Errorf("providers: auth code is required")
	}
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = a.cfg.RedirectURI
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	payload, err := a.fetchToken(ctx, form)
	if err != nil {
		return core.TokenResult{}, err
	}
	return a.tokenResult(payload), nil
}

func (a *OAuth2Adapter) RefreshAccessToken(ctx context.Context, refreshToken string) (core.TokenResult, error) {
	if a == nil {
		return core.TokenResult{}, fmt.Errorf("providers: oauth2 adapter is nil")
	}
	if !a.cfg.SupportsRefresh {
		return core.TokenResult{}, fmt.Errorf("providers: %s does not issue refresh tokens", a.cfg.Service)
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenResult{}, fmt.Errorf("providers: refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	payload, err := a.fetchToken(ctx, form)
	if err != nil {
		return core.TokenResult{}, err
	}
	return a.tokenResult(payload), nil
}

func (a *OAuth2Adapter) FetchIdentity(ctx context.Context, token core.TokenResult) (core.Identity, error) {
	if a == nil {
		return core.Identity{}, fmt.Errorf("providers: oauth2 adapter is nil")
	}
	return a.cfg.IdentityResolver.Resolve(ctx, a.cfg.Service, token)
}

func (a *OAuth2Adapter) tokenResult(payload tokenEndpointPayload) core.TokenResult {
	now := a.cfg.Now().UTC()
	result := core.TokenResult{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		TokenType:    normalizeTokenType(payload.TokenType),
		Scopes:       parseScopeList(payload.Scope),
		ExpiresAt:    resolveExpiresAt(now, payload.ExpiresIn),
		Raw:          payload.Raw,
	}
	if len(result.Scopes) == 0 {
		result.Scopes = append([]string(nil), a.cfg.Scopes...)
	}
	return result
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
	Raw              map[string]any
}

func (a *OAuth2Adapter) fetchToken(ctx context.Context, form url.Values) (tokenEndpointPayload, error) {
	if a.httpClient == nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: oauth2 http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", a.cfg.ClientID)
	if a.cfg.ClientSecretInBody && a.cfg.ClientSecret != "" {
		values.Set("client_secret", a.cfg.ClientSecret)
	}

	requestBody, contentType, err := encodeTokenRequest(values, a.cfg.BodyFormat)
	if err != nil {
		return tokenEndpointPayload{}, err
	}

	requestCtx, cancel := context.WithTimeout(ctx, a.cfg.TokenRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		a.cfg.TokenURL,
		requestBody,
	)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if !a.cfg.ClientSecretInBody && a.cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	}

	response, err := a.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: read token response: %w", readErr)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"), a.cfg.ErrorShape)
	if parseErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: decode token response: %w", parseErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, fmt.Errorf(
			"providers: token endpoint error (%d): %s",
			response.StatusCode,
			describeTokenError(payload),
		)
	}
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint error: %s", describeTokenError(payload))
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint response missing access token")
	}
	return payload, nil
}

// encodeTokenRequest renders the token request body in the provider's
// dialect. JSON flattens repeated keys to their first value; token
// endpoints that take JSON expect single-valued fields.
func encodeTokenRequest(values url.Values, format BodyFormat) (io.Reader, string, error) {
	if format == BodyFormatJSON {
		fields := make(map[string]string, len(values))
		for key := range values {
			fields[key] = values.Get(key)
		}
		encoded, err := json.Marshal(fields)
		if err != nil {
			return nil, "", fmt.Errorf("providers: encode token request: %w", err)
		}
		return bytes.NewReader(encoded), "application/json", nil
	}
	return strings.NewReader(values.Encode()), "application/x-www-form-urlencoded", nil
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string, shape ErrorShape) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body, shape)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body, shape); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte, shape ErrorShape) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	payload := tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
		Raw:              decoded,
	}
	if shape == ErrorShapeSlack {
		if ok, present := decoded["ok"].(bool); present && !ok {
			if payload.ErrorCode == "" {
				payload.ErrorCode = "unknown_error"
			}
		} else {
			// Slack reuses the "error" key for warnings on success; only
			// ok=false is a failure.
			payload.ErrorCode = ""
			payload.ErrorDescription = ""
		}
	}
	return payload, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	raw := map[string]any{}
	for key := range values {
		raw[key] = values.Get(key)
	}
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
		Raw:              raw,
	}, nil
}

func resolveExpiresAt(now time.Time, expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	expiresAt := now.Add(time.Duration(expiresIn) * time.Second)
	return &expiresAt
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

// parseScopeList splits a granted-scope string on commas and whitespace.
// Order is preserved and duplicates dropped; providers treat scope order
// as meaningful in their consent screens.
func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}
	}
	parts := strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
	return normalizeScopes(parts)
}

func normalizeScopes(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		values = append(values, trimmed)
	}
	return values
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

var (
	_ core.ProviderAdapter    = (*OAuth2Adapter)(nil)
	_ core.RefreshableAdapter = (*OAuth2Adapter)(nil)
)
