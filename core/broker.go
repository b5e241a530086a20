package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrUserNotFound = errors.New("core: user not found")
	ErrHubNotFound  = errors.New("core: hub not found")
	ErrNotConnected = errors.New("core: service not connected")
)

const (
	CallbackErrorMissingParams = "missing_params"
	CallbackErrorAuthFailed    = "auth_failed"
)

// Broker normalizes provider OAuth dialects into one per-user connection
// model: idempotent connect and update, explicit disconnect, and unified
// status queries. All orchestration is request scoped; concurrent
// reconnects for the same (user, service) resolve by last write wins.
type Broker struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	registry          Registry
	userStore         UserStore
	credentialStore   CredentialStore
	hubStore          HubStore
}

type BrokerDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Registry          Registry
	UserStore         UserStore
	CredentialStore   CredentialStore
	HubStore          HubStore
}

func NewBroker(cfg Config, options ...Option) (*Broker, error) {
	builder := defaultBrokerBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("connections", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("connections"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewAdapterRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	missingStore := builder.userStore == nil || builder.credentialStore == nil || builder.hubStore == nil
	if missingStore && builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = direct
		}
		if storeProvider != nil {
			if builder.userStore == nil {
				builder.userStore = storeProvider.UserStore()
			}
			if builder.credentialStore == nil {
				builder.credentialStore = storeProvider.CredentialStore()
			}
			if builder.hubStore == nil {
				builder.hubStore = storeProvider.HubStore()
			}
		}
	}

	return &Broker{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		registry:          builder.registry,
		userStore:         builder.userStore,
		credentialStore:   builder.credentialStore,
		hubStore:          builder.hubStore,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Broker, error) {
	return NewBroker(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (b *Broker) Config() Config {
	if b == nil {
		return Config{}
	}
	return b.config
}

func (b *Broker) Dependencies() BrokerDependencies {
	if b == nil {
		return BrokerDependencies{}
	}
	return BrokerDependencies{
		Logger:            b.logger,
		LoggerProvider:    b.loggerProvider,
		MetricsRecorder:   b.metricsRecorder,
		ErrorFactory:      b.errorFactory,
		ErrorMapper:       b.errorMapper,
		PersistenceClient: b.persistenceClient,
		RepositoryFactory: b.repositoryFactory,
		ConfigProvider:    b.configProvider,
		OptionsResolver:   b.optionsResolver,
		Registry:          b.registry,
		UserStore:         b.userStore,
		CredentialStore:   b.credentialStore,
		HubStore:          b.hubStore,
	}
}

type InitiateRequest struct {
	Subject string
	Service ServiceKey
}

type InitiateResponse struct {
	Service ServiceKey
	AuthURL string
}

// Initiate builds the provider authorization URL with the caller's
// subject embedded as the state parameter. Pure URL construction: no
// state is persisted and repeated calls yield identical URLs.
func (b *Broker) Initiate(ctx context.Context, req InitiateRequest) (response InitiateResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"service": req.Service,
		"subject": req.Subject,
	}
	defer func() {
		b.observeOperation(ctx, startedAt, "initiate", err, fields)
	}()

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		err = b.unauthenticatedError()
		return InitiateResponse{}, err
	}
	adapter, err := b.resolveAdapter(req.Service)
	if err != nil {
		return InitiateResponse{}, err
	}

	authURL, err := adapter.BuildAuthorizationURL(ctx, AuthorizationURLRequest{
		Service: adapter.ID(),
		State:   subject,
	})
	if err != nil {
		err = b.mapError(err)
		return InitiateResponse{}, err
	}
	return InitiateResponse{Service: adapter.ID(), AuthURL: authURL}, nil
}

type CallbackRequest struct {
	Service ServiceKey
	Code    string
	State   string
}

// CallbackResult always carries a RedirectURL: the UI route with
// ?success=<service> appended on success, or a generic ?error= reason on
// failure. Internal failure detail stays in the returned error and never
// reaches the redirect.
type CallbackResult struct {
	Service     ServiceKey
	RedirectURL string
	Credential  CredentialRecord
}

// HandleCallback completes the OAuth flow: validate parameters, resolve
// the state back to a user, exchange the code, fetch the provider
// identity, then upsert the credential record and the hub reference.
// Reconnecting overwrites the existing record in place; its id is stable
// across reconnects.
func (b *Broker) HandleCallback(ctx context.Context, req CallbackRequest) (result CallbackResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"service": req.Service,
	}
	defer func() {
		if result.Credential.ID != "" {
			fields["credential_id"] = result.Credential.ID
		}
		b.observeOperation(ctx, startedAt, "handle_callback", err, fields)
	}()

	adapter, err := b.resolveAdapter(req.Service)
	if err != nil {
		return CallbackResult{RedirectURL: b.callbackErrorRedirect(CallbackErrorAuthFailed)}, err
	}
	service := adapter.ID()
	result.Service = service

	code := strings.TrimSpace(req.Code)
	state := strings.TrimSpace(req.State)
	if code == "" || state == "" {
		err = b.missingParamsError()
		result.RedirectURL = b.callbackErrorRedirect(CallbackErrorMissingParams)
		return result, err
	}
	fields["subject"] = state

	if b.userStore == nil {
		err = b.internalError("core: user store is required")
		result.RedirectURL = b.callbackErrorRedirect(CallbackErrorAuthFailed)
		return result, err
	}
	user, lookupErr := b.userStore.FindBySubject(ctx, state)
	if lookupErr != nil {
		err = b.userNotFoundError(state, lookupErr)
		result.RedirectURL = b.callbackErrorRedirect(CallbackErrorAuthFailed)
		return result, err
	}
	fields["user_id"] = user.ID

	token, exchangeErr := adapter.ExchangeCode(ctx, ExchangeCodeRequest{
		Service: service,
		Code:    code,
	})
	if exchangeErr != nil {
		err = b.exchangeFailedError(service, exchangeErr)
		result.RedirectURL = b.callbackErrorRedirect(CallbackErrorAuthFailed)
		return result, err
	}

	identity, identityErr := adapter.FetchIdentity(ctx, token)
	if identityErr != nil {
		// The exchanged token is discarded with the request; the user
		// retries the whole flow.
		err = b.identityFetchError(service, identityErr)
		result.RedirectURL = b.callbackErrorRedirect(CallbackErrorAuthFailed)
		return result, err
	}

	if b.credentialStore == nil || b.hubStore == nil {
		err = b.internalError("core: credential and hub stores are required")
		result.RedirectURL = b.callbackErrorRedirect(CallbackErrorAuthFailed)
		return result, err
	}

	credential, upsertErr := b.credentialStore.Upsert(ctx, UpsertCredentialInput{
		UserID:       user.ID,
		Service:      service,
		TokenType:    token.TokenType,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scopes:       append([]string(nil), token.Scopes...),
		ExpiresAt:    token.ExpiresAt,
		ExternalID:   identity.ExternalID,
		Username:     identity.Username,
		Email:        identity.Email,
		TeamID:       identity.TeamID,
		TeamName:     identity.TeamName,
		BotUserID:    identity.BotUserID,
	})
	if upsertErr != nil {
		err = b.mapError(upsertErr)
		result.RedirectURL = b.callbackErrorRedirect(CallbackErrorAuthFailed)
		return result, err
	}

	hub, hubErr := b.hubStore.GetOrCreate(ctx, user.ID)
	if hubErr != nil {
		err = b.mapError(hubErr)
		result.RedirectURL = b.callbackErrorRedirect(CallbackErrorAuthFailed)
		return result, err
	}
	if _, refErr := b.hubStore.SetCredentialRef(ctx, hub.ID, service, credential.ID); refErr != nil {
		err = b.mapError(refErr)
		result.RedirectURL = b.callbackErrorRedirect(CallbackErrorAuthFailed)
		return result, err
	}

	result.Credential = credential.PublicView()
	result.RedirectURL = b.callbackSuccessRedirect(service)
	return result, nil
}

type DisconnectRequest struct {
	Subject string
	Service ServiceKey
}

type DisconnectResult struct {
	Service ServiceKey
	Message string
}

// Disconnect removes one connection. It is deliberately not
// idempotent-silent: disconnecting a service that is not connected is an
// error. The hub reference is cleared before the credential row is
// deleted so the hub can never point at a missing record; a failure
// between the two steps leaves an orphaned credential row, which is
// reported as partial state without failing the call.
func (b *Broker) Disconnect(ctx context.Context, req DisconnectRequest) (result DisconnectResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"service": req.Service,
		"subject": req.Subject,
	}
	defer func() {
		b.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		err = b.unauthenticatedError()
		return DisconnectResult{}, err
	}
	service, parseErr := ParseServiceKey(string(req.Service))
	if parseErr != nil {
		err = b.invalidServiceError(string(req.Service))
		return DisconnectResult{}, err
	}
	if b.userStore == nil || b.hubStore == nil || b.credentialStore == nil {
		err = b.internalError("core: stores are required")
		return DisconnectResult{}, err
	}

	user, lookupErr := b.userStore.FindBySubject(ctx, subject)
	if lookupErr != nil {
		err = b.userNotFoundError(subject, lookupErr)
		return DisconnectResult{}, err
	}
	fields["user_id"] = user.ID

	hub, hubErr := b.hubStore.FindByUser(ctx, user.ID)
	if hubErr != nil {
		err = b.hubNotFoundError(user.ID, hubErr)
		return DisconnectResult{}, err
	}

	ref := hub.CredentialRef(service)
	if ref == nil || strings.TrimSpace(*ref) == "" {
		err = b.notConnectedError(service)
		return DisconnectResult{}, err
	}
	credentialID := strings.TrimSpace(*ref)
	fields["credential_id"] = credentialID

	if _, clearErr := b.hubStore.ClearCredentialRef(ctx, hub.ID, service); clearErr != nil {
		err = b.mapError(clearErr)
		return DisconnectResult{}, err
	}
	if deleteErr := b.credentialStore.DeleteByID(ctx, credentialID); deleteErr != nil {
		// The hub no longer references the record, so the user-visible
		// state is disconnected; the stranded row is an internal concern.
		b.reportPartialState(ctx, "disconnect", map[string]any{
			"service":       service,
			"user_id":       user.ID,
			"credential_id": credentialID,
			"cause":         deleteErr.Error(),
		})
	}

	return DisconnectResult{
		Service: service,
		Message: fmt.Sprintf("%s disconnected successfully", service.Label()),
	}, nil
}

// ServiceStatus is the public connection state of one service. Identity
// carries the display value named by IdentityLabel; tokens never appear.
type ServiceStatus struct {
	Service     ServiceKey
	Connected   bool
	ConnectedAt *time.Time
	Username    string
	Email       string
	TeamName    string
}

type ConnectionsSummary struct {
	Services map[ServiceKey]ServiceStatus
}

func (s ConnectionsSummary) Status(service ServiceKey) ServiceStatus {
	if status, ok := s.Services[service]; ok {
		return status
	}
	return ServiceStatus{Service: service}
}

// ListConnections reports every known service for the user. A missing hub
// means nothing was ever connected and yields an all-disconnected
// summary. A hub slot pointing at a record that no longer exists is
// reported disconnected and logged as partial state.
func (b *Broker) ListConnections(ctx context.Context, subject string) (summary ConnectionsSummary, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"subject": subject,
	}
	defer func() {
		b.observeOperation(ctx, startedAt, "list_connections", err, fields)
	}()

	subject = strings.TrimSpace(subject)
	if subject == "" {
		err = b.unauthenticatedError()
		return ConnectionsSummary{}, err
	}
	if b.userStore == nil || b.hubStore == nil || b.credentialStore == nil {
		err = b.internalError("core: stores are required")
		return ConnectionsSummary{}, err
	}

	user, lookupErr := b.userStore.FindBySubject(ctx, subject)
	if lookupErr != nil {
		err = b.userNotFoundError(subject, lookupErr)
		return ConnectionsSummary{}, err
	}
	fields["user_id"] = user.ID

	summary = ConnectionsSummary{Services: map[ServiceKey]ServiceStatus{}}
	for _, service := range KnownServices() {
		summary.Services[service] = ServiceStatus{Service: service}
	}

	hub, hubErr := b.hubStore.FindByUser(ctx, user.ID)
	if hubErr != nil {
		if errors.Is(hubErr, ErrHubNotFound) {
			return summary, nil
		}
		err = b.mapError(hubErr)
		return ConnectionsSummary{}, err
	}

	for _, service := range KnownServices() {
		ref := hub.CredentialRef(service)
		if ref == nil || strings.TrimSpace(*ref) == "" {
			continue
		}
		record, recordErr := b.credentialStore.GetByID(ctx, strings.TrimSpace(*ref))
		if recordErr != nil {
			b.reportPartialState(ctx, "list_connections", map[string]any{
				"service":       service,
				"user_id":       user.ID,
				"credential_id": strings.TrimSpace(*ref),
				"cause":         recordErr.Error(),
			})
			continue
		}
		status := ServiceStatus{
			Service:   service,
			Connected: record.Connected,
		}
		if !record.ConnectedAt.IsZero() {
			connectedAt := record.ConnectedAt
			status.ConnectedAt = &connectedAt
		}
		switch service {
		case ServiceGitHub:
			status.Username = record.Username
		case ServiceSlack:
			status.TeamName = record.TeamName
		default:
			status.Email = record.Email
		}
		summary.Services[service] = status
	}
	return summary, nil
}

// ServiceTokens is a trusted internal read of one connection's secrets.
type ServiceTokens struct {
	Service      ServiceKey
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scopes       []string
}

type UserTokens struct {
	UserID   string
	Services map[ServiceKey]ServiceTokens
}

// UserTokens returns the stored secrets for every connected service. It
// exists for trusted in-process consumers (the downstream relay); nothing
// it returns may be serialized onto a public surface.
func (b *Broker) UserTokens(ctx context.Context, subject string) (tokens UserTokens, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"subject": subject,
	}
	defer func() {
		b.observeOperation(ctx, startedAt, "user_tokens", err, fields)
	}()

	subject = strings.TrimSpace(subject)
	if subject == "" {
		err = b.unauthenticatedError()
		return UserTokens{}, err
	}
	if b.userStore == nil || b.hubStore == nil || b.credentialStore == nil {
		err = b.internalError("core: stores are required")
		return UserTokens{}, err
	}

	user, lookupErr := b.userStore.FindBySubject(ctx, subject)
	if lookupErr != nil {
		err = b.userNotFoundError(subject, lookupErr)
		return UserTokens{}, err
	}
	fields["user_id"] = user.ID

	tokens = UserTokens{UserID: user.ID, Services: map[ServiceKey]ServiceTokens{}}
	hub, hubErr := b.hubStore.FindByUser(ctx, user.ID)
	if hubErr != nil {
		if errors.Is(hubErr, ErrHubNotFound) {
			return tokens, nil
		}
		err = b.mapError(hubErr)
		return UserTokens{}, err
	}

	for _, service := range KnownServices() {
		ref := hub.CredentialRef(service)
		if ref == nil || strings.TrimSpace(*ref) == "" {
			continue
		}
		record, recordErr := b.credentialStore.FindByUserWithSecrets(ctx, user.ID, service)
		if recordErr != nil {
			continue
		}
		entry := ServiceTokens{
			Service:      service,
			AccessToken:  record.AccessToken,
			RefreshToken: record.RefreshToken,
			Scopes:       append([]string(nil), record.Scopes...),
		}
		if record.ExpiresAt != nil {
			expires := *record.ExpiresAt
			entry.ExpiresAt = &expires
		}
		tokens.Services[service] = entry
	}
	return tokens, nil
}

// RefreshCredential performs an on-demand token refresh for a service
// whose adapter supports it, overwriting the stored access token and
// expiry in place.
func (b *Broker) RefreshCredential(ctx context.Context, subject string, service ServiceKey) (record CredentialRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"service": service,
		"subject": subject,
	}
	defer func() {
		b.observeOperation(ctx, startedAt, "refresh_credential", err, fields)
	}()

	subject = strings.TrimSpace(subject)
	if subject == "" {
		err = b.unauthenticatedError()
		return CredentialRecord{}, err
	}
	adapter, err := b.resolveAdapter(service)
	if err != nil {
		return CredentialRecord{}, err
	}
	refresher, ok := adapter.(RefreshableAdapter)
	if !ok {
		err = b.invalidServiceError(fmt.Sprintf("%s does not support refresh", service))
		return CredentialRecord{}, err
	}
	if b.userStore == nil || b.credentialStore == nil {
		err = b.internalError("core: stores are required")
		return CredentialRecord{}, err
	}

	user, lookupErr := b.userStore.FindBySubject(ctx, subject)
	if lookupErr != nil {
		err = b.userNotFoundError(subject, lookupErr)
		return CredentialRecord{}, err
	}
	fields["user_id"] = user.ID

	stored, storedErr := b.credentialStore.FindByUserWithSecrets(ctx, user.ID, adapter.ID())
	if storedErr != nil {
		err = b.notConnectedError(adapter.ID())
		return CredentialRecord{}, err
	}
	if strings.TrimSpace(stored.RefreshToken) == "" {
		err = b.notConnectedError(adapter.ID())
		return CredentialRecord{}, err
	}

	token, refreshErr := refresher.RefreshAccessToken(ctx, stored.RefreshToken)
	if refreshErr != nil {
		err = b.exchangeFailedError(adapter.ID(), refreshErr)
		return CredentialRecord{}, err
	}

	refreshToken := stored.RefreshToken
	if strings.TrimSpace(token.RefreshToken) != "" {
		refreshToken = token.RefreshToken
	}
	scopes := stored.Scopes
	if len(token.Scopes) > 0 {
		scopes = token.Scopes
	}
	updated, upsertErr := b.credentialStore.Upsert(ctx, UpsertCredentialInput{
		UserID:       user.ID,
		Service:      adapter.ID(),
		TokenType:    token.TokenType,
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		Scopes:       append([]string(nil), scopes...),
		ExpiresAt:    token.ExpiresAt,
		ExternalID:   stored.ExternalID,
		Username:     stored.Username,
		Email:        stored.Email,
		TeamID:       stored.TeamID,
		TeamName:     stored.TeamName,
		BotUserID:    stored.BotUserID,
	})
	if upsertErr != nil {
		err = b.mapError(upsertErr)
		return CredentialRecord{}, err
	}
	fields["credential_id"] = updated.ID
	return updated.PublicView(), nil
}

type UserProfileInput struct {
	Subject   string
	Email     string
	Username  string
	FirstName string
	LastName  string
	PhotoURL  string
}

// SyncUserProfile upserts the local user row from an identity-provider
// notification: create on first sight, update in place afterwards.
func (b *Broker) SyncUserProfile(ctx context.Context, in UserProfileInput) (user User, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"subject": in.Subject,
	}
	defer func() {
		if user.ID != "" {
			fields["user_id"] = user.ID
		}
		b.observeOperation(ctx, startedAt, "sync_user_profile", err, fields)
	}()

	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		err = b.missingParamsError()
		return User{}, err
	}
	if b.userStore == nil {
		err = b.internalError("core: user store is required")
		return User{}, err
	}

	if _, findErr := b.userStore.FindBySubject(ctx, subject); findErr == nil {
		user, err = b.userStore.UpdateBySubject(ctx, subject, UpdateUserInput{
			Email:     in.Email,
			Username:  in.Username,
			FirstName: in.FirstName,
			LastName:  in.LastName,
			PhotoURL:  in.PhotoURL,
		})
		if err != nil {
			err = b.mapError(err)
			return User{}, err
		}
		return user, nil
	} else if !errors.Is(findErr, ErrUserNotFound) {
		err = b.mapError(findErr)
		return User{}, err
	}

	user, err = b.userStore.Create(ctx, CreateUserInput{
		Subject:   subject,
		Email:     in.Email,
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		PhotoURL:  in.PhotoURL,
	})
	if err != nil {
		err = b.mapError(err)
		return User{}, err
	}
	return user, nil
}

// RemoveUser deletes the user row and the user's credential records. The
// hub row is left behind with its references cleared; nothing can reach
// it once the user is gone.
func (b *Broker) RemoveUser(ctx context.Context, subject string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"subject": subject,
	}
	defer func() {
		b.observeOperation(ctx, startedAt, "remove_user", err, fields)
	}()

	subject = strings.TrimSpace(subject)
	if subject == "" {
		err = b.missingParamsError()
		return err
	}
	if b.userStore == nil {
		err = b.internalError("core: user store is required")
		return err
	}

	user, lookupErr := b.userStore.FindBySubject(ctx, subject)
	if lookupErr != nil {
		err = b.userNotFoundError(subject, lookupErr)
		return err
	}
	fields["user_id"] = user.ID

	if b.hubStore != nil {
		if hub, hubErr := b.hubStore.FindByUser(ctx, user.ID); hubErr == nil {
			for _, service := range KnownServices() {
				if ref := hub.CredentialRef(service); ref != nil {
					if _, clearErr := b.hubStore.ClearCredentialRef(ctx, hub.ID, service); clearErr != nil {
						b.reportPartialState(ctx, "remove_user", map[string]any{
							"service": service,
							"user_id": user.ID,
							"cause":   clearErr.Error(),
						})
					}
				}
			}
		}
	}
	if b.credentialStore != nil {
		if _, deleteErr := b.credentialStore.DeleteByUser(ctx, user.ID); deleteErr != nil {
			b.reportPartialState(ctx, "remove_user", map[string]any{
				"user_id": user.ID,
				"cause":   deleteErr.Error(),
			})
		}
	}

	if err = b.userStore.DeleteBySubject(ctx, subject); err != nil {
		err = b.mapError(err)
		return err
	}
	return nil
}

func (b *Broker) resolveAdapter(service ServiceKey) (ProviderAdapter, error) {
	if b == nil || b.registry == nil {
		return nil, b.mapError(fmt.Errorf("core: registry unavailable"))
	}
	key, err := ParseServiceKey(string(service))
	if err != nil {
		return nil, b.invalidServiceError(string(service))
	}
	adapter, ok := b.registry.Get(key)
	if !ok {
		return nil, b.invalidServiceError(string(key))
	}
	return adapter, nil
}

func (b *Broker) callbackSuccessRedirect(service ServiceKey) string {
	return b.callbackRedirect("success", string(service))
}

func (b *Broker) callbackErrorRedirect(reason string) string {
	return b.callbackRedirect("error", reason)
}

func (b *Broker) callbackRedirect(key, value string) string {
	base := strings.TrimSpace(b.config.UIRedirectURL)
	if base == "" {
		base = DefaultConfig().UIRedirectURL
	}
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return base + separator + key + "=" + url.QueryEscape(value)
}

func (b *Broker) unauthenticatedError() error {
	return b.errorFactory("authentication is required", goerrors.CategoryAuth).
		WithCode(401).
		WithTextCode(BrokerErrorUnauthenticated)
}

func (b *Broker) missingParamsError() error {
	return b.errorFactory("code and state are required", goerrors.CategoryBadInput).
		WithCode(400).
		WithTextCode(BrokerErrorMissingParams)
}

func (b *Broker) invalidServiceError(value string) error {
	wrapped := b.errorFactory(
		fmt.Sprintf("service %q is not supported", value),
		goerrors.CategoryBadInput,
	).WithCode(400).WithTextCode(BrokerErrorInvalidService)
	return wrapped.WithMetadata(map[string]any{"service": value})
}

func (b *Broker) userNotFoundError(subject string, cause error) error {
	wrapped := b.errorFactory(
		fmt.Sprintf("user not found for subject %q", subject),
		goerrors.CategoryNotFound,
	).WithCode(404).WithTextCode(BrokerErrorUserNotFound)
	if cause != nil {
		wrapped = wrapped.WithMetadata(map[string]any{"cause": cause.Error()})
	}
	return wrapped
}

func (b *Broker) hubNotFoundError(userID string, cause error) error {
	wrapped := b.errorFactory(
		fmt.Sprintf("connection hub not found for user %q", userID),
		goerrors.CategoryNotFound,
	).WithCode(404).WithTextCode(BrokerErrorHubNotFound)
	if cause != nil {
		wrapped = wrapped.WithMetadata(map[string]any{"cause": cause.Error()})
	}
	return wrapped
}

func (b *Broker) notConnectedError(service ServiceKey) error {
	return b.errorFactory(
		fmt.Sprintf("%s is not connected", service.Label()),
		goerrors.CategoryBadInput,
	).WithCode(400).WithTextCode(BrokerErrorNotConnected)
}

func (b *Broker) exchangeFailedError(service ServiceKey, cause error) error {
	wrapped := b.errorFactory(
		fmt.Sprintf("token exchange failed for %s", service.Label()),
		goerrors.CategoryExternal,
	).WithTextCode(BrokerErrorExchangeFailed)
	if cause != nil {
		wrapped = wrapped.WithMetadata(map[string]any{"cause": cause.Error()})
	}
	return ensureBrokerErrorEnvelope(wrapped)
}

func (b *Broker) identityFetchError(service ServiceKey, cause error) error {
	wrapped := b.errorFactory(
		fmt.Sprintf("identity fetch failed for %s", service.Label()),
		goerrors.CategoryExternal,
	).WithTextCode(BrokerErrorIdentityFetchFailed)
	if cause != nil {
		wrapped = wrapped.WithMetadata(map[string]any{"cause": cause.Error()})
	}
	return ensureBrokerErrorEnvelope(wrapped)
}

func (b *Broker) internalError(message string) error {
	return b.errorFactory(message, goerrors.CategoryInternal).
		WithTextCode(BrokerErrorInternal)
}

func (b *Broker) mapError(err error) error {
	if err == nil {
		return nil
	}
	if b == nil || b.errorMapper == nil {
		return err
	}
	mapped := b.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
