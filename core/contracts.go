package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type AuthorizationURLRequest struct {
	Service     ServiceKey
	State       string
	RedirectURI string
}

type ExchangeCodeRequest struct {
	Service     ServiceKey
	Code        string
	RedirectURI string
}

// TokenResult is the normalized output of a token-endpoint exchange or
// refresh. Scopes preserve the order the provider granted them in, with
// duplicates removed. Raw keeps the decoded payload for adapters that
// carry identity inline (Slack).
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       []string
	ExpiresAt    *time.Time
	Raw          map[string]any
}

// Identity is the provider-side account a credential belongs to. Which
// fields are populated depends on the service.
type Identity struct {
	ExternalID string
	Username   string
	Email      string
	TeamID     string
	TeamName   string
	BotUserID  string
	Raw        map[string]any
}

// ProviderAdapter normalizes one OAuth2 dialect. Implementations are
// stateless with respect to requests; all per-user correlation travels in
// the state parameter.
type ProviderAdapter interface {
	ID() ServiceKey
	Label() string
	BuildAuthorizationURL(ctx context.Context, req AuthorizationURLRequest) (string, error)
	ExchangeCode(ctx context.Context, req ExchangeCodeRequest) (TokenResult, error)
	FetchIdentity(ctx context.Context, token TokenResult) (Identity, error)
}

// RefreshableAdapter is implemented by adapters whose provider issues
// refresh tokens (the Google family).
type RefreshableAdapter interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (TokenResult, error)
}

type Registry interface {
	Register(adapter ProviderAdapter) error
	Get(service ServiceKey) (ProviderAdapter, bool)
	List() []ProviderAdapter
}

type CreateUserInput struct {
	Subject   string
	Email     string
	Username  string
	FirstName string
	LastName  string
	PhotoURL  string
}

type UpdateUserInput struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
	PhotoURL  string
}

type UserStore interface {
	Create(ctx context.Context, in CreateUserInput) (User, error)
	FindBySubject(ctx context.Context, subject string) (User, error)
	UpdateBySubject(ctx context.Context, subject string, in UpdateUserInput) (User, error)
	DeleteBySubject(ctx context.Context, subject string) error
}

type UpsertCredentialInput struct {
	UserID       string
	Service      ServiceKey
	TokenType    string
	AccessToken  string
	RefreshToken string
	Scopes       []string
	ExpiresAt    *time.Time
	ExternalID   string
	Username     string
	Email        string
	TeamID       string
	TeamName     string
	BotUserID    string
}

// CredentialStore persists credential records. FindByUser and GetByID
// return records with the token secrets cleared; callers that genuinely
// need tokens use the WithSecrets variants.
type CredentialStore interface {
	Upsert(ctx context.Context, in UpsertCredentialInput) (CredentialRecord, error)
	FindByUser(ctx context.Context, userID string, service ServiceKey) (CredentialRecord, error)
	FindByUserWithSecrets(ctx context.Context, userID string, service ServiceKey) (CredentialRecord, error)
	GetByID(ctx context.Context, id string) (CredentialRecord, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// HubStore persists connection hubs. SetCredentialRef and
// ClearCredentialRef update the slot and the connected-services list in a
// single row write.
type HubStore interface {
	GetOrCreate(ctx context.Context, userID string) (ConnectionHub, error)
	FindByUser(ctx context.Context, userID string) (ConnectionHub, error)
	SetCredentialRef(ctx context.Context, hubID string, service ServiceKey, credentialID string) (ConnectionHub, error)
	ClearCredentialRef(ctx context.Context, hubID string, service ServiceKey) (ConnectionHub, error)
}

type StoreProvider interface {
	UserStore() UserStore
	CredentialStore() CredentialStore
	HubStore() HubStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// ConnectionBroker is the full broker surface. The concrete Broker is
// the only implementation; the interface exists so transports and
// command handlers can take a narrow dependency.
type ConnectionBroker interface {
	Initiate(ctx context.Context, req InitiateRequest) (InitiateResponse, error)
	HandleCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error)
	Disconnect(ctx context.Context, req DisconnectRequest) (DisconnectResult, error)
	ListConnections(ctx context.Context, subject string) (ConnectionsSummary, error)
	UserTokens(ctx context.Context, subject string) (UserTokens, error)
	RefreshCredential(ctx context.Context, subject string, service ServiceKey) (CredentialRecord, error)
	SyncUserProfile(ctx context.Context, in UserProfileInput) (User, error)
	RemoveUser(ctx context.Context, subject string) error
}
