// Package connections normalizes per-provider OAuth 2.0 dialects into one
// per-user connection model with idempotent connect, disconnect, and
// unified status queries. The root package re-exports the core surface so
// host applications wire the broker without importing subpackages.
package connections

import "github.com/goliatone/go-connections/core"

type Config = core.Config

type ProviderConfig = core.ProviderConfig

type Option = core.Option

type Broker = core.Broker

type BrokerDependencies = core.BrokerDependencies

type ServiceKey = core.ServiceKey

type Registry = core.Registry

type ProviderAdapter = core.ProviderAdapter

type UserStore = core.UserStore
type CredentialStore = core.CredentialStore
type HubStore = core.HubStore
type StoreProvider = core.StoreProvider

type InitiateRequest = core.InitiateRequest
type InitiateResponse = core.InitiateResponse
type CallbackRequest = core.CallbackRequest
type CallbackResult = core.CallbackResult
type DisconnectRequest = core.DisconnectRequest
type DisconnectResult = core.DisconnectResult
type ConnectionsSummary = core.ConnectionsSummary
type ServiceStatus = core.ServiceStatus
type UserTokens = core.UserTokens
type UserProfileInput = core.UserProfileInput

const (
	ServiceGoogleDrive = core.ServiceGoogleDrive
	ServiceSlack       = core.ServiceSlack
	ServiceGitHub      = core.ServiceGitHub
	ServiceGmail       = core.ServiceGmail
	ServiceGoogleChat  = core.ServiceGoogleChat
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithRegistry          = core.WithRegistry
	WithUserStore         = core.WithUserStore
	WithCredentialStore   = core.WithCredentialStore
	WithHubStore          = core.WithHubStore
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewBroker(cfg Config, opts ...Option) (*Broker, error) {
	return core.NewBroker(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Broker, error) {
	return core.Setup(cfg, opts...)
}
