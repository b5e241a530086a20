package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	connections "github.com/goliatone/go-connections"
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/providers"
	githubadapter "github.com/goliatone/go-connections/providers/github"
	googlechat "github.com/goliatone/go-connections/providers/google/chat"
	googlecommon "github.com/goliatone/go-connections/providers/google/common"
	googledrive "github.com/goliatone/go-connections/providers/google/drive"
	gmailadapter "github.com/goliatone/go-connections/providers/google/gmail"
	slackadapter "github.com/goliatone/go-connections/providers/slack"
	"github.com/goliatone/go-connections/rest"
	sqlstore "github.com/goliatone/go-connections/store/sql"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

func main() {
	logger := glog.Ensure(nil)

	if err := run(logger); err != nil {
		logger.Error("connectd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger core.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadEnvConfig()

	client, err := openPersistence(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer client.Close()

	if err := sqlstore.EnsureSchema(ctx, client.DB()); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return fmt.Errorf("build stores: %w", err)
	}

	registry := core.NewAdapterRegistry()
	if err := registerProviders(registry, cfg); err != nil {
		return fmt.Errorf("register providers: %w", err)
	}

	broker, err := connections.NewBroker(connections.Config{
		ServiceName:   "connections",
		UIRedirectURL: cfg.uiRedirectURL,
	},
		connections.WithLogger(logger),
		connections.WithRegistry(registry),
		connections.WithRepositoryFactory(factory),
	)
	if err != nil {
		return fmt.Errorf("build broker: %w", err)
	}

	handlerOpts := []rest.HandlerOption{rest.WithLogger(logger)}
	if cfg.webhookSecret != "" {
		verifier, err := rest.NewSvixVerifier(cfg.webhookSecret)
		if err != nil {
			return fmt.Errorf("webhook verifier: %w", err)
		}
		handlerOpts = append(handlerOpts, rest.WithWebhookVerifier(verifier))
	}
	if cfg.agentServiceURL != "" {
		relay, err := rest.NewAgentRelay(cfg.agentServiceURL, nil)
		if err != nil {
			return fmt.Errorf("agent relay: %w", err)
		}
		handlerOpts = append(handlerOpts, rest.WithAgentRelay(relay))
	}

	handler, err := rest.NewHandler(broker, handlerOpts...)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("connectd listening", "addr", server.Addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("connectd stopped")
	return nil
}

type envConfig struct {
	port            string
	uiRedirectURL   string
	dbDriver        string
	dbDSN           string
	webhookSecret   string
	agentServiceURL string

	providers map[core.ServiceKey]core.ProviderConfig
}

func loadEnvConfig() envConfig {
	cfg := envConfig{
		port:            envOr("APP_PORT", "8080"),
		uiRedirectURL:   envOr("UI_REDIRECT_URL", "/integrations"),
		dbDriver:        envOr("DATABASE_DRIVER", "sqlite3"),
		dbDSN:           envOr("DATABASE_DSN", "file:connections.db?cache=shared&_foreign_keys=on"),
		webhookSecret:   os.Getenv("IDENTITY_WEBHOOK_SECRET"),
		agentServiceURL: os.Getenv("AGENT_SERVICE_URL"),
		providers:       map[core.ServiceKey]core.ProviderConfig{},
	}

	env := map[core.ServiceKey]string{
		core.ServiceGitHub:      "GITHUB",
		core.ServiceSlack:       "SLACK",
		core.ServiceGmail:       "GMAIL",
		core.ServiceGoogleChat:  "GOOGLE_CHAT",
		core.ServiceGoogleDrive: "GOOGLE_DRIVE",
	}
	for service, prefix := range env {
		clientID := os.Getenv(prefix + "_CLIENT_ID")
		if strings.TrimSpace(clientID) == "" {
			continue
		}
		cfg.providers[service] = core.ProviderConfig{
			ClientID:     clientID,
			ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
			RedirectURI:  os.Getenv(prefix + "_REDIRECT_URI"),
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func openPersistence(cfg envConfig) (*persistence.Client, error) {
	var dialect schema.Dialect
	switch cfg.dbDriver {
	case "postgres":
		dialect = pgdialect.New()
	case "sqlite3":
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.dbDriver)
	}

	sqlDB, err := sql.Open(cfg.dbDriver, cfg.dbDSN)
	if err != nil {
		return nil, err
	}
	if cfg.dbDriver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		driver: cfg.dbDriver,
		server: cfg.dbDSN,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return client, nil
}

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-connections" }

// registerProviders builds one adapter per configured provider. A
// provider with credentials that fail validation aborts startup; partial
// configuration never degrades to per-request errors.
func registerProviders(registry core.Registry, cfg envConfig) error {
	for service, provider := range cfg.providers {
		adapter, err := buildAdapter(service, provider)
		if err != nil {
			return fmt.Errorf("%s: %w", service, err)
		}
		if err := registry.Register(adapter); err != nil {
			return err
		}
	}
	return nil
}

func buildAdapter(service core.ServiceKey, cfg core.ProviderConfig) (*providers.OAuth2Adapter, error) {
	switch service {
	case core.ServiceGitHub:
		return githubadapter.New(githubadapter.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURI:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
		})
	case core.ServiceSlack:
		return slackadapter.New(slackadapter.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURI:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
		})
	case core.ServiceGmail:
		return gmailadapter.New(googlecommon.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURI:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
		})
	case core.ServiceGoogleChat:
		return googlechat.New(googlecommon.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURI:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
		})
	case core.ServiceGoogleDrive:
		return googledrive.New(googlecommon.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURI:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
		})
	default:
		return nil, fmt.Errorf("unknown service %q", service)
	}
}
