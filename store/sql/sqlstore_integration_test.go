package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-connections/core"
	sqlstore "github.com/goliatone/go-connections/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-connections-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:connections-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	if err := sqlstore.EnsureSchema(context.Background(), client.DB()); err != nil {
		_ = client.Close()
		t.Fatalf("ensure schema: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()

	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("build repository factory: %v", err)
	}
	return factory, cleanup
}

func seedUser(t *testing.T, factory *sqlstore.RepositoryFactory, subject string) core.User {
	t.Helper()

	user, err := factory.UserStore().Create(context.Background(), core.CreateUserInput{
		Subject:  subject,
		Email:    subject + "@example.com",
		Username: "tester",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestFactoryBuildsStoresFromBunDB(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("build factory from db: %v", err)
	}
	if factory.UserStore() == nil || factory.CredentialStore() == nil || factory.HubStore() == nil {
		t.Fatalf("expected all stores to be initialized")
	}
	if factory.DB() != client.DB() {
		t.Fatalf("expected factory to reuse the provided db handle")
	}
}

func TestFactoryRejectsUnsupportedClient(t *testing.T) {
	factory := sqlstore.NewRepositoryFactory()
	if _, err := factory.BuildStores(42); err == nil {
		t.Fatalf("expected unsupported persistence client to fail")
	}
	if _, err := factory.BuildStores(nil); err == nil {
		t.Fatalf("expected nil persistence client to fail")
	}
}

func TestUserStoreLifecycle(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	created := seedUser(t, factory, "auth0|user-1")
	if created.ID == "" {
		t.Fatalf("expected created user to carry an id")
	}

	found, err := factory.UserStore().FindBySubject(ctx, "auth0|user-1")
	if err != nil {
		t.Fatalf("find by subject: %v", err)
	}
	if found.ID != created.ID || found.Email != "auth0|user-1@example.com" {
		t.Fatalf("unexpected user: %+v", found)
	}

	updated, err := factory.UserStore().UpdateBySubject(ctx, "auth0|user-1", core.UpdateUserInput{
		Email:     "renamed@example.com",
		Username:  "renamed",
		FirstName: "Re",
		LastName:  "Named",
	})
	if err != nil {
		t.Fatalf("update by subject: %v", err)
	}
	if updated.ID != created.ID {
		t.Fatalf("expected update to keep the user id, got %q want %q", updated.ID, created.ID)
	}
	if updated.Email != "renamed@example.com" || updated.Username != "renamed" {
		t.Fatalf("unexpected updated user: %+v", updated)
	}

	if err := factory.UserStore().DeleteBySubject(ctx, "auth0|user-1"); err != nil {
		t.Fatalf("delete by subject: %v", err)
	}
	if _, err := factory.UserStore().FindBySubject(ctx, "auth0|user-1"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected user not found after delete, got %v", err)
	}
	if err := factory.UserStore().DeleteBySubject(ctx, "auth0|user-1"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected delete of missing user to fail, got %v", err)
	}
}

func TestUserStoreRejectsDuplicateSubject(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()

	seedUser(t, factory, "auth0|dupe")
	_, err := factory.UserStore().Create(context.Background(), core.CreateUserInput{Subject: "auth0|dupe"})
	if err == nil {
		t.Fatalf("expected duplicate subject to be rejected")
	}
}

func TestCredentialUpsertKeepsIDOnReconnect(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	user := seedUser(t, factory, "auth0|cred-1")
	expiresAt := time.Now().UTC().Add(time.Hour)

	first, err := factory.CredentialStore().Upsert(ctx, core.UpsertCredentialInput{
		UserID:       user.ID,
		Service:      core.ServiceGitHub,
		TokenType:    "bearer",
		AccessToken:  "gho_first",
		RefreshToken: "",
		Scopes:       []string{"repo", "read:user"},
		ExternalID:   "MDQ6VXNlcjE=",
		Username:     "octocat",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !first.Connected || first.ID == "" {
		t.Fatalf("unexpected first credential: %+v", first)
	}

	second, err := factory.CredentialStore().Upsert(ctx, core.UpsertCredentialInput{
		UserID:      user.ID,
		Service:     core.ServiceGitHub,
		TokenType:   "bearer",
		AccessToken: "gho_second",
		Scopes:      []string{"repo"},
		ExpiresAt:   &expiresAt,
		ExternalID:  "MDQ6VXNlcjE=",
		Username:    "octocat",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected reconnect to keep the credential id, got %q want %q", second.ID, first.ID)
	}
	if second.AccessToken != "gho_second" {
		t.Fatalf("expected reconnect to replace the access token")
	}

	stored, err := factory.CredentialStore().FindByUserWithSecrets(ctx, user.ID, core.ServiceGitHub)
	if err != nil {
		t.Fatalf("find with secrets: %v", err)
	}
	if stored.AccessToken != "gho_second" {
		t.Fatalf("expected stored token to reflect the re-upsert, got %q", stored.AccessToken)
	}
	if stored.ExpiresAt == nil {
		t.Fatalf("expected stored expiry to be set")
	}
}

func TestCredentialFindByUserClearsSecrets(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	user := seedUser(t, factory, "auth0|cred-2")
	created, err := factory.CredentialStore().Upsert(ctx, core.UpsertCredentialInput{
		UserID:       user.ID,
		Service:      core.ServiceGmail,
		TokenType:    "bearer",
		AccessToken:  "ya29.secret",
		RefreshToken: "1//refresh",
		Scopes:       []string{"https://www.googleapis.com/auth/gmail.readonly"},
		Email:        "octo@example.com",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	public, err := factory.CredentialStore().FindByUser(ctx, user.ID, core.ServiceGmail)
	if err != nil {
		t.Fatalf("find by user: %v", err)
	}
	if public.AccessToken != "" || public.RefreshToken != "" {
		t.Fatalf("expected secrets to be cleared, got %+v", public)
	}
	if public.Email != "octo@example.com" || !public.Connected {
		t.Fatalf("unexpected public credential: %+v", public)
	}

	byID, err := factory.CredentialStore().GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.AccessToken != "" || byID.RefreshToken != "" {
		t.Fatalf("expected get by id to clear secrets, got %+v", byID)
	}
}

func TestCredentialDeleteByUserReportsCount(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	user := seedUser(t, factory, "auth0|cred-3")
	for _, service := range []core.ServiceKey{core.ServiceGitHub, core.ServiceSlack} {
		if _, err := factory.CredentialStore().Upsert(ctx, core.UpsertCredentialInput{
			UserID:      user.ID,
			Service:     service,
			TokenType:   "bearer",
			AccessToken: "token-" + string(service),
		}); err != nil {
			t.Fatalf("upsert %s: %v", service, err)
		}
	}

	deleted, err := factory.CredentialStore().DeleteByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("delete by user: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted credentials, got %d", deleted)
	}
	if _, err := factory.CredentialStore().FindByUser(ctx, user.ID, core.ServiceGitHub); err == nil {
		t.Fatalf("expected credential lookup to fail after delete")
	}
}

func TestHubGetOrCreateIsIdempotent(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	user := seedUser(t, factory, "auth0|hub-1")

	first, err := factory.HubStore().GetOrCreate(ctx, user.ID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if first.ID == "" || len(first.ConnectedServices) != 0 {
		t.Fatalf("unexpected new hub: %+v", first)
	}

	second, err := factory.HubStore().GetOrCreate(ctx, user.ID)
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected idempotent hub, got %q want %q", second.ID, first.ID)
	}
}

func TestHubFindByUserNotFound(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()

	_, err := factory.HubStore().FindByUser(context.Background(), "missing-user")
	if !errors.Is(err, core.ErrHubNotFound) {
		t.Fatalf("expected hub not found, got %v", err)
	}
}

func TestHubSetAndClearCredentialRef(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	user := seedUser(t, factory, "auth0|hub-2")
	hub, err := factory.HubStore().GetOrCreate(ctx, user.ID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}

	withRef, err := factory.HubStore().SetCredentialRef(ctx, hub.ID, core.ServiceSlack, "cred-slack-1")
	if err != nil {
		t.Fatalf("set credential ref: %v", err)
	}
	ref := withRef.CredentialRef(core.ServiceSlack)
	if ref == nil || *ref != "cred-slack-1" {
		t.Fatalf("expected slack ref to be set, got %+v", withRef)
	}
	if !withRef.IsConnected(core.ServiceSlack) {
		t.Fatalf("expected connected services to include slack")
	}

	reloaded, err := factory.HubStore().FindByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("reload hub: %v", err)
	}
	if !reloaded.IsConnected(core.ServiceSlack) {
		t.Fatalf("expected slack connection to persist, got %+v", reloaded)
	}

	cleared, err := factory.HubStore().ClearCredentialRef(ctx, hub.ID, core.ServiceSlack)
	if err != nil {
		t.Fatalf("clear credential ref: %v", err)
	}
	if cleared.CredentialRef(core.ServiceSlack) != nil || cleared.IsConnected(core.ServiceSlack) {
		t.Fatalf("expected slack ref to be cleared, got %+v", cleared)
	}

	if _, err := factory.HubStore().SetCredentialRef(ctx, "missing-hub", core.ServiceSlack, "cred-x"); !errors.Is(err, core.ErrHubNotFound) {
		t.Fatalf("expected missing hub to fail, got %v", err)
	}
}

func TestBrokerAgainstSQLiteStores(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	user := seedUser(t, factory, "auth0|broker-1")

	if _, err := factory.CredentialStore().Upsert(ctx, core.UpsertCredentialInput{
		UserID:      user.ID,
		Service:     core.ServiceGitHub,
		TokenType:   "bearer",
		AccessToken: "gho_live",
		Scopes:      []string{"repo"},
		Username:    "octocat",
	}); err != nil {
		t.Fatalf("upsert credential: %v", err)
	}
	stored, err := factory.CredentialStore().FindByUserWithSecrets(ctx, user.ID, core.ServiceGitHub)
	if err != nil {
		t.Fatalf("reload credential: %v", err)
	}
	hub, err := factory.HubStore().GetOrCreate(ctx, user.ID)
	if err != nil {
		t.Fatalf("get or create hub: %v", err)
	}
	if _, err := factory.HubStore().SetCredentialRef(ctx, hub.ID, core.ServiceGitHub, stored.ID); err != nil {
		t.Fatalf("set credential ref: %v", err)
	}

	broker, err := core.NewBroker(core.Config{
		ServiceName:   "connections-sqlite-test",
		UIRedirectURL: "https://app.example.com/integrations",
	}, core.WithRepositoryFactory(factory))
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}

	summary, err := broker.ListConnections(ctx, "auth0|broker-1")
	if err != nil {
		t.Fatalf("list connections: %v", err)
	}
	github := summary.Status(core.ServiceGitHub)
	if !github.Connected || github.Username != "octocat" {
		t.Fatalf("unexpected github status: %+v", github)
	}
	if summary.Status(core.ServiceSlack).Connected {
		t.Fatalf("expected slack to be disconnected")
	}
}
