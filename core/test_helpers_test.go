package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type testAdapter struct {
	id           ServiceKey
	authURL      string
	exchangeErr  error
	identityErr  error
	refreshErr   error
	token        TokenResult
	identity     Identity
	refreshed    TokenResult
	lastExchange ExchangeCodeRequest
}

func (a *testAdapter) ID() ServiceKey { return a.id }

func (a *testAdapter) Label() string { return a.id.Label() }

func (a *testAdapter) BuildAuthorizationURL(_ context.Context, req AuthorizationURLRequest) (string, error) {
	if a.authURL != "" {
		return a.authURL + "&state=" + req.State, nil
	}
	return "https://example.com/authorize?state=" + req.State, nil
}

func (a *testAdapter) ExchangeCode(_ context.Context, req ExchangeCodeRequest) (TokenResult, error) {
	a.lastExchange = req
	if a.exchangeErr != nil {
		return TokenResult{}, a.exchangeErr
	}
	if a.token.AccessToken == "" {
		return TokenResult{AccessToken: "access-token", TokenType: "bearer", Scopes: []string{"scope:a"}}, nil
	}
	return a.token, nil
}

func (a *testAdapter) FetchIdentity(context.Context, TokenResult) (Identity, error) {
	if a.identityErr != nil {
		return Identity{}, a.identityErr
	}
	if a.identity.ExternalID == "" {
		return Identity{ExternalID: "ext-1", Username: "octocat", Email: "octo@example.com"}, nil
	}
	return a.identity, nil
}

func (a *testAdapter) RefreshAccessToken(context.Context, string) (TokenResult, error) {
	if a.refreshErr != nil {
		return TokenResult{}, a.refreshErr
	}
	if a.refreshed.AccessToken == "" {
		return TokenResult{AccessToken: "refreshed-token", TokenType: "bearer"}, nil
	}
	return a.refreshed, nil
}

// journal records store calls across fakes so ordering assertions can
// span stores.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) record(entry string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type memoryUserStore struct {
	mu      sync.Mutex
	nextID  int
	users   map[string]User
	journal *journal
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: map[string]User{}}
}

func (s *memoryUserStore) Create(_ context.Context, in CreateUserInput) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[in.Subject]; exists {
		return User{}, fmt.Errorf("memory user store: subject %q already exists", in.Subject)
	}
	s.nextID++
	now := time.Now().UTC()
	user := User{
		ID:        fmt.Sprintf("user-%d", s.nextID),
		Subject:   in.Subject,
		Email:     in.Email,
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		PhotoURL:  in.PhotoURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[in.Subject] = user
	s.journal.record("user.create:" + in.Subject)
	return user, nil
}

func (s *memoryUserStore) FindBySubject(_ context.Context, subject string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[subject]
	if !ok {
		return User{}, fmt.Errorf("memory user store: user not found for %q: %w", subject, ErrUserNotFound)
	}
	return user, nil
}

func (s *memoryUserStore) UpdateBySubject(_ context.Context, subject string, in UpdateUserInput) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[subject]
	if !ok {
		return User{}, fmt.Errorf("memory user store: user not found for %q: %w", subject, ErrUserNotFound)
	}
	user.Email = in.Email
	user.Username = in.Username
	user.FirstName = in.FirstName
	user.LastName = in.LastName
	user.PhotoURL = in.PhotoURL
	user.UpdatedAt = time.Now().UTC()
	s.users[subject] = user
	s.journal.record("user.update:" + subject)
	return user, nil
}

func (s *memoryUserStore) DeleteBySubject(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[subject]; !ok {
		return fmt.Errorf("memory user store: user not found for %q: %w", subject, ErrUserNotFound)
	}
	delete(s.users, subject)
	s.journal.record("user.delete:" + subject)
	return nil
}

type failingReadUserStore struct {
	*memoryUserStore
	readErr error
}

func (s *failingReadUserStore) FindBySubject(ctx context.Context, subject string) (User, error) {
	if s.readErr != nil {
		return User{}, s.readErr
	}
	return s.memoryUserStore.FindBySubject(ctx, subject)
}

type memoryCredentialStore struct {
	mu        sync.Mutex
	nextID    int
	records   map[string]CredentialRecord
	journal   *journal
	deleteErr error
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{records: map[string]CredentialRecord{}}
}

func credentialKey(userID string, service ServiceKey) string {
	return userID + "/" + string(service)
}

func (s *memoryCredentialStore) Upsert(_ context.Context, in UpsertCredentialInput) (CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	key := credentialKey(in.UserID, in.Service)
	record, exists := s.records[key]
	if !exists {
		s.nextID++
		record = CredentialRecord{
			ID:        fmt.Sprintf("cred-%d", s.nextID),
			UserID:    in.UserID,
			Service:   in.Service,
			CreatedAt: now,
		}
	}
	record.TokenType = in.TokenType
	record.AccessToken = in.AccessToken
	record.RefreshToken = in.RefreshToken
	record.Scopes = append([]string(nil), in.Scopes...)
	record.ExpiresAt = in.ExpiresAt
	record.ExternalID = in.ExternalID
	record.Username = in.Username
	record.Email = in.Email
	record.TeamID = in.TeamID
	record.TeamName = in.TeamName
	record.BotUserID = in.BotUserID
	record.Connected = true
	record.ConnectedAt = now
	record.UpdatedAt = now
	s.records[key] = record
	s.journal.record("credential.upsert:" + key)
	return record, nil
}

func (s *memoryCredentialStore) FindByUser(ctx context.Context, userID string, service ServiceKey) (CredentialRecord, error) {
	record, err := s.FindByUserWithSecrets(ctx, userID, service)
	if err != nil {
		return CredentialRecord{}, err
	}
	return record.PublicView(), nil
}

func (s *memoryCredentialStore) FindByUserWithSecrets(_ context.Context, userID string, service ServiceKey) (CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[credentialKey(userID, service)]
	if !ok {
		return CredentialRecord{}, fmt.Errorf("memory credential store: not connected: %s", service)
	}
	return record, nil
}

func (s *memoryCredentialStore) GetByID(_ context.Context, id string) (CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ID == id {
			return record.PublicView(), nil
		}
	}
	return CredentialRecord{}, fmt.Errorf("memory credential store: record %q not found", id)
}

func (s *memoryCredentialStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal.record("credential.delete:" + id)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for key, record := range s.records {
		if record.ID == id {
			delete(s.records, key)
			return nil
		}
	}
	return fmt.Errorf("memory credential store: record %q not found", id)
}

func (s *memoryCredentialStore) DeleteByUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for key, record := range s.records {
		if record.UserID == userID {
			delete(s.records, key)
			count++
		}
	}
	s.journal.record(fmt.Sprintf("credential.delete_by_user:%s:%d", userID, count))
	return count, nil
}

type memoryHubStore struct {
	mu      sync.Mutex
	nextID  int
	hubs    map[string]*ConnectionHub
	journal *journal
}

func newMemoryHubStore() *memoryHubStore {
	return &memoryHubStore{hubs: map[string]*ConnectionHub{}}
}

func (s *memoryHubStore) GetOrCreate(_ context.Context, userID string) (ConnectionHub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hub, ok := s.hubs[userID]; ok {
		return *hub, nil
	}
	s.nextID++
	now := time.Now().UTC()
	hub := &ConnectionHub{
		ID:        fmt.Sprintf("hub-%d", s.nextID),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.hubs[userID] = hub
	s.journal.record("hub.create:" + userID)
	return *hub, nil
}

func (s *memoryHubStore) FindByUser(_ context.Context, userID string) (ConnectionHub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hub, ok := s.hubs[userID]
	if !ok {
		return ConnectionHub{}, fmt.Errorf("%w: user %q", ErrHubNotFound, userID)
	}
	return *hub, nil
}

func (s *memoryHubStore) findByID(hubID string) (*ConnectionHub, error) {
	for _, hub := range s.hubs {
		if hub.ID == hubID {
			return hub, nil
		}
	}
	return nil, fmt.Errorf("%w: id %q", ErrHubNotFound, hubID)
}

func (s *memoryHubStore) SetCredentialRef(_ context.Context, hubID string, service ServiceKey, credentialID string) (ConnectionHub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hub, err := s.findByID(hubID)
	if err != nil {
		return ConnectionHub{}, err
	}
	if err := hub.SetCredentialRef(service, credentialID, time.Now().UTC()); err != nil {
		return ConnectionHub{}, err
	}
	s.journal.record(fmt.Sprintf("hub.set_ref:%s:%s", service, credentialID))
	return *hub, nil
}

func (s *memoryHubStore) ClearCredentialRef(_ context.Context, hubID string, service ServiceKey) (ConnectionHub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hub, err := s.findByID(hubID)
	if err != nil {
		return ConnectionHub{}, err
	}
	if err := hub.ClearCredentialRef(service, time.Now().UTC()); err != nil {
		return ConnectionHub{}, err
	}
	s.journal.record("hub.clear_ref:" + string(service))
	return *hub, nil
}

type captureMetrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string][]float64
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{
		counters:   map[string]int64{},
		histograms: map[string][]float64{},
	}
}

func (m *captureMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *captureMetrics) ObserveHistogram(_ context.Context, name string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[name] = append(m.histograms[name], value)
}

func (m *captureMetrics) counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

type brokerFixture struct {
	broker      *Broker
	users       *memoryUserStore
	credentials *memoryCredentialStore
	hubs        *memoryHubStore
	journal     *journal
	metrics     *captureMetrics
}

func newBrokerFixture(t *testing.T, adapters ...ProviderAdapter) *brokerFixture {
	t.Helper()

	log := &journal{}
	users := newMemoryUserStore()
	users.journal = log
	credentials := newMemoryCredentialStore()
	credentials.journal = log
	hubs := newMemoryHubStore()
	hubs.journal = log
	metrics := newCaptureMetrics()

	registry := NewAdapterRegistry()
	for _, adapter := range adapters {
		if err := registry.Register(adapter); err != nil {
			t.Fatalf("register adapter: %v", err)
		}
	}

	broker, err := NewBroker(Config{
		ServiceName:   "connections-test",
		UIRedirectURL: "https://app.example.com/integrations",
	},
		WithLogger(glog.Nop()),
		WithMetricsRecorder(metrics),
		WithRegistry(registry),
		WithUserStore(users),
		WithCredentialStore(credentials),
		WithHubStore(hubs),
	)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}

	return &brokerFixture{
		broker:      broker,
		users:       users,
		credentials: credentials,
		hubs:        hubs,
		journal:     log,
		metrics:     metrics,
	}
}

func (f *brokerFixture) seedUser(t *testing.T, subject string) User {
	t.Helper()
	user, err := f.users.Create(context.Background(), CreateUserInput{
		Subject:  subject,
		Email:    subject + "@example.com",
		Username: strings.Split(subject, "|")[0],
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (f *brokerFixture) connect(t *testing.T, subject string, service ServiceKey) CallbackResult {
	t.Helper()
	result, err := f.broker.HandleCallback(context.Background(), CallbackRequest{
		Service: service,
		Code:    "auth-code",
		State:   subject,
	})
	if err != nil {
		t.Fatalf("handle callback for %s: %v", service, err)
	}
	return result
}
