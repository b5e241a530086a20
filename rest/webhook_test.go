package rest

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/goliatone/go-connections/core"
)

type stubVerifier struct {
	err error
}

func (s stubVerifier) Verify(_ []byte, _ http.Header) error {
	return s.err
}

func TestIdentityWebhookCreatesUser(t *testing.T) {
	var synced core.UserProfileInput
	broker := &stubBroker{
		syncUserProfileFn: func(_ context.Context, in core.UserProfileInput) (core.User, error) {
			synced = in
			return core.User{ID: "user-1", Subject: in.Subject}, nil
		},
	}
	router := newTestRouter(t, broker, WithWebhookVerifier(stubVerifier{}))

	body := `{
		"type": "user.created",
		"data": {
			"id": "auth0|u1",
			"username": "octocat",
			"first_name": "Octo",
			"last_name": "Cat",
			"image_url": "https://img.example.com/octo.png",
			"email_addresses": [{"email_address": "octo@example.com"}]
		}
	}`
	recorder := doRequest(router, http.MethodPost, "/webhooks/identity", "", body)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if synced.Subject != "auth0|u1" || synced.Email != "octo@example.com" || synced.Username != "octocat" {
		t.Fatalf("unexpected profile input: %#v", synced)
	}
	if synced.PhotoURL != "https://img.example.com/octo.png" {
		t.Fatalf("expected image url to map to photo url: %#v", synced)
	}
}

func TestIdentityWebhookUpdatesUser(t *testing.T) {
	broker := &stubBroker{
		syncUserProfileFn: func(_ context.Context, in core.UserProfileInput) (core.User, error) {
			return core.User{Subject: in.Subject}, nil
		},
	}
	router := newTestRouter(t, broker, WithWebhookVerifier(stubVerifier{}))

	body := `{"type": "user.updated", "data": {"id": "auth0|u1", "email_addresses": [{"email_address": "new@example.com"}]}}`
	recorder := doRequest(router, http.MethodPost, "/webhooks/identity", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestIdentityWebhookDeletesUser(t *testing.T) {
	removed := ""
	broker := &stubBroker{
		removeUserFn: func(_ context.Context, subject string) error {
			removed = subject
			return nil
		},
	}
	router := newTestRouter(t, broker, WithWebhookVerifier(stubVerifier{}))

	body := `{"type": "user.deleted", "data": {"id": "auth0|gone"}}`
	recorder := doRequest(router, http.MethodPost, "/webhooks/identity", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if removed != "auth0|gone" {
		t.Fatalf("expected remove user call, got %q", removed)
	}
}

func TestIdentityWebhookRejectsBadSignature(t *testing.T) {
	router := newTestRouter(t, &stubBroker{}, WithWebhookVerifier(stubVerifier{err: fmt.Errorf("signature mismatch")}))

	body := `{"type": "user.created", "data": {"id": "auth0|u1"}}`
	recorder := doRequest(router, http.MethodPost, "/webhooks/identity", "", body)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestIdentityWebhookAcknowledgesUnknownEvents(t *testing.T) {
	router := newTestRouter(t, &stubBroker{}, WithWebhookVerifier(stubVerifier{}))

	body := `{"type": "session.created", "data": {"id": "sess_1"}}`
	recorder := doRequest(router, http.MethodPost, "/webhooks/identity", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected unknown events to be acknowledged, got %d", recorder.Code)
	}
}

func TestIdentityWebhookRouteAbsentWithoutVerifier(t *testing.T) {
	router := newTestRouter(t, &stubBroker{})

	body := `{"type": "user.created", "data": {"id": "auth0|u1"}}`
	recorder := doRequest(router, http.MethodPost, "/webhooks/identity", "", body)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when webhook is not configured, got %d", recorder.Code)
	}
}

func TestNewSvixVerifierRequiresSecret(t *testing.T) {
	if _, err := NewSvixVerifier(" "); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
	if _, err := NewSvixVerifier("whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"); err != nil {
		t.Fatalf("expected valid secret to build a verifier, got %v", err)
	}
}
