package core

import (
	"testing"
	"time"
)

func TestParseServiceKey(t *testing.T) {
	cases := []struct {
		input   string
		want    ServiceKey
		wantErr bool
	}{
		{input: "github", want: ServiceGitHub},
		{input: "GitHub", want: ServiceGitHub},
		{input: " googledrive ", want: ServiceGoogleDrive},
		{input: "googleChat", want: ServiceGoogleChat},
		{input: "gmail", want: ServiceGmail},
		{input: "slack", want: ServiceSlack},
		{input: "", wantErr: true},
		{input: "dropbox", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseServiceKey(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseServiceKey(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseServiceKey(%q): %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("ParseServiceKey(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestCredentialRecordPublicViewClearsSecrets(t *testing.T) {
	expires := time.Now().UTC().Add(time.Hour)
	record := CredentialRecord{
		ID:           "cred-1",
		Service:      ServiceGmail,
		AccessToken:  "access",
		RefreshToken: "refresh",
		Scopes:       []string{"a", "b"},
		ExpiresAt:    &expires,
		Email:        "user@example.com",
	}

	view := record.PublicView()
	if view.AccessToken != "" || view.RefreshToken != "" {
		t.Fatalf("expected secrets cleared, got %q / %q", view.AccessToken, view.RefreshToken)
	}
	if view.Email != "user@example.com" {
		t.Fatalf("expected identity fields preserved")
	}

	view.Scopes[0] = "mutated"
	*view.ExpiresAt = view.ExpiresAt.Add(time.Hour)
	if record.Scopes[0] != "a" {
		t.Fatalf("scopes were shared with the view")
	}
	if !record.ExpiresAt.Equal(expires) {
		t.Fatalf("expiry was shared with the view")
	}
}

func TestCredentialRecordIdentityLabel(t *testing.T) {
	cases := []struct {
		record    CredentialRecord
		wantField string
		wantValue string
	}{
		{CredentialRecord{Service: ServiceGitHub, Username: "octocat"}, "username", "octocat"},
		{CredentialRecord{Service: ServiceSlack, TeamName: "Acme"}, "teamName", "Acme"},
		{CredentialRecord{Service: ServiceGmail, Email: "a@b.com"}, "email", "a@b.com"},
		{CredentialRecord{Service: ServiceGoogleChat, Email: "a@b.com"}, "email", "a@b.com"},
		{CredentialRecord{Service: ServiceGoogleDrive, Email: "a@b.com"}, "email", "a@b.com"},
	}
	for _, tc := range cases {
		field, value := tc.record.IdentityLabel()
		if field != tc.wantField || value != tc.wantValue {
			t.Fatalf("%s: IdentityLabel() = (%q, %q), want (%q, %q)",
				tc.record.Service, field, value, tc.wantField, tc.wantValue)
		}
	}
}

func TestConnectionHubRefsMirrorConnectedServices(t *testing.T) {
	now := time.Now().UTC()
	hub := &ConnectionHub{ID: "hub-1", UserID: "user-1"}

	if err := hub.SetCredentialRef(ServiceSlack, "cred-1", now); err != nil {
		t.Fatalf("set slack ref: %v", err)
	}
	if err := hub.SetCredentialRef(ServiceGitHub, "cred-2", now); err != nil {
		t.Fatalf("set github ref: %v", err)
	}
	if err := hub.SetCredentialRef(ServiceSlack, "cred-3", now); err != nil {
		t.Fatalf("overwrite slack ref: %v", err)
	}

	if got := len(hub.ConnectedServices); got != 2 {
		t.Fatalf("expected 2 connected services, got %d: %v", got, hub.ConnectedServices)
	}
	if ref := hub.CredentialRef(ServiceSlack); ref == nil || *ref != "cred-3" {
		t.Fatalf("expected slack ref cred-3, got %v", ref)
	}

	if err := hub.ClearCredentialRef(ServiceSlack, now); err != nil {
		t.Fatalf("clear slack ref: %v", err)
	}
	if hub.CredentialRef(ServiceSlack) != nil {
		t.Fatalf("expected slack ref cleared")
	}
	if hub.IsConnected(ServiceSlack) {
		t.Fatalf("expected slack removed from connected services")
	}
	if !hub.IsConnected(ServiceGitHub) {
		t.Fatalf("expected github untouched")
	}
}

func TestConnectionHubSetRefRejectsEmptyID(t *testing.T) {
	hub := &ConnectionHub{ID: "hub-1"}
	if err := hub.SetCredentialRef(ServiceGmail, "  ", time.Now().UTC()); err == nil {
		t.Fatalf("expected empty credential id to fail")
	}
}

func TestCredentialRecordExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if (CredentialRecord{}).Expired(now) {
		t.Fatalf("no expiry should never be expired")
	}
	if !(CredentialRecord{ExpiresAt: &past}).Expired(now) {
		t.Fatalf("past expiry should report expired")
	}
	if (CredentialRecord{ExpiresAt: &future}).Expired(now) {
		t.Fatalf("future expiry should not report expired")
	}
}
