package drive

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/goliatone/go-connections/core"
)

func TestNewAppliesDefaultScopes(t *testing.T) {
	adapter, err := New(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "https://broker.example.com/auth/googleDrive/callback",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if adapter.ID() != "googleDrive" {
		t.Fatalf("id = %q", adapter.ID())
	}

	raw, err := adapter.BuildAuthorizationURL(context.Background(), core.AuthorizationURLRequest{State: "auth0|u1"})
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	scopes := strings.Fields(parsed.Query().Get("scope"))
	if len(scopes) != 2 {
		t.Fatalf("scopes = %v", scopes)
	}
	if scopes[0] != "https://www.googleapis.com/auth/drive.readonly" {
		t.Fatalf("first scope = %q", scopes[0])
	}
	if scopes[1] != "https://www.googleapis.com/auth/userinfo.email" {
		t.Fatalf("email scope missing: %v", scopes)
	}
}
