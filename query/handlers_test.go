package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-connections/core"
)

type stubConnectionsReader struct {
	listFn func(ctx context.Context, subject string) (core.ConnectionsSummary, error)
}

func (s stubConnectionsReader) ListConnections(ctx context.Context, subject string) (core.ConnectionsSummary, error) {
	return s.listFn(ctx, subject)
}

type stubTokensReader struct {
	tokensFn func(ctx context.Context, subject string) (core.UserTokens, error)
}

func (s stubTokensReader) UserTokens(ctx context.Context, subject string) (core.UserTokens, error) {
	return s.tokensFn(ctx, subject)
}

func TestListConnectionsQuery_Delegates(t *testing.T) {
	reader := stubConnectionsReader{
		listFn: func(_ context.Context, subject string) (core.ConnectionsSummary, error) {
			if subject != "auth0|u1" {
				t.Fatalf("unexpected subject: %q", subject)
			}
			return core.ConnectionsSummary{Services: map[core.ServiceKey]core.ServiceStatus{
				core.ServiceGitHub: {Service: core.ServiceGitHub, Connected: true, Username: "octocat"},
			}}, nil
		},
	}

	q := NewListConnectionsQuery(reader)
	summary, err := q.Query(context.Background(), ListConnectionsMessage{Subject: "auth0|u1"})
	if err != nil {
		t.Fatalf("query connections: %v", err)
	}
	if !summary.Status(core.ServiceGitHub).Connected {
		t.Fatalf("expected github to be connected")
	}
}

func TestUserTokensQuery_NarrowsByService(t *testing.T) {
	reader := stubTokensReader{
		tokensFn: func(_ context.Context, subject string) (core.UserTokens, error) {
			return core.UserTokens{
				UserID: "user-1",
				Services: map[core.ServiceKey]core.ServiceTokens{
					core.ServiceGitHub: {AccessToken: "gho_token"},
					core.ServiceSlack:  {AccessToken: "xoxb_token"},
				},
			}, nil
		},
	}

	q := NewUserTokensQuery(reader)

	all, err := q.Query(context.Background(), UserTokensMessage{Subject: "auth0|u1"})
	if err != nil {
		t.Fatalf("query all tokens: %v", err)
	}
	if len(all.Services) != 2 {
		t.Fatalf("expected 2 token entries, got %d", len(all.Services))
	}

	narrowed, err := q.Query(context.Background(), UserTokensMessage{Subject: "auth0|u1", Service: core.ServiceSlack})
	if err != nil {
		t.Fatalf("query narrowed tokens: %v", err)
	}
	if len(narrowed.Services) != 1 {
		t.Fatalf("expected 1 token entry, got %d", len(narrowed.Services))
	}
	if narrowed.Services[core.ServiceSlack].AccessToken != "xoxb_token" {
		t.Fatalf("unexpected narrowed tokens: %#v", narrowed.Services)
	}
}

func TestUserTokensQuery_PropagatesReaderError(t *testing.T) {
	reader := stubTokensReader{
		tokensFn: func(_ context.Context, _ string) (core.UserTokens, error) {
			return core.UserTokens{}, fmt.Errorf("core: user not found")
		},
	}

	q := NewUserTokensQuery(reader)
	if _, err := q.Query(context.Background(), UserTokensMessage{Subject: "auth0|missing"}); err == nil {
		t.Fatalf("expected reader error to propagate")
	}
}

func TestQueryMessageValidation(t *testing.T) {
	if err := (ListConnectionsMessage{}).Validate(); err == nil {
		t.Fatalf("expected empty subject to fail validation")
	}
	if err := (UserTokensMessage{Subject: "auth0|u1", Service: "dropbox"}).Validate(); err == nil {
		t.Fatalf("expected unknown service to fail validation")
	}
	if err := (UserTokensMessage{Subject: "auth0|u1"}).Validate(); err != nil {
		t.Fatalf("expected service to be optional, got %v", err)
	}
}
