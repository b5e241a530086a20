package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-connections/core"
)

type ConnectionsReader interface {
	ListConnections(ctx context.Context, subject string) (core.ConnectionsSummary, error)
}

type TokensReader interface {
	UserTokens(ctx context.Context, subject string) (core.UserTokens, error)
}

type ListConnectionsQuery struct {
	reader ConnectionsReader
}

func NewListConnectionsQuery(reader ConnectionsReader) *ListConnectionsQuery {
	return &ListConnectionsQuery{reader: reader}
}

func (q *ListConnectionsQuery) Query(ctx context.Context, msg ListConnectionsMessage) (core.ConnectionsSummary, error) {
	if q == nil || q.reader == nil {
		return core.ConnectionsSummary{}, queryDependencyError("query: connections reader is required")
	}
	return q.reader.ListConnections(ctx, msg.Subject)
}

type UserTokensQuery struct {
	reader TokensReader
}

func NewUserTokensQuery(reader TokensReader) *UserTokensQuery {
	return &UserTokensQuery{reader: reader}
}

// Query loads the caller's tokens. When the message names a service the
// result is narrowed to that single entry.
func (q *UserTokensQuery) Query(ctx context.Context, msg UserTokensMessage) (core.UserTokens, error) {
	if q == nil || q.reader == nil {
		return core.UserTokens{}, queryDependencyError("query: tokens reader is required")
	}
	tokens, err := q.reader.UserTokens(ctx, msg.Subject)
	if err != nil {
		return core.UserTokens{}, err
	}
	if strings.TrimSpace(string(msg.Service)) == "" {
		return tokens, nil
	}
	narrowed := core.UserTokens{
		UserID:   tokens.UserID,
		Services: map[core.ServiceKey]core.ServiceTokens{},
	}
	if entry, ok := tokens.Services[msg.Service]; ok {
		narrowed.Services[msg.Service] = entry
	}
	return narrowed, nil
}
