package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-connections/core"
)

const (
	TypeListConnections = "connections.query.connections.list"
	TypeUserTokens      = "connections.query.tokens.load"
)

type ListConnectionsMessage struct {
	Subject string
}

func (ListConnectionsMessage) Type() string { return TypeListConnections }

func (m ListConnectionsMessage) Validate() error {
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("query: subject is required")
	}
	return nil
}

type UserTokensMessage struct {
	Subject string
	Service core.ServiceKey
}

func (UserTokensMessage) Type() string { return TypeUserTokens }

func (m UserTokensMessage) Validate() error {
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("query: subject is required")
	}
	if strings.TrimSpace(string(m.Service)) != "" {
		if _, err := core.ParseServiceKey(string(m.Service)); err != nil {
			return fmt.Errorf("query: %w", err)
		}
	}
	return nil
}
