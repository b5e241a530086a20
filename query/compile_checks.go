package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connections/core"
)

var (
	_ gocmd.Querier[ListConnectionsMessage, core.ConnectionsSummary] = (*ListConnectionsQuery)(nil)
	_ gocmd.Querier[UserTokensMessage, core.UserTokens]              = (*UserTokensQuery)(nil)
)
