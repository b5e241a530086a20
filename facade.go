package connections

import (
	"fmt"

	connectionscommand "github.com/goliatone/go-connections/command"
	"github.com/goliatone/go-connections/core"
	connectionsquery "github.com/goliatone/go-connections/query"
)

var _ CommandQueryBroker = (*core.Broker)(nil)

// CommandQueryBroker is the full surface the facade dispatches against.
// *core.Broker satisfies it.
type CommandQueryBroker interface {
	connectionscommand.MutatingBroker
	connectionsquery.ConnectionsReader
	connectionsquery.TokensReader
}

type Commands struct {
	Initiate         *connectionscommand.InitiateCommand
	CompleteCallback *connectionscommand.CompleteCallbackCommand
	Disconnect       *connectionscommand.DisconnectCommand
	Refresh          *connectionscommand.RefreshCommand
	SyncUserProfile  *connectionscommand.SyncUserProfileCommand
	RemoveUser       *connectionscommand.RemoveUserCommand
}

type Queries struct {
	ListConnections *connectionsquery.ListConnectionsQuery
	UserTokens      *connectionsquery.UserTokensQuery
}

type Facade struct {
	broker   CommandQueryBroker
	commands Commands
	queries  Queries
}

func NewFacade(broker CommandQueryBroker) (*Facade, error) {
	if broker == nil {
		return nil, fmt.Errorf("connections: command/query broker is required")
	}

	facade := &Facade{broker: broker}
	facade.commands = Commands{
		Initiate:         connectionscommand.NewInitiateCommand(broker),
		CompleteCallback: connectionscommand.NewCompleteCallbackCommand(broker),
		Disconnect:       connectionscommand.NewDisconnectCommand(broker),
		Refresh:          connectionscommand.NewRefreshCommand(broker),
		SyncUserProfile:  connectionscommand.NewSyncUserProfileCommand(broker),
		RemoveUser:       connectionscommand.NewRemoveUserCommand(broker),
	}
	facade.queries = Queries{
		ListConnections: connectionsquery.NewListConnectionsQuery(broker),
		UserTokens:      connectionsquery.NewUserTokensQuery(broker),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Broker() CommandQueryBroker {
	if f == nil {
		return nil
	}
	return f.broker
}
