package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[InitiateMessage]         = (*InitiateCommand)(nil)
	_ gocmd.Commander[CompleteCallbackMessage] = (*CompleteCallbackCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]       = (*DisconnectCommand)(nil)
	_ gocmd.Commander[RefreshMessage]          = (*RefreshCommand)(nil)
	_ gocmd.Commander[SyncUserProfileMessage]  = (*SyncUserProfileCommand)(nil)
	_ gocmd.Commander[RemoveUserMessage]       = (*RemoveUserCommand)(nil)
)
