package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-connections/core"
)

const (
	TypeInitiate         = "connections.command.initiate"
	TypeCompleteCallback = "connections.command.callback.complete"
	TypeDisconnect       = "connections.command.disconnect"
	TypeRefresh          = "connections.command.refresh"
	TypeSyncUserProfile  = "connections.command.user.sync"
	TypeRemoveUser       = "connections.command.user.remove"
)

type InitiateMessage struct {
	Request core.InitiateRequest
}

func (InitiateMessage) Type() string { return TypeInitiate }

func (m InitiateMessage) Validate() error {
	if strings.TrimSpace(m.Request.Subject) == "" {
		return fmt.Errorf("command: subject is required")
	}
	return validateService(m.Request.Service)
}

type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (m CompleteCallbackMessage) Validate() error {
	return validateService(m.Request.Service)
}

type DisconnectMessage struct {
	Request core.DisconnectRequest
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	if strings.TrimSpace(m.Request.Subject) == "" {
		return fmt.Errorf("command: subject is required")
	}
	return validateService(m.Request.Service)
}

type RefreshMessage struct {
	Subject string
	Service core.ServiceKey
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("command: subject is required")
	}
	return validateService(m.Service)
}

type SyncUserProfileMessage struct {
	Input core.UserProfileInput
}

func (SyncUserProfileMessage) Type() string { return TypeSyncUserProfile }

func (m SyncUserProfileMessage) Validate() error {
	if strings.TrimSpace(m.Input.Subject) == "" {
		return fmt.Errorf("command: subject is required")
	}
	return nil
}

type RemoveUserMessage struct {
	Subject string
}

func (RemoveUserMessage) Type() string { return TypeRemoveUser }

func (m RemoveUserMessage) Validate() error {
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("command: subject is required")
	}
	return nil
}

func validateService(service core.ServiceKey) error {
	if _, err := core.ParseServiceKey(string(service)); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}
