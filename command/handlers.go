package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connections/core"
)

// MutatingBroker is the slice of the broker the command handlers use.
type MutatingBroker interface {
	Initiate(ctx context.Context, req core.InitiateRequest) (core.InitiateResponse, error)
	HandleCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackResult, error)
	Disconnect(ctx context.Context, req core.DisconnectRequest) (core.DisconnectResult, error)
	RefreshCredential(ctx context.Context, subject string, service core.ServiceKey) (core.CredentialRecord, error)
	SyncUserProfile(ctx context.Context, in core.UserProfileInput) (core.User, error)
	RemoveUser(ctx context.Context, subject string) error
}

type InitiateCommand struct {
	broker MutatingBroker
}

func NewInitiateCommand(broker MutatingBroker) *InitiateCommand {
	return &InitiateCommand{broker: broker}
}

func (c *InitiateCommand) Execute(ctx context.Context, msg InitiateMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: initiate broker is required")
	}
	out, err := c.broker.Initiate(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	broker MutatingBroker
}

func NewCompleteCallbackCommand(broker MutatingBroker) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{broker: broker}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: callback broker is required")
	}
	out, err := c.broker.HandleCallback(ctx, msg.Request)
	if err != nil {
		// The callback result still carries the UI redirect when the
		// flow fails; surface it alongside the error.
		storeResult(ctx, out)
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	broker MutatingBroker
}

func NewDisconnectCommand(broker MutatingBroker) *DisconnectCommand {
	return &DisconnectCommand{broker: broker}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: disconnect broker is required")
	}
	out, err := c.broker.Disconnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCommand struct {
	broker MutatingBroker
}

func NewRefreshCommand(broker MutatingBroker) *RefreshCommand {
	return &RefreshCommand{broker: broker}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: refresh broker is required")
	}
	out, err := c.broker.RefreshCredential(ctx, msg.Subject, msg.Service)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SyncUserProfileCommand struct {
	broker MutatingBroker
}

func NewSyncUserProfileCommand(broker MutatingBroker) *SyncUserProfileCommand {
	return &SyncUserProfileCommand{broker: broker}
}

func (c *SyncUserProfileCommand) Execute(ctx context.Context, msg SyncUserProfileMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: user profile broker is required")
	}
	out, err := c.broker.SyncUserProfile(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveUserCommand struct {
	broker MutatingBroker
}

func NewRemoveUserCommand(broker MutatingBroker) *RemoveUserCommand {
	return &RemoveUserCommand{broker: broker}
}

func (c *RemoveUserCommand) Execute(ctx context.Context, msg RemoveUserMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: remove user broker is required")
	}
	return c.broker.RemoveUser(ctx, msg.Subject)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
