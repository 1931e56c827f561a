package command

import (
	"context"

	"github.com/goliatone/go-authflow/core"
	gocmd "github.com/goliatone/go-command"
)

// FlowMutatingService is the slice of the flow service the commands mutate
// through.
type FlowMutatingService interface {
	Begin(ctx context.Context, req core.BeginFlowRequest) (core.BeginFlowResponse, error)
	Complete(ctx context.Context, req core.CompleteFlowRequest) (core.CompleteFlowResponse, error)
	Release(ctx context.Context, state string) error
}

// FlowTicketPurger sweeps expired tickets; every core.FlowStore satisfies it.
type FlowTicketPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type BeginFlowCommand struct {
	service FlowMutatingService
}

func NewBeginFlowCommand(service FlowMutatingService) *BeginFlowCommand {
	return &BeginFlowCommand{service: service}
}

func (c *BeginFlowCommand) Execute(ctx context.Context, msg BeginFlowMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: begin flow service is required")
	}
	out, err := c.service.Begin(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteFlowCommand struct {
	service FlowMutatingService
}

func NewCompleteFlowCommand(service FlowMutatingService) *CompleteFlowCommand {
	return &CompleteFlowCommand{service: service}
}

func (c *CompleteFlowCommand) Execute(ctx context.Context, msg CompleteFlowMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: complete flow service is required")
	}
	out, err := c.service.Complete(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReleaseFlowCommand struct {
	service FlowMutatingService
}

func NewReleaseFlowCommand(service FlowMutatingService) *ReleaseFlowCommand {
	return &ReleaseFlowCommand{service: service}
}

func (c *ReleaseFlowCommand) Execute(ctx context.Context, msg ReleaseFlowMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: release flow service is required")
	}
	return c.service.Release(ctx, msg.State)
}

type PurgeFlowsCommand struct {
	store FlowTicketPurger
}

func NewPurgeFlowsCommand(store FlowTicketPurger) *PurgeFlowsCommand {
	return &PurgeFlowsCommand{store: store}
}

func (c *PurgeFlowsCommand) Execute(ctx context.Context, _ PurgeFlowsMessage) error {
	if c == nil || c.store == nil {
		return commandDependencyError("command: flow store is required")
	}
	purged, err := c.store.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, purged)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
