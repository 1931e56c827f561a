package authflow

import (
	"fmt"

	authflowcommand "github.com/goliatone/go-authflow/command"
)

// CommandService is the slice of the flow service the facade drives.
// *core.FlowService satisfies it.
type CommandService interface {
	authflowcommand.FlowMutatingService
	authflowcommand.FlowTicketPurger
}

type Commands struct {
	Begin    *authflowcommand.BeginFlowCommand
	Complete *authflowcommand.CompleteFlowCommand
	Release  *authflowcommand.ReleaseFlowCommand
	Purge    *authflowcommand.PurgeFlowsCommand
}

// Facade bundles the flow command handlers behind a single constructor so
// hosts can wire them without touching the command package directly.
type Facade struct {
	service  CommandService
	commands Commands
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	purger authflowcommand.FlowTicketPurger
}

// WithTicketPurger points the purge command at a different sweep target,
// typically a store shared by several services.
func WithTicketPurger(purger authflowcommand.FlowTicketPurger) FacadeOption {
	return func(options *facadeOptions) {
		options.purger = purger
	}
}

func NewFacade(service CommandService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("authflow: command service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	purger := cfg.purger
	if purger == nil {
		purger = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Begin:    authflowcommand.NewBeginFlowCommand(service),
		Complete: authflowcommand.NewCompleteFlowCommand(service),
		Release:  authflowcommand.NewReleaseFlowCommand(service),
		Purge:    authflowcommand.NewPurgeFlowsCommand(purger),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Service() CommandService {
	if f == nil {
		return nil
	}
	return f.service
}
