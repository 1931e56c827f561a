package gocommand

import (
	"context"
	"errors"
	"testing"

	authflowcommand "github.com/goliatone/go-authflow/command"
	"github.com/goliatone/go-authflow/core"
	"github.com/goliatone/go-command"
)

type okMessage struct{}

func (okMessage) Type() string { return "authflow.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "authflow.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "authflow.command.test" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	sub, err := RegisterAndSubscribe(adapter, cmd)
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

type stubFlowService struct {
	beginCalls    int
	completeCalls int
	releaseCalls  int
}

func (s *stubFlowService) Begin(_ context.Context, req core.BeginFlowRequest) (core.BeginFlowResponse, error) {
	s.beginCalls++
	return core.BeginFlowResponse{URL: "https://auth.example.com/authorize", State: req.State}, nil
}

func (s *stubFlowService) Complete(context.Context, core.CompleteFlowRequest) (core.CompleteFlowResponse, error) {
	s.completeCalls++
	return core.CompleteFlowResponse{}, nil
}

func (s *stubFlowService) Release(context.Context, string) error {
	s.releaseCalls++
	return nil
}

type stubPurger struct {
	purgeCalls int
}

func (s *stubPurger) PurgeExpired(context.Context) (int, error) {
	s.purgeCalls++
	return 0, nil
}

func TestRegisterFlowCommands(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	service := &stubFlowService{}
	purger := &stubPurger{}

	subs, err := RegisterFlowCommands(adapter, service, purger)
	if err != nil {
		t.Fatalf("register flow commands: %v", err)
	}
	if len(subs) != 4 {
		t.Fatalf("expected 4 subscriptions, got %d", len(subs))
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	ctx := context.Background()
	begin := authflowcommand.BeginFlowMessage{Request: core.BeginFlowRequest{
		RedirectURI: "https://app.example.com/callback",
		State:       "state-1",
	}}
	if err := Dispatch(ctx, begin); err != nil {
		t.Fatalf("dispatch begin: %v", err)
	}
	if service.beginCalls != 1 {
		t.Fatalf("expected begin to reach service, got %d calls", service.beginCalls)
	}

	if err := Dispatch(ctx, authflowcommand.ReleaseFlowMessage{State: "state-1"}); err != nil {
		t.Fatalf("dispatch release: %v", err)
	}
	if service.releaseCalls != 1 {
		t.Fatalf("expected release to reach service, got %d calls", service.releaseCalls)
	}

	if err := Dispatch(ctx, authflowcommand.PurgeFlowsMessage{}); err != nil {
		t.Fatalf("dispatch purge: %v", err)
	}
	if purger.purgeCalls != 1 {
		t.Fatalf("expected purge to reach store, got %d calls", purger.purgeCalls)
	}
}

func TestRegisterFlowCommandsRequiresRegistry(t *testing.T) {
	if _, err := RegisterFlowCommands(nil, &stubFlowService{}, &stubPurger{}); err == nil {
		t.Fatalf("expected nil adapter to be rejected")
	}
}
