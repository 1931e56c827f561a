package command

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-authflow/core"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

type stubFlowService struct {
	beginFn    func(ctx context.Context, req core.BeginFlowRequest) (core.BeginFlowResponse, error)
	completeFn func(ctx context.Context, req core.CompleteFlowRequest) (core.CompleteFlowResponse, error)
	releaseFn  func(ctx context.Context, state string) error
}

func (s stubFlowService) Begin(ctx context.Context, req core.BeginFlowRequest) (core.BeginFlowResponse, error) {
	if s.beginFn == nil {
		return core.BeginFlowResponse{}, fmt.Errorf("unexpected begin call")
	}
	return s.beginFn(ctx, req)
}

func (s stubFlowService) Complete(ctx context.Context, req core.CompleteFlowRequest) (core.CompleteFlowResponse, error) {
	if s.completeFn == nil {
		return core.CompleteFlowResponse{}, fmt.Errorf("unexpected complete call")
	}
	return s.completeFn(ctx, req)
}

func (s stubFlowService) Release(ctx context.Context, state string) error {
	if s.releaseFn == nil {
		return fmt.Errorf("unexpected release call")
	}
	return s.releaseFn(ctx, state)
}

type stubPurger struct {
	purged int
	err    error
}

func (s stubPurger) PurgeExpired(context.Context) (int, error) {
	return s.purged, s.err
}

func TestBeginFlowCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.BeginFlowResponse{URL: "https://auth.example.com/authorize?state=st", State: "st"}
	called := false

	svc := stubFlowService{
		beginFn: func(_ context.Context, req core.BeginFlowRequest) (core.BeginFlowResponse, error) {
			called = true
			if req.RedirectURI != "https://app.example.com/callback" {
				t.Fatalf("unexpected redirect uri %q", req.RedirectURI)
			}
			return expected, nil
		},
	}

	cmd := NewBeginFlowCommand(svc)
	collector := gocmd.NewResult[core.BeginFlowResponse]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, BeginFlowMessage{Request: core.BeginFlowRequest{
		RedirectURI: "https://app.example.com/callback",
	}})
	if err != nil {
		t.Fatalf("execute begin flow: %v", err)
	}
	if !called {
		t.Fatalf("expected begin invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.URL != expected.URL || result.State != expected.State {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCompleteFlowCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.CompleteFlowResponse{Credential: core.Credential{AccessToken: "token_abc"}}

	svc := stubFlowService{
		completeFn: func(_ context.Context, req core.CompleteFlowRequest) (core.CompleteFlowResponse, error) {
			if req.Params["state"] != "st" {
				t.Fatalf("unexpected params %v", req.Params)
			}
			return expected, nil
		},
	}

	cmd := NewCompleteFlowCommand(svc)
	collector := gocmd.NewResult[core.CompleteFlowResponse]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, CompleteFlowMessage{Request: core.CompleteFlowRequest{
		Params: map[string]string{"state": "st", "code": "code_123"},
	}})
	if err != nil {
		t.Fatalf("execute complete flow: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.Credential.AccessToken != "token_abc" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestReleaseFlowCommand_Execute(t *testing.T) {
	called := false
	svc := stubFlowService{
		releaseFn: func(_ context.Context, state string) error {
			called = true
			if state != "st" {
				t.Fatalf("unexpected state %q", state)
			}
			return nil
		},
	}

	cmd := NewReleaseFlowCommand(svc)
	if err := cmd.Execute(context.Background(), ReleaseFlowMessage{State: "st"}); err != nil {
		t.Fatalf("execute release flow: %v", err)
	}
	if !called {
		t.Fatalf("expected release invocation")
	}
}

func TestPurgeFlowsCommand_ExecuteStoresCount(t *testing.T) {
	cmd := NewPurgeFlowsCommand(stubPurger{purged: 3})
	collector := gocmd.NewResult[int]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, PurgeFlowsMessage{}); err != nil {
		t.Fatalf("execute purge: %v", err)
	}
	count, ok := collector.Load()
	if !ok || count != 3 {
		t.Fatalf("expected purged count 3, got %d (%v)", count, ok)
	}
}

func TestCommands_PropagateServiceErrors(t *testing.T) {
	want := fmt.Errorf("downstream failure")
	svc := stubFlowService{
		beginFn: func(context.Context, core.BeginFlowRequest) (core.BeginFlowResponse, error) {
			return core.BeginFlowResponse{}, want
		},
	}

	cmd := NewBeginFlowCommand(svc)
	err := cmd.Execute(context.Background(), BeginFlowMessage{Request: core.BeginFlowRequest{
		RedirectURI: "https://app.example.com/callback",
	}})
	if err == nil || err.Error() != want.Error() {
		t.Fatalf("expected service error passthrough, got %v", err)
	}
}

func TestMessages_Validate(t *testing.T) {
	if err := (BeginFlowMessage{}).Validate(); err == nil {
		t.Fatalf("expected missing redirect uri error")
	}
	if err := (BeginFlowMessage{Request: core.BeginFlowRequest{RedirectURI: "https://app.example.com/cb"}}).Validate(); err != nil {
		t.Fatalf("expected valid begin message, got %v", err)
	}

	if err := (CompleteFlowMessage{}).Validate(); err == nil {
		t.Fatalf("expected missing params error")
	}
	if err := (CompleteFlowMessage{Request: core.CompleteFlowRequest{
		Params: map[string]string{"code": "abc"},
	}}).Validate(); err == nil {
		t.Fatalf("expected missing state error")
	}

	if err := (ReleaseFlowMessage{}).Validate(); err == nil {
		t.Fatalf("expected missing state error")
	}
	if err := (PurgeFlowsMessage{}).Validate(); err != nil {
		t.Fatalf("expected purge message to validate, got %v", err)
	}
}

func TestMessageValidation_ReturnsRichError(t *testing.T) {
	err := (BeginFlowMessage{}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.FlowErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.FlowErrorBadInput, rich.TextCode)
	}
}

func TestCommands_NilServiceReturnsRichError(t *testing.T) {
	var cmd *BeginFlowCommand
	err := cmd.Execute(context.Background(), BeginFlowMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
