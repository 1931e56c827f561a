// Package command exposes the flow service's mutations as go-command
// messages so callers can dispatch them through a command bus.
package command

import (
	"net/url"
	"strings"

	"github.com/goliatone/go-authflow/core"
)

const (
	TypeBeginFlow    = "authflow.command.flow.begin"
	TypeCompleteFlow = "authflow.command.flow.complete"
	TypeReleaseFlow  = "authflow.command.flow.release"
	TypePurgeFlows   = "authflow.command.flow.purge"
)

type BeginFlowMessage struct {
	Request core.BeginFlowRequest
}

func (BeginFlowMessage) Type() string { return TypeBeginFlow }

func (m BeginFlowMessage) Validate() error {
	redirectURI := strings.TrimSpace(m.Request.RedirectURI)
	if redirectURI == "" {
		return commandValidationError("redirect_uri", "redirect uri is required")
	}
	if _, err := url.Parse(redirectURI); err != nil {
		return commandValidationError("redirect_uri", "redirect uri is not a valid url")
	}
	return nil
}

type CompleteFlowMessage struct {
	Request core.CompleteFlowRequest
}

func (CompleteFlowMessage) Type() string { return TypeCompleteFlow }

func (m CompleteFlowMessage) Validate() error {
	if len(m.Request.Params) == 0 {
		return commandValidationError("params", "callback parameters are required")
	}
	if strings.TrimSpace(m.Request.Params["state"]) == "" {
		return commandValidationError("state", "callback state parameter is required")
	}
	return nil
}

type ReleaseFlowMessage struct {
	State string
}

func (ReleaseFlowMessage) Type() string { return TypeReleaseFlow }

func (m ReleaseFlowMessage) Validate() error {
	if strings.TrimSpace(m.State) == "" {
		return commandValidationError("state", "flow state is required")
	}
	return nil
}

// PurgeFlowsMessage sweeps expired flow tickets out of the store.
type PurgeFlowsMessage struct{}

func (PurgeFlowsMessage) Type() string { return TypePurgeFlows }

func (PurgeFlowsMessage) Validate() error { return nil }
