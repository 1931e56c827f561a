package authflow

import "github.com/goliatone/go-authflow/core"

type Config = core.Config

type Option = core.Option

type FlowService = core.FlowService

type Grant = core.Grant
type GrantOption = core.GrantOption
type AuthorizeRequest = core.AuthorizeRequest
type Phase = core.Phase
type Session = core.Session
type Credential = core.Credential
type ServerError = core.ServerError

type FlowState = core.FlowState
type FlowStateCodec = core.FlowStateCodec
type FlowStore = core.FlowStore
type FlowTicket = core.FlowTicket
type PKCEParams = core.PKCEParams

type BeginFlowRequest = core.BeginFlowRequest
type BeginFlowResponse = core.BeginFlowResponse
type CompleteFlowRequest = core.CompleteFlowRequest
type CompleteFlowResponse = core.CompleteFlowResponse

type HTTPDoer = core.HTTPDoer
type TokenParser = core.TokenParser
type MetricsRecorder = core.MetricsRecorder

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithHTTPClient      = core.WithHTTPClient
	WithTokenParser     = core.WithTokenParser
	WithFlowStore       = core.WithFlowStore
	WithFlowStateCodec  = core.WithFlowStateCodec
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithErrorMapper     = core.WithErrorMapper
	WithStateGenerator  = core.WithStateGenerator
	WithClock           = core.WithClock
	WithFlowTTL         = core.WithFlowTTL
	WithPKCE            = core.WithPKCE

	WithGrantHTTPClient  = core.WithGrantHTTPClient
	WithGrantTokenParser = core.WithGrantTokenParser
	WithGrantLogger      = core.WithGrantLogger
	WithGrantClock       = core.WithGrantClock

	GeneratePKCE     = core.GeneratePKCE
	PKCEFromVerifier = core.PKCEFromVerifier

	IsMisuse         = core.IsMisuse
	IsStateMismatch  = core.IsStateMismatch
	IsProviderDenied = core.IsProviderDenied
	AsServerError    = core.AsServerError
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewGrant(cfg Config, opts ...GrantOption) (*Grant, error) {
	return core.NewGrant(cfg, opts...)
}

func ResumeGrant(cfg Config, state FlowState, opts ...GrantOption) (*Grant, error) {
	return core.ResumeGrant(cfg, state, opts...)
}

func NewService(cfg Config, opts ...Option) (*FlowService, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*FlowService, error) {
	return core.Setup(cfg, opts...)
}
