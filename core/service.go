package core

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// FlowService coordinates authorization-code flows across process boundaries:
// Begin builds the redirect URL and parks the grant's flow state in the store;
// Complete consumes the parked state by callback state parameter, resumes the
// grant, and performs the code exchange. Each logical flow still gets its own
// Grant underneath, preserving the one-shot call-order guarantees.
type FlowService struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	httpClient      HTTPDoer
	tokenParser     TokenParser
	flowStore       FlowStore
	flowCodec       FlowStateCodec
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	errorMapper     ErrorMapper
	stateGenerator  func() (string, error)
	now             func() time.Time
	flowTTL         time.Duration
	usePKCE         bool
}

type BeginFlowRequest struct {
	RedirectURI string
	Scopes      []string
	State       string
	Metadata    map[string]any
}

type BeginFlowResponse struct {
	URL             string
	State           string
	RequestedScopes []string
	PKCE            *PKCEParams
}

type CompleteFlowRequest struct {
	// Params are the raw query parameters the authorization server sent to the
	// redirect endpoint.
	Params map[string]string
}

type CompleteFlowResponse struct {
	Session    *Session
	Credential Credential
	Metadata   map[string]any
}

func NewService(cfg Config, opts ...Option) (*FlowService, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("authflow", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("authflow"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = flowErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.flowStore == nil {
		builder.flowStore = NewMemoryFlowStore(builder.flowTTL)
	}
	if builder.flowCodec == nil {
		builder.flowCodec = JSONFlowStateCodec{}
	}
	if builder.stateGenerator == nil {
		builder.stateGenerator = generateFlowState
	}
	if builder.now == nil {
		builder.now = func() time.Time {
			return time.Now().UTC()
		}
	}
	if builder.flowTTL <= 0 {
		builder.flowTTL = defaultFlowTTL
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &FlowService{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		httpClient:      builder.httpClient,
		tokenParser:     builder.tokenParser,
		flowStore:       builder.flowStore,
		flowCodec:       builder.flowCodec,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		errorMapper:     builder.errorMapper,
		stateGenerator:  builder.stateGenerator,
		now:             builder.now,
		flowTTL:         builder.flowTTL,
		usePKCE:         builder.usePKCE,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*FlowService, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *FlowService) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *FlowService) Codec() FlowStateCodec {
	if s == nil || s.flowCodec == nil {
		return JSONFlowStateCodec{}
	}
	return s.flowCodec
}

// Begin starts a new flow: it generates a CSRF state when the caller supplied
// none, builds the authorization URL, and saves the grant's flow state keyed
// by that state so a different process can complete the callback.
func (s *FlowService) Begin(ctx context.Context, req BeginFlowRequest) (response BeginFlowResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"client_id":    s.config.ClientID,
		"redirect_uri": req.RedirectURI,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "begin", err, fields)
	}()

	state := strings.TrimSpace(req.State)
	if state == "" {
		generated, generateErr := s.stateGenerator()
		if generateErr != nil {
			err = s.mapError(generateErr)
			return BeginFlowResponse{}, err
		}
		state = generated
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = append([]string(nil), s.config.DefaultScopes...)
	}

	var pkce *PKCEParams
	if s.usePKCE {
		pkce, err = GeneratePKCE()
		if err != nil {
			err = s.mapError(err)
			return BeginFlowResponse{}, err
		}
	}

	grant, err := s.newGrant()
	if err != nil {
		err = s.mapError(err)
		return BeginFlowResponse{}, err
	}

	authURL, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: req.RedirectURI,
		Scopes:      scopes,
		State:       state,
		PKCE:        pkce,
	})
	if err != nil {
		err = s.mapError(err)
		return BeginFlowResponse{}, err
	}

	now := s.now()
	saveErr := s.flowStore.Save(ctx, FlowTicket{
		State:     state,
		FlowState: grant.FlowState(),
		Metadata:  copyAnyMap(req.Metadata),
		CreatedAt: now,
		ExpiresAt: now.Add(s.flowTTL),
	})
	if saveErr != nil {
		err = s.mapError(saveErr)
		return BeginFlowResponse{}, err
	}

	return BeginFlowResponse{
		URL:             authURL,
		State:           state,
		RequestedScopes: grant.FlowState().Scopes,
		PKCE:            pkce,
	}, nil
}

// Complete consumes the parked flow for the callback's state parameter,
// resumes the grant, validates the callback, and exchanges the code.
func (s *FlowService) Complete(ctx context.Context, req CompleteFlowRequest) (response CompleteFlowResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"client_id": s.config.ClientID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "complete", err, fields)
	}()

	state := strings.TrimSpace(req.Params["state"])
	if state == "" {
		err = s.mapError(badInputError("core: callback state parameter is required to locate the flow"))
		return CompleteFlowResponse{}, err
	}

	ticket, consumeErr := s.flowStore.Consume(ctx, state)
	if consumeErr != nil {
		err = s.mapError(consumeErr)
		return CompleteFlowResponse{}, err
	}

	grant, resumeErr := ResumeGrant(s.config, ticket.FlowState, s.grantOptions()...)
	if resumeErr != nil {
		err = s.mapError(resumeErr)
		return CompleteFlowResponse{}, err
	}

	session, exchangeErr := grant.HandleCallback(ctx, req.Params)
	if exchangeErr != nil {
		err = s.mapError(exchangeErr)
		return CompleteFlowResponse{}, err
	}

	return CompleteFlowResponse{
		Session:    session,
		Credential: session.Credential(),
		Metadata:   ticket.Metadata,
	}, nil
}

// Release abandons a pending flow, dropping the stored ticket. Missing tickets
// are not an error: releasing twice is a no-op.
func (s *FlowService) Release(ctx context.Context, state string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"client_id": s.config.ClientID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "release", err, fields)
	}()

	state = strings.TrimSpace(state)
	if state == "" {
		err = s.mapError(badInputError("core: flow state is required"))
		return err
	}
	if _, consumeErr := s.flowStore.Consume(ctx, state); consumeErr != nil {
		if hasTextCode(consumeErr, FlowErrorTicketNotFound) {
			return nil
		}
		err = s.mapError(consumeErr)
		return err
	}
	return nil
}

// PurgeExpired sweeps tickets whose deadline passed, returning the count
// removed.
func (s *FlowService) PurgeExpired(ctx context.Context) (purged int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"client_id": s.config.ClientID,
	}
	defer func() {
		fields["purged"] = purged
		s.observeOperation(ctx, startedAt, "purge_expired", err, fields)
	}()

	purged, err = s.flowStore.PurgeExpired(ctx)
	if err != nil {
		err = s.mapError(err)
		return 0, err
	}
	return purged, nil
}

func (s *FlowService) newGrant() (*Grant, error) {
	return NewGrant(s.config, s.grantOptions()...)
}

func (s *FlowService) grantOptions() []GrantOption {
	options := []GrantOption{
		WithGrantLogger(s.logger),
		WithGrantClock(s.now),
	}
	if s.httpClient != nil {
		options = append(options, WithGrantHTTPClient(s.httpClient))
	}
	if s.tokenParser != nil {
		options = append(options, WithGrantTokenParser(s.tokenParser))
	}
	return options
}

func (s *FlowService) mapError(err error) error {
	return mapBuildError(s.errorMapper, err)
}
