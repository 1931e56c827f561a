package core

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const defaultTokenRequestTimeout = 30 * time.Second

// Phase tracks the one-shot call-order state machine of a Grant. Phases only
// advance forward; no operation may run twice or out of order.
type Phase string

const (
	PhaseInitial          Phase = "initial"
	PhaseAwaitingResponse Phase = "awaiting_response"
	PhaseFinished         Phase = "finished"
)

func validPhase(value string) bool {
	switch Phase(value) {
	case PhaseInitial, PhaseAwaitingResponse, PhaseFinished:
		return true
	default:
		return false
	}
}

// AuthorizeRequest carries the caller-supplied parameters for building the
// authorization redirect URL. State is the optional CSRF token remembered for
// callback validation; PKCE, when non-nil, attaches a code challenge.
type AuthorizeRequest struct {
	RedirectURI string
	Scopes      []string
	State       string
	PKCE        *PKCEParams
}

// Grant represents one in-progress or completed authorization-code exchange
// attempt. A Grant is single-threaded: concurrent calls on the same instance
// are not synchronized and must be prevented by the caller.
type Grant struct {
	cfg         Config
	httpClient  HTTPDoer
	tokenParser TokenParser
	logger      Logger
	now         func() time.Time

	phase        Phase
	redirectURI  string
	scopes       []string
	state        string
	hasState     bool
	pkceVerifier string
	released     bool
}

type GrantOption func(*Grant)

func WithGrantHTTPClient(client HTTPDoer) GrantOption {
	return func(g *Grant) {
		g.httpClient = client
	}
}

func WithGrantTokenParser(parser TokenParser) GrantOption {
	return func(g *Grant) {
		g.tokenParser = parser
	}
}

func WithGrantLogger(logger Logger) GrantOption {
	return func(g *Grant) {
		g.logger = logger
	}
}

func WithGrantClock(now func() time.Time) GrantOption {
	return func(g *Grant) {
		g.now = now
	}
}

func NewGrant(cfg Config, opts ...GrantOption) (*Grant, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.AuthorizationURL = strings.TrimSpace(cfg.AuthorizationURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	if err := cfg.Validate(); err != nil {
		return nil, badInputError(err.Error())
	}

	grant := &Grant{
		cfg:   cfg,
		phase: PhaseInitial,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(grant)
	}

	if grant.httpClient == nil {
		grant.httpClient = &http.Client{Timeout: defaultTokenRequestTimeout}
	}
	if grant.tokenParser == nil {
		grant.tokenParser = WireTokenParser{}
	}
	grant.logger = glog.Ensure(grant.logger)
	if grant.now == nil {
		grant.now = func() time.Time {
			return time.Now().UTC()
		}
	}

	return grant, nil
}

// ResumeGrant reconstructs a Grant from a flow-state snapshot. The client
// configuration is not embedded in the snapshot and must be supplied again.
func ResumeGrant(cfg Config, state FlowState, opts ...GrantOption) (*Grant, error) {
	grant, err := NewGrant(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if !validPhase(state.Phase) {
		return nil, flowStateError("phase", nil, fmt.Sprintf("unknown phase %q", state.Phase))
	}

	grant.phase = Phase(state.Phase)
	grant.pkceVerifier = state.PKCEVerifier
	if state.RedirectURI != nil {
		grant.redirectURI = *state.RedirectURI
	}
	if state.State != nil {
		grant.state = *state.State
		grant.hasState = true
	}
	if state.Scopes != nil {
		grant.scopes = append([]string(nil), state.Scopes...)
	}
	return grant, nil
}

func (g *Grant) Phase() Phase {
	if g == nil {
		return PhaseInitial
	}
	return g.phase
}

// AuthorizationURL builds the URL to send the resource owner to. It may run
// exactly once per Grant and advances the state machine.
func (g *Grant) AuthorizationURL(req AuthorizeRequest) (string, error) {
	if g == nil {
		return "", internalError(nil, "core: grant is nil")
	}
	if err := g.expectPhase("authorization url", PhaseInitial); err != nil {
		return "", err
	}

	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		return "", validationError("redirect_uri", "redirect uri is required")
	}
	if _, err := url.Parse(redirectURI); err != nil {
		return "", validationError("redirect_uri", fmt.Sprintf("invalid redirect uri: %v", err))
	}

	scopes := normalizeScopes(req.Scopes)

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", g.cfg.ClientID)
	values.Set("redirect_uri", redirectURI)
	if req.State != "" {
		values.Set("state", req.State)
	}
	if len(scopes) > 0 {
		values.Set("scope", strings.Join(scopes, " "))
	}
	if req.PKCE != nil {
		method := strings.TrimSpace(req.PKCE.Method)
		if method == "" {
			method = PKCEMethodS256
		}
		values.Set("code_challenge", req.PKCE.Challenge)
		values.Set("code_challenge_method", method)
	}

	// The authorization endpoint may already carry query parameters; never
	// clobber them.
	authURL := g.cfg.AuthorizationURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}

	g.redirectURI = redirectURI
	g.scopes = scopes
	g.state = req.State
	g.hasState = req.State != ""
	if req.PKCE != nil {
		g.pkceVerifier = req.PKCE.Verifier
	}
	g.phase = PhaseAwaitingResponse

	g.logger.Debug("authorization url built",
		"client_id", g.cfg.ClientID,
		"redirect_uri", redirectURI,
		"scope_count", len(scopes),
		"pkce", req.PKCE != nil,
	)

	return authURL, nil
}

// HandleCallback validates the authorization server's redirect parameters and,
// on success, exchanges the authorization code for credentials. Entry consumes
// the grant's one-shot nature regardless of outcome: a failed validation still
// finishes the flow.
func (g *Grant) HandleCallback(ctx context.Context, params map[string]string) (*Session, error) {
	if g == nil {
		return nil, internalError(nil, "core: grant is nil")
	}
	if err := g.expectPhase("callback", PhaseAwaitingResponse); err != nil {
		return nil, err
	}
	g.phase = PhaseFinished

	code, err := g.validateAuthorizationResponse(params)
	if err != nil {
		return nil, err
	}
	return g.exchange(ctx, code)
}

// HandleCallbackCode exchanges an authorization code obtained out of band,
// skipping redirect-parameter validation. It shares HandleCallback's one-shot
// semantics.
func (g *Grant) HandleCallbackCode(ctx context.Context, code string) (*Session, error) {
	if g == nil {
		return nil, internalError(nil, "core: grant is nil")
	}
	if err := g.expectPhase("callback", PhaseAwaitingResponse); err != nil {
		return nil, err
	}
	g.phase = PhaseFinished

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, validationError("code", "authorization code is required")
	}
	return g.exchange(ctx, code)
}

// validateAuthorizationResponse checks the CSRF state before inspecting
// error/code: a tampered redirect could forge either.
func (g *Grant) validateAuthorizationResponse(params map[string]string) (string, error) {
	if g.hasState {
		got, present := params["state"]
		if !present {
			return "", stateMismatchError("core: callback is missing the state parameter")
		}
		if got != g.state {
			return "", stateMismatchError("core: callback state parameter mismatch")
		}
	}

	if errorCode, present := params["error"]; present {
		serverErr := &ServerError{
			Code:        errorCode,
			Description: params["error_description"],
		}
		if rawURI, hasURI := params["error_uri"]; hasURI {
			parsed, parseErr := url.Parse(rawURI)
			if parseErr != nil {
				return "", callbackErrorf("core: callback error_uri is not a valid url: %v", parseErr)
			}
			serverErr.URI = parsed
		}
		return "", protocolError(serverErr)
	}

	code, present := params["code"]
	if !present {
		return "", callbackError("core: callback contains neither code nor error")
	}
	return code, nil
}

func (g *Grant) exchange(ctx context.Context, code string) (*Session, error) {
	if g.httpClient == nil {
		return nil, internalError(nil, "core: grant transport has been released")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", g.redirectURI)
	if g.pkceVerifier != "" {
		form.Set("code_verifier", g.pkceVerifier)
	}

	useBasicAuth := !g.cfg.ClientSecretInBody && g.cfg.ClientSecret != ""
	if !useBasicAuth {
		// Without basic auth the client id always travels in the body, secret
		// or not; servers vary in strictness here.
		form.Set("client_id", g.cfg.ClientID)
		if g.cfg.ClientSecret != "" {
			form.Set("client_secret", g.cfg.ClientSecret)
		}
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		g.cfg.TokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, internalError(err, "core: build token request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if useBasicAuth {
		httpReq.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)
	}

	startedAt := g.now()
	res, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, internalError(err, "core: token request failed")
	}
	defer res.Body.Close()

	credential, err := g.tokenParser.ParseToken(g.cfg.TokenURL, startedAt, g.scopes, res)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("token exchange completed",
		"client_id", g.cfg.ClientID,
		"token_type", credential.TokenType,
		"granted_scope_count", len(credential.GrantedScopes),
	)

	return newSession(g.cfg, credential, g.httpClient), nil
}

// FlowState exports a snapshot sufficient to resume the grant in another
// process. Optional fields are nil when the flow never recorded them.
func (g *Grant) FlowState() FlowState {
	if g == nil {
		return FlowState{Phase: string(PhaseInitial)}
	}
	snapshot := FlowState{
		Phase:        string(g.phase),
		PKCEVerifier: g.pkceVerifier,
	}
	if g.redirectURI != "" {
		redirectURI := g.redirectURI
		snapshot.RedirectURI = &redirectURI
	}
	if g.hasState {
		state := g.state
		snapshot.State = &state
	}
	if g.scopes != nil {
		snapshot.Scopes = append([]string(nil), g.scopes...)
	}
	return snapshot
}

// Close releases the transport handle and clears the grant's reference. It is
// a no-op when called twice. Callers must not keep using the grant or any
// session derived from it afterwards.
func (g *Grant) Close() error {
	if g == nil || g.released {
		return nil
	}
	g.released = true
	err := closeTransport(g.httpClient)
	g.httpClient = nil
	return err
}

func (g *Grant) expectPhase(operation string, want Phase) error {
	if g.phase != want {
		return misuseError(fmt.Sprintf(
			"core: %s called in phase %q, requires %q", operation, g.phase, want,
		))
	}
	return nil
}

func closeTransport(transport HTTPDoer) error {
	switch typed := transport.(type) {
	case nil:
		return nil
	case interface{ Close() error }:
		return typed.Close()
	case *http.Client:
		typed.CloseIdleConnections()
		return nil
	default:
		return nil
	}
}

// normalizeScopes trims and dedupes while preserving the caller-supplied
// order; scope strings are case-sensitive per RFC 6749 and are not rewritten.
func normalizeScopes(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		values = append(values, trimmed)
	}
	return values
}
