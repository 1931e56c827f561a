package core

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

func testGrantConfig() Config {
	return Config{
		ClientID:         "client-123",
		ClientSecret:     "secret-456",
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         "https://auth.example.com/token",
	}
}

func TestNewGrant_RequiresClientIDAndEndpoints(t *testing.T) {
	_, err := NewGrant(Config{})
	if err == nil {
		t.Fatalf("expected validation error for empty config")
	}

	_, err = NewGrant(Config{ClientID: "client-123"})
	if err == nil {
		t.Fatalf("expected validation error for missing endpoints")
	}

	_, err = NewGrant(Config{
		ClientID:         "client-123",
		AuthorizationURL: "/authorize",
		TokenURL:         "https://auth.example.com/token",
	})
	if err == nil {
		t.Fatalf("expected validation error for relative authorization url")
	}
}

func TestGrant_AuthorizationURL(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}

	authURL, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
		Scopes:      []string{"read", "write"},
		State:       "state_1",
	})
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	query := parsed.Query()
	if query.Get("response_type") != "code" {
		t.Fatalf("expected response_type=code, got %q", query.Get("response_type"))
	}
	if query.Get("client_id") != "client-123" {
		t.Fatalf("expected client_id query value")
	}
	if query.Get("redirect_uri") != "https://app.example.com/callback" {
		t.Fatalf("expected redirect_uri query value")
	}
	if query.Get("state") != "state_1" {
		t.Fatalf("expected state query value")
	}
	if query.Get("scope") != "read write" {
		t.Fatalf("expected scope %q, got %q", "read write", query.Get("scope"))
	}
	if grant.Phase() != PhaseAwaitingResponse {
		t.Fatalf("expected awaiting_response phase, got %q", grant.Phase())
	}
}

func TestGrant_AuthorizationURLPreservesScopeOrder(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}

	authURL, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
		Scopes:      []string{"zebra", " alpha ", "zebra", "", "mid"},
	})
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	parsed, _ := url.Parse(authURL)
	if got := parsed.Query().Get("scope"); got != "zebra alpha mid" {
		t.Fatalf("expected caller scope order preserved, got %q", got)
	}
}

func TestGrant_AuthorizationURLKeepsExistingQuery(t *testing.T) {
	cfg := testGrantConfig()
	cfg.AuthorizationURL = "https://auth.example.com/authorize?audience=api"

	grant, err := NewGrant(cfg)
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}

	authURL, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	if strings.Count(authURL, "?") != 1 {
		t.Fatalf("expected a single query separator, got %q", authURL)
	}

	parsed, _ := url.Parse(authURL)
	query := parsed.Query()
	if query.Get("audience") != "api" {
		t.Fatalf("expected preexisting audience parameter to survive")
	}
	if query.Get("client_id") != "client-123" {
		t.Fatalf("expected client_id to be appended")
	}
}

func TestGrant_AuthorizationURLOmitsOptionalParams(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}

	authURL, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	parsed, _ := url.Parse(authURL)
	query := parsed.Query()
	if _, present := query["state"]; present {
		t.Fatalf("expected state to be omitted when not supplied")
	}
	if _, present := query["scope"]; present {
		t.Fatalf("expected scope to be omitted when not supplied")
	}
}

func TestGrant_AuthorizationURLWithPKCE(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("generate pkce: %v", err)
	}

	authURL, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
		PKCE:        pkce,
	})
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	parsed, _ := url.Parse(authURL)
	query := parsed.Query()
	if query.Get("code_challenge") != pkce.Challenge {
		t.Fatalf("expected code_challenge query value")
	}
	if query.Get("code_challenge_method") != PKCEMethodS256 {
		t.Fatalf("expected S256 challenge method, got %q", query.Get("code_challenge_method"))
	}
}

func TestGrant_AuthorizationURLRequiresRedirectURI(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}

	if _, err := grant.AuthorizationURL(AuthorizeRequest{}); err == nil {
		t.Fatalf("expected missing redirect uri error")
	}
	if grant.Phase() != PhaseInitial {
		t.Fatalf("expected failed validation to leave phase unchanged, got %q", grant.Phase())
	}
}

func TestGrant_OneShotCallOrder(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}

	_, err = grant.HandleCallback(context.Background(), map[string]string{"code": "abc"})
	if !IsMisuse(err) {
		t.Fatalf("expected misuse error before authorization url, got %v", err)
	}

	if _, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
		State:       "state_1",
	}); err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	_, err = grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
	})
	if !IsMisuse(err) {
		t.Fatalf("expected misuse error on second authorization url, got %v", err)
	}

	_, err = grant.HandleCallback(context.Background(), map[string]string{
		"state": "state_1",
		"error": "access_denied",
	})
	if !IsProviderDenied(err) {
		t.Fatalf("expected provider denied error, got %v", err)
	}
	if grant.Phase() != PhaseFinished {
		t.Fatalf("expected finished phase after callback, got %q", grant.Phase())
	}

	_, err = grant.HandleCallback(context.Background(), map[string]string{
		"state": "state_1",
		"code":  "abc",
	})
	if !IsMisuse(err) {
		t.Fatalf("expected misuse error on second callback, got %v", err)
	}
}

func TestGrant_CallbackStateCheckedBeforeError(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}
	if _, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
		State:       "state_1",
	}); err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	// A forged redirect can carry any error payload; the CSRF check wins.
	_, err = grant.HandleCallback(context.Background(), map[string]string{
		"state": "state_2",
		"error": "access_denied",
	})
	if !IsStateMismatch(err) {
		t.Fatalf("expected state mismatch error, got %v", err)
	}
}

func TestGrant_CallbackMissingState(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}
	if _, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
		State:       "state_1",
	}); err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	_, err = grant.HandleCallback(context.Background(), map[string]string{"code": "abc"})
	if !IsStateMismatch(err) {
		t.Fatalf("expected state mismatch for missing state, got %v", err)
	}
}

func TestGrant_CallbackStateNotRequiredWhenNoneSent(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}
	if _, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
	}); err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	_, err = grant.HandleCallback(context.Background(), map[string]string{
		"error":             "temporarily_unavailable",
		"error_description": "maintenance window",
		"error_uri":         "https://auth.example.com/errors/503",
	})
	if !IsProviderDenied(err) {
		t.Fatalf("expected provider denied error, got %v", err)
	}

	serverErr, ok := AsServerError(err)
	if !ok {
		t.Fatalf("expected wrapped server error, got %v", err)
	}
	if serverErr.Code != "temporarily_unavailable" {
		t.Fatalf("expected error code passthrough, got %q", serverErr.Code)
	}
	if serverErr.Description != "maintenance window" {
		t.Fatalf("expected error description passthrough, got %q", serverErr.Description)
	}
	if serverErr.URI == nil || serverErr.URI.String() != "https://auth.example.com/errors/503" {
		t.Fatalf("expected error uri passthrough, got %v", serverErr.URI)
	}
}

func TestGrant_CallbackNeitherCodeNorError(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}
	if _, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
		State:       "state_1",
	}); err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	_, err = grant.HandleCallback(context.Background(), map[string]string{"state": "state_1"})
	if err == nil {
		t.Fatalf("expected malformed callback error")
	}
	if IsStateMismatch(err) || IsProviderDenied(err) || IsMisuse(err) {
		t.Fatalf("expected plain callback data fault, got %v", err)
	}
	if grant.Phase() != PhaseFinished {
		t.Fatalf("expected malformed callback to finish the flow, got %q", grant.Phase())
	}
}

func TestGrant_HandleCallbackCodeRequiresCode(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}
	if _, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
	}); err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	if _, err := grant.HandleCallbackCode(context.Background(), "  "); err == nil {
		t.Fatalf("expected missing code error")
	}
	if grant.Phase() != PhaseFinished {
		t.Fatalf("expected one-shot semantics for direct code exchange, got %q", grant.Phase())
	}
}

func TestGrant_FlowStateRoundTrip(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}
	if _, err := grant.AuthorizationURL(AuthorizeRequest{
		RedirectURI: "https://app.example.com/callback",
		Scopes:      []string{"read", "write"},
		State:       "state_1",
	}); err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	snapshot := grant.FlowState()
	if snapshot.Phase != string(PhaseAwaitingResponse) {
		t.Fatalf("expected awaiting_response snapshot phase, got %q", snapshot.Phase)
	}
	if snapshot.RedirectURI == nil || *snapshot.RedirectURI != "https://app.example.com/callback" {
		t.Fatalf("expected redirect uri in snapshot")
	}
	if snapshot.State == nil || *snapshot.State != "state_1" {
		t.Fatalf("expected state in snapshot")
	}

	resumed, err := ResumeGrant(testGrantConfig(), snapshot)
	if err != nil {
		t.Fatalf("resume grant: %v", err)
	}
	if resumed.Phase() != PhaseAwaitingResponse {
		t.Fatalf("expected resumed phase awaiting_response, got %q", resumed.Phase())
	}

	_, err = resumed.HandleCallback(context.Background(), map[string]string{
		"state": "state_2",
		"code":  "abc",
	})
	if !IsStateMismatch(err) {
		t.Fatalf("expected resumed grant to enforce csrf state, got %v", err)
	}
}

func TestResumeGrant_RejectsUnknownPhase(t *testing.T) {
	_, err := ResumeGrant(testGrantConfig(), FlowState{Phase: "halfway"})
	if err == nil {
		t.Fatalf("expected unknown phase error")
	}
}

func TestGrant_FlowStateOmitsOptionalFields(t *testing.T) {
	grant, err := NewGrant(testGrantConfig())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}

	snapshot := grant.FlowState()
	if snapshot.Phase != string(PhaseInitial) {
		t.Fatalf("expected initial phase, got %q", snapshot.Phase)
	}
	if snapshot.RedirectURI != nil || snapshot.State != nil || snapshot.Scopes != nil {
		t.Fatalf("expected unset optional fields to be nil")
	}
	if snapshot.PKCEVerifier != "" {
		t.Fatalf("expected empty pkce verifier for non-pkce flow")
	}
}

func TestGrant_CloseIsIdempotent(t *testing.T) {
	closer := &recordingCloser{}
	grant, err := NewGrant(testGrantConfig(), WithGrantHTTPClient(closer))
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}

	if err := grant.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := grant.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if closer.closed != 1 {
		t.Fatalf("expected transport closed once, got %d", closer.closed)
	}
}

func TestGrant_ClockInjection(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	grant, err := NewGrant(testGrantConfig(), WithGrantClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}
	if got := grant.now(); !got.Equal(fixed) {
		t.Fatalf("expected injected clock, got %v", got)
	}
}

func TestNormalizeScopes(t *testing.T) {
	got := normalizeScopes([]string{" b ", "a", "b", ""})
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("expected [b a], got %v", got)
	}
	if got := normalizeScopes(nil); len(got) != 0 {
		t.Fatalf("expected empty scopes, got %v", got)
	}
}
