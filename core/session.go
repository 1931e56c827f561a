package core

import (
	"net/http"
	"strings"
	"time"
)

// Session is the authorized client produced by a successful exchange. It
// co-owns the transport handle with the Grant that created it: closing either
// closes the shared transport for both.
type Session struct {
	cfg        Config
	credential Credential
	transport  HTTPDoer
	released   bool
}

func newSession(cfg Config, credential Credential, transport HTTPDoer) *Session {
	return &Session{
		cfg:        cfg,
		credential: credential,
		transport:  transport,
	}
}

func (s *Session) Credential() Credential {
	if s == nil {
		return Credential{}
	}
	return s.credential
}

func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return s.credential.Expired(now)
}

// SetAuthHeader stamps the session's access token onto req.
func (s *Session) SetAuthHeader(req *http.Request) {
	if s == nil || req == nil {
		return
	}
	scheme := "Bearer"
	if tokenType := strings.TrimSpace(s.credential.TokenType); tokenType != "" && tokenType != "bearer" {
		scheme = tokenType
	}
	req.Header.Set("Authorization", scheme+" "+s.credential.AccessToken)
}

// Do issues req with the session's credentials through the shared transport.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	if s == nil || s.transport == nil || s.released {
		return nil, internalError(nil, "core: session transport has been released")
	}
	s.SetAuthHeader(req)
	return s.transport.Do(req)
}

// Close releases the shared transport. No-op when called twice.
func (s *Session) Close() error {
	if s == nil || s.released {
		return nil
	}
	s.released = true
	err := closeTransport(s.transport)
	s.transport = nil
	return err
}
