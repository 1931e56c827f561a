package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// HTTPDoer is the pluggable transport handle shared by a Grant and any Session
// derived from it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenParser interprets a token-endpoint HTTP response. The start timestamp is
// captured immediately before the request is issued so credential expiry can be
// computed relative to issuance time.
type TokenParser interface {
	ParseToken(
		tokenURL string,
		startedAt time.Time,
		requestedScopes []string,
		res *http.Response,
	) (Credential, error)
}

// FlowStore persists pending flow tickets across process boundaries, keyed by
// the CSRF state parameter. Tickets are single-use: Consume removes the record
// it returns.
type FlowStore interface {
	Save(ctx context.Context, ticket FlowTicket) error
	Get(ctx context.Context, state string) (FlowTicket, error)
	Consume(ctx context.Context, state string) (FlowTicket, error)
	PurgeExpired(ctx context.Context) (int, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
