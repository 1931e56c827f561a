package core

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	FlowErrorMisuse         = "AUTHFLOW_MISUSE"
	FlowErrorBadInput       = "AUTHFLOW_BAD_INPUT"
	FlowErrorStateMismatch  = "AUTHFLOW_STATE_MISMATCH"
	FlowErrorBadCallback    = "AUTHFLOW_BAD_CALLBACK"
	FlowErrorBadFlowState   = "AUTHFLOW_BAD_FLOW_STATE"
	FlowErrorProviderDenied = "AUTHFLOW_PROVIDER_DENIED"
	FlowErrorTicketNotFound = "AUTHFLOW_TICKET_NOT_FOUND"
	FlowErrorInternal       = "AUTHFLOW_INTERNAL"
)

// ServerError carries an authorization server's explicit protocol error
// verbatim: the callback (or token response) was well formed, but the flow was
// denied.
type ServerError struct {
	Code        string
	Description string
	URI         *url.URL
}

func (e *ServerError) Error() string {
	if e == nil {
		return "authorization server error"
	}
	message := e.Code
	if strings.TrimSpace(message) == "" {
		message = "authorization server error"
	}
	if strings.TrimSpace(e.Description) != "" {
		message += ": " + e.Description
	}
	if e.URI != nil {
		message += " (" + e.URI.String() + ")"
	}
	return message
}

// AsServerError unwraps the verbatim authorization-server error, if err carries
// one.
func AsServerError(err error) (*ServerError, bool) {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr, true
	}
	return nil, false
}

type ErrorMapper func(err error) *goerrors.Error

func misuseError(message string) error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(FlowErrorMisuse)
}

func badInputError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(FlowErrorBadInput)
}

func validationError(field string, message string) error {
	return goerrors.NewValidation("core: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(FlowErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func stateMismatchError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(FlowErrorStateMismatch)
}

func callbackError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(FlowErrorBadCallback)
}

func flowStateError(field string, raw []byte, message string) error {
	return goerrors.New(
		fmt.Sprintf("core: invalid flow state: %s", message),
		goerrors.CategoryBadInput,
	).
		WithCode(http.StatusBadRequest).
		WithTextCode(FlowErrorBadFlowState).
		WithMetadata(map[string]any{
			"field": field,
			"raw":   string(raw),
		})
}

func protocolError(serverErr *ServerError) error {
	return goerrors.Wrap(serverErr, goerrors.CategoryAuth, "core: authorization server denied the flow").
		WithCode(http.StatusUnauthorized).
		WithTextCode(FlowErrorProviderDenied)
}

func internalError(source error, message string) error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(FlowErrorInternal)
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(FlowErrorInternal)
}

// IsMisuse reports whether err is a call-order violation: a programming error,
// never retryable.
func IsMisuse(err error) bool {
	return hasTextCode(err, FlowErrorMisuse)
}

// IsStateMismatch reports whether err is a CSRF state validation failure.
func IsStateMismatch(err error) bool {
	return hasTextCode(err, FlowErrorStateMismatch)
}

// IsProviderDenied reports whether err wraps an explicit protocol error from
// the authorization server.
func IsProviderDenied(err error) bool {
	return hasTextCode(err, FlowErrorProviderDenied)
}

func hasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func flowErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureFlowErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "state mismatch"), strings.Contains(msg, "state parameter"):
		return newFlowError(err.Error(), goerrors.CategoryBadInput, FlowErrorStateMismatch)
	case strings.Contains(msg, "ticket") && strings.Contains(msg, "not found"):
		return newFlowError(err.Error(), goerrors.CategoryNotFound, FlowErrorTicketNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newFlowError(err.Error(), goerrors.CategoryBadInput, FlowErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureFlowErrorEnvelope(mapped)
}

func newFlowError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureFlowErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureFlowErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = flowHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultFlowTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultFlowTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return FlowErrorBadInput
	case goerrors.CategoryNotFound:
		return FlowErrorTicketNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return FlowErrorProviderDenied
	case goerrors.CategoryConflict:
		return FlowErrorMisuse
	default:
		return FlowErrorInternal
	}
}

func flowHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
