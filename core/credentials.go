package core

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxTokenResponseBodyBytes = 1 << 20 // 1 MiB

// Credential is the record produced by a successful token exchange.
type Credential struct {
	TokenType       string
	AccessToken     string
	RefreshToken    string
	RequestedScopes []string
	GrantedScopes   []string
	ExpiresAt       *time.Time
	Metadata        map[string]any
}

func (c Credential) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(*c.ExpiresAt)
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
	ErrorURI         string
}

// WireTokenParser decodes token-endpoint responses. Servers answer with JSON or
// form-encoded bodies depending on vintage; both are accepted. Protocol errors
// reported by the server pass through verbatim as ServerError.
type WireTokenParser struct {
	MaxBodyBytes int64
}

func (p WireTokenParser) ParseToken(
	tokenURL string,
	startedAt time.Time,
	requestedScopes []string,
	res *http.Response,
) (Credential, error) {
	if res == nil {
		return Credential{}, badInputError("core: token response is nil")
	}

	maxBytes := p.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = maxTokenResponseBodyBytes
	}
	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxBytes+1))
	if readErr != nil {
		return Credential{}, internalError(readErr, "core: read token response")
	}
	if int64(len(body)) > maxBytes {
		return Credential{}, badInputError(fmt.Sprintf("core: token response exceeds %d bytes", maxBytes))
	}

	payload, parseErr := parseTokenPayload(body, res.Header.Get("Content-Type"))
	if parseErr != nil {
		return Credential{}, callbackErrorf("core: decode token response: %v", parseErr)
	}
	if payload.ErrorCode != "" {
		return Credential{}, protocolError(serverErrorFromPayload(payload))
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return Credential{}, callbackErrorf("core: token endpoint returned status %d", res.StatusCode)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return Credential{}, callbackErrorf("core: token response missing access_token")
	}

	requested := append([]string(nil), requestedScopes...)
	granted := parseScopeList(payload.Scope)
	if len(granted) == 0 {
		granted = append([]string(nil), requested...)
	}

	return Credential{
		TokenType:       normalizeTokenType(payload.TokenType),
		AccessToken:     strings.TrimSpace(payload.AccessToken),
		RefreshToken:    strings.TrimSpace(payload.RefreshToken),
		RequestedScopes: requested,
		GrantedScopes:   granted,
		ExpiresAt:       resolveExpiresAt(startedAt, payload.ExpiresIn),
		Metadata: map[string]any{
			"token_url": strings.TrimSpace(tokenURL),
		},
	}, nil
}

func callbackErrorf(format string, args ...any) error {
	return callbackError(fmt.Sprintf(format, args...))
}

func serverErrorFromPayload(payload tokenEndpointPayload) *ServerError {
	serverErr := &ServerError{
		Code:        payload.ErrorCode,
		Description: payload.ErrorDescription,
	}
	if trimmed := strings.TrimSpace(payload.ErrorURI); trimmed != "" {
		if parsed, err := url.Parse(trimmed); err == nil {
			serverErr.URI = parsed
		}
	}
	return serverErr
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if len(bytesTrimSpace(body)) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
		ErrorURI:         readAnyString(decoded["error_uri"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if len(bytesTrimSpace(body)) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
		ErrorURI:         strings.TrimSpace(values.Get("error_uri")),
	}, nil
}

func resolveExpiresAt(startedAt time.Time, expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	expiresAt := startedAt.UTC().Add(time.Duration(expiresIn) * time.Second)
	return &expiresAt
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}
	}
	return strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
}

func bytesTrimSpace(value []byte) []byte {
	return []byte(strings.TrimSpace(string(value)))
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

var _ TokenParser = WireTokenParser{}
