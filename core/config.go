package core

import (
	"fmt"
	"net/url"
	"strings"
)

// Config is the fixed client configuration of a grant: credentials issued by
// the authorization server plus the endpoints the flow talks to. ClientSecret
// may be empty for public clients. ClientSecretInBody selects how client
// credentials are presented at token exchange: the zero value authenticates
// confidential clients with an HTTP Basic Authorization header, true moves the
// credentials into the request body.
type Config struct {
	ClientID           string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret       string   `koanf:"client_secret" mapstructure:"client_secret"`
	AuthorizationURL   string   `koanf:"authorization_url" mapstructure:"authorization_url"`
	TokenURL           string   `koanf:"token_url" mapstructure:"token_url"`
	ClientSecretInBody bool     `koanf:"client_secret_in_body" mapstructure:"client_secret_in_body"`
	DefaultScopes      []string `koanf:"default_scopes" mapstructure:"default_scopes"`
}

func DefaultConfig() Config {
	return Config{}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("core: client_id is required")
	}
	if err := validateAbsoluteURL("authorization_url", c.AuthorizationURL); err != nil {
		return err
	}
	if err := validateAbsoluteURL("token_url", c.TokenURL); err != nil {
		return err
	}
	return nil
}

func validateAbsoluteURL(field string, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("core: %s is required", field)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("core: %s is not a valid url: %w", field, err)
	}
	if !parsed.IsAbs() {
		return fmt.Errorf("core: %s must be an absolute url", field)
	}
	return nil
}
