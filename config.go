// Package nativeauth is a client library for OAuth2/OIDC Authorization
// Code + PKCE login against providers that additionally expose a
// server-driven, form-based hosted login protocol ("journey flow").
package nativeauth

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"nativeauth/session"
)

// Mode is sent as the `sdk` query parameter on authorization requests
// so the provider can distinguish integration styles.
type Mode string

const (
	ModeNative        Mode = "native"
	ModeNativeMinimal Mode = "native-minimal"
)

// Config captures the SDK configuration, loadable from YAML with
// environment overrides.
type Config struct {
	Issuer                string   `yaml:"issuer" validate:"required,url"`
	ClientID              string   `yaml:"client_id" validate:"required"`
	RedirectURI           string   `yaml:"redirect_uri" validate:"required,uri"`
	PostLogoutRedirectURI string   `yaml:"post_logout_redirect_uri"`
	Scopes                []string `yaml:"scopes"`
	UseDiscovery          bool     `yaml:"use_discovery"`
	AcceptLanguage        string   `yaml:"accept_language"`
	Mode                  Mode     `yaml:"mode"`
}

// Options injects the SDK's collaborators. Storage is required; the
// rest default to sane implementations.
type Options struct {
	Storage    session.Storage
	Logger     *slog.Logger
	HTTPClient *http.Client
	Clock      func() time.Time
}

// LoginParameters tune a single login attempt.
type LoginParameters struct {
	Prompt    string
	LoginHint string
	ACRValue  string
	Scopes    []string
	Audiences []string
}

// LoadConfig reads a YAML config file, applies NATIVEAUTH_* environment
// overrides, and validates the result. Unknown YAML keys are rejected.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		decoder := yaml.NewDecoder(strings.NewReader(string(b)))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"NATIVEAUTH_ISSUER":                   func(v string) { cfg.Issuer = v },
		"NATIVEAUTH_CLIENT_ID":                func(v string) { cfg.ClientID = v },
		"NATIVEAUTH_REDIRECT_URI":             func(v string) { cfg.RedirectURI = v },
		"NATIVEAUTH_POST_LOGOUT_REDIRECT_URI": func(v string) { cfg.PostLogoutRedirectURI = v },
		"NATIVEAUTH_SCOPES":                   func(v string) { cfg.Scopes = splitAndTrim(v) },
		"NATIVEAUTH_ACCEPT_LANGUAGE":          func(v string) { cfg.AcceptLanguage = v },
		"NATIVEAUTH_MODE":                     func(v string) { cfg.Mode = Mode(v) },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the required fields and applies defaults.
func (c *Config) Validate() error {
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"openid", "profile"}
	}
	if c.Mode == "" {
		c.Mode = ModeNative
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
