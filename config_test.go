package nativeauth

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := writeConfigFile(t, `
issuer: https://idp.example.com
client_id: client-1
redirect_uri: myapp://callback
post_logout_redirect_uri: myapp://signed-out
scopes: [openid, profile, email]
accept_language: hu-HU
mode: native-minimal
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Issuer != "https://idp.example.com" || cfg.ClientID != "client-1" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Scopes) != 3 || cfg.Scopes[2] != "email" {
		t.Fatalf("scopes = %v", cfg.Scopes)
	}
	if cfg.Mode != ModeNativeMinimal {
		t.Fatalf("mode = %q", cfg.Mode)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, `
issuer: https://idp.example.com
client_id: client-1
redirect_uri: myapp://callback
issuerr: typo
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
issuer: https://idp.example.com
client_id: client-1
redirect_uri: myapp://callback
`)

	t.Setenv("NATIVEAUTH_CLIENT_ID", "client-override")
	t.Setenv("NATIVEAUTH_SCOPES", "openid, email ,offline_access")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ClientID != "client-override" {
		t.Fatalf("client id = %q", cfg.ClientID)
	}
	want := []string{"openid", "email", "offline_access"}
	if len(cfg.Scopes) != len(want) {
		t.Fatalf("scopes = %v", cfg.Scopes)
	}
	for i, s := range want {
		if cfg.Scopes[i] != s {
			t.Fatalf("scopes = %v, want %v", cfg.Scopes, want)
		}
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := Config{
		Issuer:      "https://idp.example.com",
		ClientID:    "client-1",
		RedirectURI: "myapp://callback",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Scopes) != 2 || cfg.Scopes[0] != "openid" || cfg.Scopes[1] != "profile" {
		t.Fatalf("default scopes = %v", cfg.Scopes)
	}
	if cfg.Mode != ModeNative {
		t.Fatalf("default mode = %q", cfg.Mode)
	}
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing issuer", Config{ClientID: "c", RedirectURI: "myapp://cb"}},
		{"missing client id", Config{Issuer: "https://idp.example.com", RedirectURI: "myapp://cb"}},
		{"missing redirect uri", Config{Issuer: "https://idp.example.com", ClientID: "c"}},
		{"issuer not a url", Config{Issuer: "not a url", ClientID: "c", RedirectURI: "myapp://cb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}
