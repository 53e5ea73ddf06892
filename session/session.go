// Package session holds the authenticated profile derived from token
// responses and persists it through a caller-supplied storage
// collaborator.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nativeauth/oidc"
)

// Storage is the platform key-value store the session persists into.
// Implementations own their durability and locking guarantees; Set
// reports whether the write succeeded.
type Storage interface {
	Set(key, value string) bool
	Get(key string) (string, bool)
	Delete(key string)
}

const profileKey = "profile"

// Profile is the authenticated state derived from one token response.
// It is rebuilt wholesale on every token update and never mutated in
// place. Claims are decoded from the ID token payload, not persisted.
type Profile struct {
	TokenResponse        oidc.TokenResponse
	AccessTokenExpiresAt time.Time
	Claims               map[string]any
}

// IDToken returns the profile's raw ID token.
func (p *Profile) IDToken() string {
	return p.TokenResponse.IDToken
}

// persistedProfile is the stored JSON shape: the token response plus
// the expiry as epoch milliseconds.
type persistedProfile struct {
	TokenResponse        oidc.TokenResponse `json:"tokenResponse"`
	AccessTokenExpiresAt int64              `json:"accessTokenExpiresAt"`
}

// ExtractClaims decodes the payload segment of an ID token without
// verifying its signature. The SDK only ever sees tokens it received
// directly from the issuer's token endpoint over TLS, so verification
// is deliberately left to the issuing server; see the package risk
// notes in DESIGN.md.
func ExtractClaims(idToken string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}
	return claims, nil
}

// Session is the process-scoped authentication state: the current
// profile and a login-in-progress flag. All transitions happen under
// one mutex so readers always observe a consistent snapshot.
type Session struct {
	mu      sync.Mutex
	storage Storage
	logger  *slog.Logger
	clock   func() time.Time

	loginInProgress bool
	profile         *Profile
}

// New constructs a Session. clock may be nil, in which case time.Now
// is used.
func New(storage Storage, logger *slog.Logger, clock func() time.Time) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Session{storage: storage, logger: logger, clock: clock}
}

// Load restores a previously persisted profile. It is a best-effort
// warm start: a missing or unparseable blob is logged and leaves the
// profile unset, never failing the caller.
func (s *Session) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.storage.Get(profileKey)
	if !ok {
		return
	}

	var stored persistedProfile
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.logger.Debug("failed to parse stored profile", "error", err)
		return
	}

	claims, err := ExtractClaims(stored.TokenResponse.IDToken)
	if err != nil {
		s.logger.Debug("failed to decode stored id token claims", "error", err)
		return
	}

	s.profile = &Profile{
		TokenResponse:        stored.TokenResponse,
		AccessTokenExpiresAt: time.UnixMilli(stored.AccessTokenExpiresAt),
		Claims:               claims,
	}
}

// Update replaces the profile from a fresh token response, clears the
// login-in-progress flag, and persists the new profile. A persistence
// failure is returned; failing a login is preferable to silently
// losing the ability to persist it.
func (s *Session) Update(tr oidc.TokenResponse) error {
	claims, err := ExtractClaims(tr.IDToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.clock().Add(time.Duration(tr.ExpiresIn) * time.Second)
	s.loginInProgress = false
	s.profile = &Profile{
		TokenResponse:        tr,
		AccessTokenExpiresAt: expiresAt,
		Claims:               claims,
	}

	encoded, err := json.Marshal(persistedProfile{
		TokenResponse:        tr,
		AccessTokenExpiresAt: expiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if !s.storage.Set(profileKey, string(encoded)) {
		return fmt.Errorf("persist profile: storage write failed")
	}
	return nil
}

// Clear empties the session and deletes the persisted profile. It is
// idempotent.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loginInProgress = false
	s.profile = nil
	s.storage.Delete(profileKey)
}

// SetLoginInProgress flips the in-progress flag.
func (s *Session) SetLoginInProgress(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginInProgress = v
}

// LoginInProgress reports whether a login attempt is active.
func (s *Session) LoginInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginInProgress
}

// Profile returns the current profile, or nil when signed out.
func (s *Session) Profile() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Snapshot returns the profile and in-progress flag as one consistent
// observation.
func (s *Session) Snapshot() (*Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile, s.loginInProgress
}
