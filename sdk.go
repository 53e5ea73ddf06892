package nativeauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"nativeauth/flow"
	"nativeauth/oidc"
	"nativeauth/session"
	"nativeauth/transport"
)

// refreshWindow is how close to expiry the access token may get before
// a refresh is attempted.
const refreshWindow = time.Minute

// SDK is the top-level login/session state machine. One instance owns
// the session, at most one in-progress hosted-login attempt, and the
// token refresh lock.
type SDK struct {
	cfg       Config
	endpoints oidc.Endpoints
	logger    *slog.Logger
	clock     func() time.Time

	sess      *session.Session
	transport *transport.Client
	tokens    *oidc.TokenClient
	redirects *oidc.RedirectHandler

	// refreshMu serializes token refreshes so concurrent callers never
	// issue overlapping refresh-token exchanges.
	refreshMu sync.Mutex

	mu         sync.Mutex
	controller *flow.Controller
	attempt    *loginAttempt
}

// loginAttempt captures the per-attempt OIDC parameters and the
// caller's callbacks. Login attempts span a browser round trip, so the
// initiating call site legitimately returns before the flow concludes;
// results are reported through these callbacks.
type loginAttempt struct {
	params    oidc.Params
	onSuccess func()
	onError   func(error)
}

// New constructs an SDK instance. When cfg.UseDiscovery is set the
// provider's endpoint layout is resolved from its discovery document;
// otherwise the fixed layout is used.
func New(ctx context.Context, cfg Config, opts Options) (*SDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	trOpts := []transport.Option{}
	if opts.HTTPClient != nil {
		trOpts = append(trOpts, transport.WithHTTPClient(opts.HTTPClient))
	}
	if cfg.AcceptLanguage != "" {
		trOpts = append(trOpts, transport.WithAcceptLanguage(cfg.AcceptLanguage))
	}
	tr := transport.New(logger, trOpts...)

	endpoints := oidc.DefaultEndpoints(cfg.Issuer)
	if cfg.UseDiscovery {
		discovered, err := oidc.Discover(ctx, cfg.Issuer, tr.HTTPClient())
		if err != nil {
			return nil, fmt.Errorf("endpoint discovery: %w", err)
		}
		endpoints = discovered
	}

	return &SDK{
		cfg:       cfg,
		endpoints: endpoints,
		logger:    logger,
		clock:     clock,
		sess:      session.New(opts.Storage, logger, clock),
		transport: tr,
		tokens:    oidc.NewTokenClient(tr, logger),
		redirects: oidc.NewRedirectHandler(tr, cfg.RedirectURI, logger),
	}, nil
}

// Session exposes the SDK's session state.
func (s *SDK) Session() *session.Session {
	return s.sess
}

// Controller returns the live login controller, or nil when no hosted
// login is in progress.
func (s *SDK) Controller() *flow.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller
}

// InitializeSession restores persisted state and opportunistically
// refreshes tokens that are near expiry. Storage corruption is logged
// and tolerated; refresh failures other than an authoritative token
// rejection propagate.
func (s *SDK) InitializeSession(ctx context.Context) error {
	s.logger.Info("initializing session")
	s.sess.Load()

	refreshed, err := s.refreshTokensIfNeeded(ctx)
	if err != nil {
		s.logger.Error("failed to initialize session", "error", err)
		return err
	}

	profile, inProgress := s.sess.Snapshot()
	s.logger.Debug("session initialized",
		"authenticated", profile != nil,
		"login_in_progress", inProgress,
		"refreshed", refreshed,
	)
	return nil
}

// Login starts a fresh login attempt. The authorization endpoint is
// resolved through the redirect handler; when the provider answers
// with a hosted session id a login controller is created for the
// journey, otherwise the parameters are treated as a direct OIDC
// callback. Errors on this path surface through onError, never as a
// panic or a return.
func (s *SDK) Login(ctx context.Context, fallback flow.FallbackHandler, onSuccess func(), onError func(error), params *LoginParameters) {
	s.logger.Info("starting login flow")

	p, err := oidc.NewParams()
	if err != nil {
		onError(&UnknownError{Err: err})
		return
	}
	attempt := &loginAttempt{params: p, onSuccess: onSuccess, onError: onError}

	values, err := s.redirects.Resolve(ctx, s.authorizationURL(p, params))
	if err != nil {
		s.logger.Error("login flow failed", "error", err)
		onError(&UnknownError{Err: err})
		return
	}

	sessionID := values.Get("session_id")
	if sessionID == "" {
		s.continueAuthorization(ctx, attempt, values)
		return
	}

	live, err := s.startController(ctx, attempt, sessionID, fallback)
	if err != nil {
		s.logger.Error("login flow failed", "error", err)
		s.cleanup()
		onError(&UnknownError{Err: err})
		return
	}
	if live {
		s.logger.Info("login flow started")
	}
}

// Entry starts a deep-link-initiated flow carrying a challenge
// parameter, resolving it to a hosted session via the provider's entry
// endpoint. Each precondition failure is reported distinctly and no
// network call is made before the challenge is validated.
func (s *SDK) Entry(ctx context.Context, uri string, fallback flow.FallbackHandler, onSuccess func(), onError func(error)) {
	s.cleanup()
	s.logger.Info("starting workflow")

	p, err := oidc.NewParams()
	if err != nil {
		onError(&UnknownError{Err: err})
		return
	}
	attempt := &loginAttempt{params: p, onSuccess: onSuccess, onError: onError}

	if uri == "" {
		onError(&UnknownError{Err: errors.New("entry uri is missing")})
		return
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		onError(&UnknownError{Err: fmt.Errorf("parse entry uri: %w", err)})
		return
	}
	challenge := strings.TrimSpace(parsed.Query().Get("challenge"))
	if challenge == "" {
		onError(&UnknownError{Err: errors.New("entry challenge parameter is missing")})
		return
	}

	query := url.Values{}
	query.Set("challenge", challenge)
	query.Set("client_id", s.cfg.ClientID)
	query.Set("redirect_uri", s.cfg.RedirectURI)
	entryURL := strings.TrimSuffix(s.cfg.Issuer, "/") + "/provider/flow/entry?" + query.Encode()

	resp, err := s.transport.GetNoRedirect(ctx, entryURL, "text/html")
	if err != nil {
		onError(&UnknownError{Err: err})
		return
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		var body map[string]string
		if err := transport.DecodeJSON(resp, &body); err != nil {
			onError(&UnknownError{Err: err})
			return
		}
		code, ok := body["error"]
		if !ok {
			onError(&UnknownError{Err: errors.New("workflow error: error is null")})
			return
		}
		onError(&WorkflowError{Code: code, Description: body["error_description"]})
		return
	case http.StatusInternalServerError:
		transport.Drain(resp)
		s.logger.Debug("ensure that the authentication client has an entry url configured")
		onError(&UnknownError{Err: errors.New("server failed to answer - 500 status code received")})
		return
	}
	transport.Drain(resp)

	location := resp.Header.Get("Location")
	if location == "" {
		onError(&UnknownError{Err: errors.New("expected to find location header but it was not found")})
		return
	}
	locationURL, err := url.Parse(location)
	if err != nil {
		onError(&UnknownError{Err: fmt.Errorf("parse location header: %w", err)})
		return
	}
	sessionID := locationURL.Query().Get("session_id")
	if sessionID == "" {
		onError(&UnknownError{Err: errors.New("failed to start session: session_id missing or blank")})
		return
	}

	live, err := s.startController(ctx, attempt, sessionID, fallback)
	if err != nil {
		s.cleanup()
		onError(&UnknownError{Err: err})
		return
	}
	// An immediate finalize already reported the outcome through the
	// attempt's callbacks inside Initialize.
	if live {
		s.logger.Info("login flow started")
		onSuccess()
	}
}

// ContinueFlow resumes the state machine when the platform delivers a
// callback URL. An empty uri signals that the user dismissed the
// hosted page, which cancels the attempt.
func (s *SDK) ContinueFlow(ctx context.Context, uri string) {
	s.mu.Lock()
	attempt := s.attempt
	s.mu.Unlock()

	if attempt == nil {
		s.logger.Warn("continue flow requested but no login in progress")
		return
	}

	if uri == "" {
		s.logger.Debug("flow canceled")
		s.CancelFlow(&HostedFlowCanceledError{})
		return
	}

	values, err := s.redirects.Resolve(ctx, uri)
	if err != nil {
		s.logger.Debug("failed to continue flow", "error", err)
		s.cleanup()
		attempt.onError(&UnknownError{Err: err})
		return
	}
	s.continueAuthorization(ctx, attempt, values)
}

// CancelFlow tears down the in-progress attempt. With a nil error this
// is a silent user-initiated cancel; otherwise the error is delivered
// through the attempt's onError callback. It never touches the
// network.
func (s *SDK) CancelFlow(err error) {
	s.mu.Lock()
	attempt := s.attempt
	s.mu.Unlock()

	if attempt == nil {
		s.logger.Warn("cancel requested but no login in progress")
		return
	}

	s.cleanup()
	if err != nil {
		s.logger.Debug("canceling login flow", "error", err)
		attempt.onError(err)
	} else {
		s.logger.Warn("canceling login flow")
	}
}

// IsRedirectExpected reports whether the attempt was handed off to the
// hosted page and the SDK awaits an external callback.
func (s *SDK) IsRedirectExpected() bool {
	s.mu.Lock()
	controller := s.controller
	s.mu.Unlock()
	return controller != nil && controller.IsRedirectExpected()
}

// IsAuthenticated refreshes tokens if needed and reports whether a
// profile is present.
func (s *SDK) IsAuthenticated(ctx context.Context) (bool, error) {
	if _, err := s.refreshTokensIfNeeded(ctx); err != nil {
		return false, err
	}
	return s.sess.Profile() != nil, nil
}

// AccessToken refreshes tokens if needed and returns the current
// access token, or the empty string when signed out.
func (s *SDK) AccessToken(ctx context.Context) (string, error) {
	if _, err := s.refreshTokensIfNeeded(ctx); err != nil {
		return "", err
	}
	profile := s.sess.Profile()
	if profile == nil {
		s.logger.Debug("access token requested but no profile available")
		return "", nil
	}
	return profile.TokenResponse.AccessToken, nil
}

// Logout clears local state first, so sign-out is never blocked by the
// network, then best-effort notifies the provider's end-session
// endpoint when an id token is available.
func (s *SDK) Logout(ctx context.Context) {
	s.logger.Debug("starting logout")

	var idToken string
	if profile := s.sess.Profile(); profile != nil {
		idToken = profile.IDToken()
	}

	s.sess.Clear()

	if idToken == "" {
		s.logger.Info("user logged out (no id_token_hint available)")
		return
	}

	query := url.Values{}
	query.Set("id_token_hint", idToken)
	query.Set("post_logout_redirect_uri", s.cfg.PostLogoutRedirectURI)
	logoutURL := s.endpoints.EndSession + "?" + query.Encode()

	if _, err := s.redirects.Resolve(ctx, logoutURL); err != nil {
		s.logger.Warn("failed to call logout endpoint", "error", err)
		return
	}
	s.logger.Info("user logged out")
}

// Revoke invalidates the refresh token when present, otherwise the
// access token, and clears the session regardless of the outcome.
func (s *SDK) Revoke(ctx context.Context) {
	defer s.sess.Clear()

	profile := s.sess.Profile()
	if profile == nil {
		return
	}

	token, typeHint := profile.TokenResponse.RefreshToken, "refresh_token"
	if token == "" {
		token, typeHint = profile.TokenResponse.AccessToken, "access_token"
	}
	if token == "" {
		return
	}

	if err := s.tokens.Revoke(ctx, s.endpoints.Revocation, token, typeHint, s.cfg.ClientID); err != nil {
		s.logger.Debug("failed to call revoke endpoint", "error", err)
	}
}

// flow.Delegate: the login controller forwards finalize URLs here.
var _ flow.Delegate = (*SDK)(nil)

// authorizationURL builds the authorization request. response_type,
// client_id, redirect_uri, and scope come from oauth2.Config; the PKCE
// and OIDC parameters plus the optional login tuning ride along as
// extra query parameters.
func (s *SDK) authorizationURL(p oidc.Params, params *LoginParameters) string {
	scopes := s.cfg.Scopes
	if params != nil && len(params.Scopes) > 0 {
		scopes = params.Scopes
	}

	oauthCfg := oauth2.Config{
		ClientID:    s.cfg.ClientID,
		RedirectURL: s.cfg.RedirectURI,
		Endpoint:    oauth2.Endpoint{AuthURL: s.endpoints.Authorization},
		Scopes:      scopes,
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", p.Nonce),
		oauth2.S256ChallengeOption(p.CodeVerifier),
		oauth2.SetAuthURLParam("sdk", string(s.cfg.Mode)),
	}

	if params != nil {
		if params.LoginHint != "" {
			opts = append(opts, oauth2.SetAuthURLParam("login_hint", params.LoginHint))
		}
		if params.ACRValue != "" {
			opts = append(opts, oauth2.SetAuthURLParam("acr_values", params.ACRValue))
		}
		if params.Prompt != "" {
			opts = append(opts, oauth2.SetAuthURLParam("prompt", params.Prompt))
		}
		audiences := make([]string, 0, len(params.Audiences))
		for _, aud := range params.Audiences {
			if strings.TrimSpace(aud) != "" {
				audiences = append(audiences, aud)
			}
		}
		if len(audiences) > 0 {
			opts = append(opts, oauth2.SetAuthURLParam("audience", strings.Join(audiences, " ")))
		}
	}

	return oauthCfg.AuthCodeURL(p.State, opts...)
}

// startController builds the journey client and controller for a
// hosted session and fetches the first screen. The controller is
// registered before initialization so that an immediate finalize
// screen can already reach ContinueFlow; when that happens the whole
// flow terminates inside Initialize and the attempt is gone by the
// time it returns. It reports whether the attempt is still live.
func (s *SDK) startController(ctx context.Context, attempt *loginAttempt, sessionID string, fallback flow.FallbackHandler) (bool, error) {
	client := flow.NewClient(s.transport, s.cfg.Issuer, sessionID, s.logger)
	controller := flow.NewController(s, client, fallback, s.logger)

	s.mu.Lock()
	s.controller = controller
	s.attempt = attempt
	s.mu.Unlock()

	if err := controller.Initialize(ctx); err != nil {
		return false, fmt.Errorf("initialize login controller: %w", err)
	}

	s.mu.Lock()
	live := s.attempt == attempt
	s.mu.Unlock()
	if live {
		s.sess.SetLoginInProgress(true)
	}
	return live, nil
}

// continueAuthorization validates terminal callback parameters and
// finishes the code exchange. Validation failures each carry their own
// reason and never leave a partially updated session.
func (s *SDK) continueAuthorization(ctx context.Context, attempt *loginAttempt, values url.Values) {
	if values.Get("session_id") != "" {
		s.mu.Lock()
		controller := s.controller
		s.mu.Unlock()

		if controller == nil {
			s.logger.Warn("mid-flow continuation without a live controller")
			return
		}
		if err := controller.Initialize(ctx); err != nil {
			s.logger.Debug("failed to re-initialize login controller", "error", err)
			s.cleanup()
			attempt.onError(&UnknownError{Err: err})
		}
		return
	}

	if code, desc := values.Get("error"), values.Get("error_description"); code != "" && desc != "" {
		s.logger.Debug("oidc error received", "error", code, "description", desc)
		s.sess.Clear()
		s.cleanup()
		attempt.onError(&OidcError{Code: code, Description: desc})
		return
	}

	if values.Get("state") != attempt.params.State {
		s.logger.Error("state validation failed")
		s.cleanup()
		attempt.onError(&InvalidCallbackError{Reason: "state param did not match expected value"})
		return
	}

	code := values.Get("code")
	if code == "" {
		// A callback that carries neither session_id, error, nor code
		// is malformed beyond recovery.
		s.logger.Error("authorization code missing from callback")
		s.cleanup()
		attempt.onError(&UnknownError{Err: errors.New("code missing from response")})
		return
	}

	s.logger.Debug("authorization code received, exchanging for tokens")
	tr, err := s.tokens.Exchange(ctx, s.endpoints.Token, oidc.ExchangeParams{
		Code:         code,
		CodeVerifier: attempt.params.CodeVerifier,
		RedirectURI:  s.cfg.RedirectURI,
		ClientID:     s.cfg.ClientID,
	})
	if err != nil {
		s.logger.Debug("token exchange failed", "error", err)
		s.cleanup()
		attempt.onError(&UnknownError{Err: err})
		return
	}

	claims, err := session.ExtractClaims(tr.IDToken)
	if err != nil {
		s.logger.Debug("token validation failed", "error", err)
		s.cleanup()
		attempt.onError(&UnknownError{Err: err})
		return
	}

	if reason, ok := s.validateClaims(claims, attempt.params.Nonce); !ok {
		s.cleanup()
		attempt.onError(&InvalidCallbackError{Reason: reason})
		return
	}

	s.logger.Debug("all token validations passed, updating session")
	if err := s.sess.Update(*tr); err != nil {
		s.logger.Error("failed to persist session", "error", err)
		s.cleanup()
		attempt.onError(&UnknownError{Err: err})
		return
	}

	s.cleanup()
	s.logger.Info("user signed in")
	attempt.onSuccess()
}

// validateClaims checks nonce, issuer, and audience in that order,
// returning the first mismatch reason.
func (s *SDK) validateClaims(claims map[string]any, expectedNonce string) (string, bool) {
	nonce, _ := claims["nonce"].(string)
	if nonce == "" || nonce != expectedNonce {
		s.logger.Error("nonce validation failed")
		return "nonce param did not match expected value", false
	}

	issuer, _ := claims["iss"].(string)
	normalized := s.cfg.Issuer
	if !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}
	if issuer == "" || issuer != normalized {
		s.logger.Error("issuer validation failed")
		return "issuer param did not match expected value", false
	}

	if !audienceContains(claims["aud"], s.cfg.ClientID) {
		s.logger.Error("audience validation failed")
		return "audience param did not match expected value", false
	}

	return "", true
}

func audienceContains(aud any, clientID string) bool {
	switch v := aud.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == clientID {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == clientID {
				return true
			}
		}
	case string:
		return v == clientID
	}
	return false
}

// refreshTokensIfNeeded refreshes the access token when it expires
// within the refresh window. It runs under the SDK's refresh lock and
// rechecks expiry after acquisition, so concurrent callers produce at
// most one network refresh. A 401/403 from the token endpoint is an
// authoritative rejection: the session is cleared without an error.
// It reports whether a refresh actually happened.
func (s *SDK) refreshTokensIfNeeded(ctx context.Context) (bool, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	profile := s.sess.Profile()
	if profile == nil || profile.AccessTokenExpiresAt.After(s.clock().Add(refreshWindow)) {
		return false, nil
	}

	s.logger.Debug("access token expired or expiring soon, attempting refresh")
	refreshToken := profile.TokenResponse.RefreshToken
	if refreshToken == "" {
		s.logger.Warn("no refresh token available, clearing session")
		s.sess.Clear()
		return false, nil
	}

	tr, err := s.tokens.Refresh(ctx, s.endpoints.Token, oidc.RefreshParams{
		RefreshToken: refreshToken,
		ClientID:     s.cfg.ClientID,
	})
	if err != nil {
		var httpErr *transport.HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden) {
			s.logger.Warn("token refresh rejected, clearing session", "status", httpErr.StatusCode)
			s.sess.Clear()
			return false, nil
		}
		s.logger.Error("token refresh failed", "error", err)
		return false, err
	}

	if err := s.sess.Update(*tr); err != nil {
		return false, err
	}
	s.logger.Debug("token refresh successful")
	return true, nil
}

// cleanup drops the in-progress attempt and flag. It runs on every
// terminal transition: success, error, or cancel.
func (s *SDK) cleanup() {
	s.sess.SetLoginInProgress(false)
	s.mu.Lock()
	s.controller = nil
	s.attempt = nil
	s.mu.Unlock()
}
