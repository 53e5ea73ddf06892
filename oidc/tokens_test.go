package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"nativeauth/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExchangeSendsAuthorizationCodeGrant(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  "at-1",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
			RefreshToken: "rt-1",
			IDToken:      "idt-1",
		})
	}))
	defer srv.Close()

	client := NewTokenClient(transport.New(discardLogger()), discardLogger())
	tr, err := client.Exchange(context.Background(), srv.URL, ExchangeParams{
		Code:         "code-1",
		CodeVerifier: "verifier-1",
		RedirectURI:  "myapp://callback",
		ClientID:     "client-1",
	})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	want := map[string]string{
		"grant_type":    "authorization_code",
		"code":          "code-1",
		"code_verifier": "verifier-1",
		"redirect_uri":  "myapp://callback",
		"client_id":     "client-1",
	}
	for k, v := range want {
		if gotForm[k] != v {
			t.Errorf("form[%s] = %q, want %q", k, gotForm[k], v)
		}
	}
	if tr.AccessToken != "at-1" || tr.RefreshToken != "rt-1" || tr.ExpiresIn != 3600 {
		t.Fatalf("unexpected token response: %+v", tr)
	}
}

func TestRefreshSendsRefreshTokenGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "rt-1" {
			t.Errorf("refresh_token = %q", got)
		}
		if got := r.PostForm.Get("client_id"); got != "client-1" {
			t.Errorf("client_id = %q", got)
		}
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "at-2", ExpiresIn: 3600, IDToken: "idt-2"})
	}))
	defer srv.Close()

	client := NewTokenClient(transport.New(discardLogger()), discardLogger())
	tr, err := client.Refresh(context.Background(), srv.URL, RefreshParams{RefreshToken: "rt-1", ClientID: "client-1"})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tr.AccessToken != "at-2" {
		t.Fatalf("access token = %q", tr.AccessToken)
	}
}

func TestTokenEndpointFailureCarriesStatusCode(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := NewTokenClient(transport.New(discardLogger()), discardLogger())
		_, err := client.Refresh(context.Background(), srv.URL, RefreshParams{RefreshToken: "rt", ClientID: "c"})
		srv.Close()

		var httpErr *transport.HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("status %d: expected *transport.HTTPError, got %v", status, err)
		}
		if httpErr.StatusCode != status {
			t.Fatalf("StatusCode = %d, want %d", httpErr.StatusCode, status)
		}
	}
}

func TestRevokeSendsTokenTypeHint(t *testing.T) {
	var gotToken, gotHint string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotToken = r.PostForm.Get("token")
		gotHint = r.PostForm.Get("token_type_hint")
	}))
	defer srv.Close()

	client := NewTokenClient(transport.New(discardLogger()), discardLogger())
	if err := client.Revoke(context.Background(), srv.URL, "rt-1", "refresh_token", "client-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if gotToken != "rt-1" || gotHint != "refresh_token" {
		t.Fatalf("revoked token=%q hint=%q", gotToken, gotHint)
	}
}
