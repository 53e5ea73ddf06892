// Package oidc implements the OAuth2/OIDC wire protocol pieces of the
// SDK: PKCE parameter generation, the token endpoint client, redirect
// resolution, and endpoint discovery.
package oidc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Recommended entropy for the generated OIDC parameters.
const (
	stateBytes    = 16
	nonceBytes    = 16
	verifierBytes = 32
)

// Params holds the per-attempt OIDC request parameters. A fresh set is
// generated at the start of every login and discarded when the flow
// terminates; it is never persisted.
type Params struct {
	State         string
	Nonce         string
	CodeVerifier  string
	CodeChallenge string
}

// NewParams generates state, nonce, and a PKCE verifier/challenge pair.
func NewParams() (Params, error) {
	state, err := RandomString(stateBytes)
	if err != nil {
		return Params{}, err
	}
	nonce, err := RandomString(nonceBytes)
	if err != nil {
		return Params{}, err
	}
	verifier, err := RandomString(verifierBytes)
	if err != nil {
		return Params{}, err
	}

	return Params{
		State:         state,
		Nonce:         nonce,
		CodeVerifier:  verifier,
		CodeChallenge: CodeChallenge(verifier),
	}, nil
}

// RandomString returns byteLen cryptographically secure random bytes
// encoded as unpadded base64url.
func RandomString(byteLen int) (string, error) {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CodeChallenge derives the S256 PKCE challenge for a verifier: the
// unpadded base64url encoding of the SHA-256 digest of its UTF-8 bytes.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
