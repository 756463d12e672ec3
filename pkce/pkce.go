// Package pkce generates and verifies RFC 7636 proof-key challenges for the
// OAuth authorization-code flow.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Challenge methods
const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// Challenge holds a verifier/challenge pair for one authorization attempt.
// The verifier stays server-side (in the pending transaction) until the
// token exchange; only the challenge travels in the authorization URL.
type Challenge struct {
	Verifier  string `json:"verifier"`
	Challenge string `json:"challenge"`
	Method    string `json:"method"`
}

// Generate creates a fresh challenge pair for the given method.
func Generate(method string) (*Challenge, error) {
	verifier, err := generateVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	var challenge string
	switch method {
	case MethodS256:
		challenge = s256(verifier)
	case MethodPlain:
		challenge = verifier
	default:
		return nil, fmt.Errorf("unsupported PKCE method: %s", method)
	}

	return &Challenge{
		Verifier:  verifier,
		Challenge: challenge,
		Method:    method,
	}, nil
}

// generateVerifier returns a 43-character base64url verifier from 32 random
// bytes, the RFC 7636 minimum length.
func generateVerifier() (string, error) {
	data := make([]byte, 32)
	if _, err := rand.Read(data); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func s256(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Verify reports whether verifier matches challenge under the given method.
func Verify(verifier, challenge, method string) bool {
	var expected string
	switch method {
	case MethodS256:
		expected = s256(verifier)
	case MethodPlain:
		expected = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}

// AuthParams returns the authorization-URL parameters for the challenge.
func (c *Challenge) AuthParams() map[string]string {
	if c == nil {
		return nil
	}
	return map[string]string{
		"code_challenge":        c.Challenge,
		"code_challenge_method": c.Method,
	}
}

// TokenParams returns the token-exchange parameters for the challenge.
func (c *Challenge) TokenParams() map[string]string {
	if c == nil {
		return nil
	}
	return map[string]string{
		"code_verifier": c.Verifier,
	}
}
