// Package export gates document export behind signed approval and strict
// host and payload validation.
//
// Every export attempt walks the same state machine: Requested (a signed,
// short-lived approval token is issued for one case), Approved (the token
// verifies and matches the case), Validated (policy gate, host, and
// payload checks pass), Released (bytes stream to the caller). Any
// failure short-circuits before a single byte is transferred.
package export

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Token verification errors. The service maps all of them to
// POLICY_BLOCKED: approval_required; the distinction exists for logs.
var (
	ErrTokenMalformed  = errors.New("approval token malformed")
	ErrTokenSignature  = errors.New("approval token signature mismatch")
	ErrTokenExpired    = errors.New("approval token expired")
	ErrTokenWrongCase  = errors.New("approval token bound to a different case")
	ErrSigningKeyEmpty = errors.New("signing key is empty")
)

// tokenPayload is the signed claim set. Approval is stateless: the
// signature plus expiry replace any server-side session table.
type tokenPayload struct {
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Signer issues and verifies HMAC-SHA256 approval tokens.
type Signer struct {
	key []byte
	ttl time.Duration

	// now is injectable for expiry tests.
	now func() time.Time
}

// NewSigner creates a signer with the given key and token lifetime.
func NewSigner(key []byte, ttl time.Duration) (*Signer, error) {
	if len(key) == 0 {
		return nil, ErrSigningKeyEmpty
	}
	return &Signer{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue creates a token bound to subject (the case's canonical citation).
func (s *Signer) Issue(subject string) (token string, expiresAt time.Time, err error) {
	issued := s.now()
	expiresAt = issued.Add(s.ttl)

	payload, err := json.Marshal(tokenPayload{
		Subject:   subject,
		IssuedAt:  issued.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to encode token payload: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.sign(encoded), expiresAt, nil
}

// Verify checks the token's structure, signature, expiry, and subject
// binding. The signature is checked first and in constant time.
func (s *Signer) Verify(token, subject string) error {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || sig == "" {
		return ErrTokenMalformed
	}

	if !hmac.Equal([]byte(s.sign(encoded)), []byte(sig)) {
		return ErrTokenSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ErrTokenMalformed
	}
	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ErrTokenMalformed
	}

	if s.now().Unix() >= payload.ExpiresAt {
		return ErrTokenExpired
	}
	if payload.Subject != subject {
		return ErrTokenWrongCase
	}
	return nil
}

func (s *Signer) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
