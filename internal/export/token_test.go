package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner([]byte("test-signing-key"), 10*time.Minute)
	require.NoError(t, err)
	return s
}

func TestNewSignerRejectsEmptyKey(t *testing.T) {
	_, err := NewSigner(nil, time.Minute)
	assert.ErrorIs(t, err, ErrSigningKeyEmpty)
}

func TestIssueAndVerify(t *testing.T) {
	s := newTestSigner(t)

	token, expiresAt, err := s.Issue("2024 fc 123")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)

	assert.NoError(t, s.Verify(token, "2024 fc 123"))
}

func TestVerifyWrongSubject(t *testing.T) {
	s := newTestSigner(t)
	token, _, err := s.Issue("2024 fc 123")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Verify(token, "2024 fc 999"), ErrTokenWrongCase)
}

func TestVerifyExpired(t *testing.T) {
	s := newTestSigner(t)
	issued := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }

	token, _, err := s.Issue("2024 fc 123")
	require.NoError(t, err)

	// Still valid one second before expiry.
	s.now = func() time.Time { return issued.Add(10*time.Minute - time.Second) }
	assert.NoError(t, s.Verify(token, "2024 fc 123"))

	// Dead at the expiry instant.
	s.now = func() time.Time { return issued.Add(10 * time.Minute) }
	assert.ErrorIs(t, s.Verify(token, "2024 fc 123"), ErrTokenExpired)
}

func TestVerifyTamperedToken(t *testing.T) {
	s := newTestSigner(t)
	token, _, err := s.Issue("2024 fc 123")
	require.NoError(t, err)

	// Flip a character in the payload half; the signature no longer holds.
	encoded, sig, ok := strings.Cut(token, ".")
	require.True(t, ok)
	tampered := encoded[:len(encoded)-1] + "A" + "." + sig
	if tampered == token {
		tampered = encoded[:len(encoded)-1] + "B" + "." + sig
	}
	assert.ErrorIs(t, s.Verify(tampered, "2024 fc 123"), ErrTokenSignature)
}

func TestVerifyForeignKey(t *testing.T) {
	s := newTestSigner(t)
	other, err := NewSigner([]byte("a-different-key"), 10*time.Minute)
	require.NoError(t, err)

	token, _, err := other.Issue("2024 fc 123")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Verify(token, "2024 fc 123"), ErrTokenSignature)
}

func TestVerifyMalformed(t *testing.T) {
	s := newTestSigner(t)
	for _, token := range []string{"", "no-dot", ".", "a.", ".b"} {
		assert.ErrorIs(t, s.Verify(token, "2024 fc 123"), ErrTokenMalformed, "token %q", token)
	}
}
