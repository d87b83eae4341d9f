package app

import (
	"testing"
	"time"
)

func newTestTokenManager(ttl time.Duration) (*TokenManager, *time.Time) {
	m := NewTokenManager(ttl)
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestTokenManagerGrantVerify(t *testing.T) {
	m, _ := newTestTokenManager(5 * time.Minute)

	tok := m.Grant("alice", "alice:bob")
	if tok == "" {
		t.Fatal("Grant returned empty token")
	}
	room, ok := m.Verify("alice", tok)
	if !ok {
		t.Fatal("Verify rejected a fresh token")
	}
	if room != "alice:bob" {
		t.Errorf("room = %q, want %q", room, "alice:bob")
	}
}

func TestTokenManagerGrantReusesLiveToken(t *testing.T) {
	m, _ := newTestTokenManager(5 * time.Minute)

	first := m.Grant("alice", "alice:bob")
	second := m.Grant("alice", "alice:bob")
	if first != second {
		t.Errorf("repeated Grant minted a new token: %q vs %q", first, second)
	}

	other := m.Grant("alice", "alice:carol")
	if other == first {
		t.Error("Grant for a different room reused the token")
	}
}

func TestTokenManagerVerifyWrongUser(t *testing.T) {
	m, _ := newTestTokenManager(5 * time.Minute)

	tok := m.Grant("alice", "alice:bob")
	if _, ok := m.Verify("bob", tok); ok {
		t.Error("Verify accepted a token owned by another user")
	}
}

func TestTokenManagerExpiry(t *testing.T) {
	m, now := newTestTokenManager(5 * time.Minute)

	tok := m.Grant("alice", "alice:bob")
	*now = now.Add(5 * time.Minute)
	if _, ok := m.Verify("alice", tok); ok {
		t.Error("Verify accepted an expired token")
	}

	// A new grant after expiry mints a fresh token.
	if again := m.Grant("alice", "alice:bob"); again == tok {
		t.Error("Grant reused an expired token")
	}
}

func TestTokenManagerRevoke(t *testing.T) {
	m, _ := newTestTokenManager(5 * time.Minute)

	tok := m.Grant("alice", "alice:bob")
	m.Revoke(tok)
	if _, ok := m.Verify("alice", tok); ok {
		t.Error("Verify accepted a revoked token")
	}
	m.Revoke(tok) // safe to repeat
	m.Revoke("no-such-token")
}
