package app

import (
	"context"
	"errors"
	"testing"

	"github.com/strafechat/stargate/internal/core"
	"github.com/strafechat/stargate/internal/domain"
)

func TestParseSessionTokenRoundTrip(t *testing.T) {
	raw := GenerateSessionToken("user-1", 1700000000000, "s3cret")
	tok, err := ParseSessionToken(raw)
	if err != nil {
		t.Fatalf("ParseSessionToken: %v", err)
	}
	if tok.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", tok.UserID, "user-1")
	}
	if tok.IssuedAt != 1700000000000 {
		t.Errorf("IssuedAt = %d, want %d", tok.IssuedAt, 1700000000000)
	}
	if tok.Secret != "s3cret" {
		t.Errorf("Secret = %q, want %q", tok.Secret, "s3cret")
	}
}

func TestParseSessionTokenMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"two parts", "dXNlcg.MTIz"},
		{"four parts", "dXNlcg.MTIz.c2VjcmV0.ZXh0cmE"},
		{"bad base64 id", "!!!.MTIz.c2VjcmV0"},
		{"bad base64 timestamp", "dXNlcg.!!!.c2VjcmV0"},
		{"non-numeric timestamp", "dXNlcg.bm90YW51bWJlcg.c2VjcmV0"},
		{"bad base64 secret", "dXNlcg.MTIz.!!!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSessionToken(tc.raw); !errors.Is(err, ErrMalformedToken) {
				t.Errorf("ParseSessionToken(%q) error = %v, want ErrMalformedToken", tc.raw, err)
			}
		})
	}
}

type fakeUserStore struct {
	users map[domain.UserID]domain.User
	saved map[domain.UserID]domain.Presence
}

func (s *fakeUserStore) GetUser(_ context.Context, id domain.UserID) (domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, core.ErrUnknownUser
	}
	return u, nil
}

func (s *fakeUserStore) UpdatePresence(_ context.Context, id domain.UserID, p domain.Presence) error {
	if s.saved == nil {
		s.saved = make(map[domain.UserID]domain.Presence)
	}
	s.saved[id] = p
	return nil
}

func TestSessionVerifier(t *testing.T) {
	store := &fakeUserStore{users: map[domain.UserID]domain.User{
		"alice": {ID: "alice", Secret: "good", LastPassReset: 1000},
	}}
	v := SessionVerifier{Users: store}
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		user, err := v.Verify(ctx, GenerateSessionToken("alice", 2000, "good"))
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if user.ID != "alice" {
			t.Errorf("user.ID = %q, want %q", user.ID, "alice")
		}
	})

	t.Run("issued exactly at reset still valid", func(t *testing.T) {
		if _, err := v.Verify(ctx, GenerateSessionToken("alice", 1000, "good")); err != nil {
			t.Errorf("Verify: %v", err)
		}
	})

	t.Run("secret mismatch", func(t *testing.T) {
		_, err := v.Verify(ctx, GenerateSessionToken("alice", 2000, "stale"))
		if !errors.Is(err, ErrSecretMismatch) {
			t.Errorf("Verify error = %v, want ErrSecretMismatch", err)
		}
	})

	t.Run("issued before credential reset", func(t *testing.T) {
		_, err := v.Verify(ctx, GenerateSessionToken("alice", 999, "good"))
		if !errors.Is(err, ErrCredentialReset) {
			t.Errorf("Verify error = %v, want ErrCredentialReset", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := v.Verify(ctx, GenerateSessionToken("ghost", 2000, "good"))
		if !errors.Is(err, core.ErrUnknownUser) {
			t.Errorf("Verify error = %v, want ErrUnknownUser", err)
		}
	})
}
