package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/strafechat/stargate/internal/core"
	"github.com/strafechat/stargate/internal/domain"
)

var (
	ErrMalformedToken  = errors.New("malformed session token")
	ErrSecretMismatch  = errors.New("session secret revoked")
	ErrCredentialReset = errors.New("session predates credential reset")
)

// SessionToken is the decoded form of a session credential:
// base64url(user id) "." base64url(unix ms) "." base64url(secret).
type SessionToken struct {
	UserID   domain.UserID
	IssuedAt int64
	Secret   string
}

func ParseSessionToken(raw string) (SessionToken, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return SessionToken{}, ErrMalformedToken
	}
	id, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return SessionToken{}, ErrMalformedToken
	}
	tsRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return SessionToken{}, ErrMalformedToken
	}
	ts, err := strconv.ParseInt(string(tsRaw), 10, 64)
	if err != nil {
		return SessionToken{}, ErrMalformedToken
	}
	secret, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return SessionToken{}, ErrMalformedToken
	}
	return SessionToken{UserID: domain.UserID(id), IssuedAt: ts, Secret: string(secret)}, nil
}

// GenerateSessionToken mints the wire form of a session credential. The
// issuing side lives in the REST API; this exists for operators and tests.
func GenerateSessionToken(id domain.UserID, issuedAt int64, secret string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(id)) + "." +
		enc.EncodeToString([]byte(strconv.FormatInt(issuedAt, 10))) + "." +
		enc.EncodeToString([]byte(secret))
}

// SessionVerifier implements the "verify session token -> user record"
// contract against the external user store.
type SessionVerifier struct {
	Users core.UserStore
}

// Verify resolves a raw session token to a user record. A token is rejected
// when its embedded secret no longer matches the stored one, or when it was
// issued before the user's last credential reset, even if the user id is
// valid.
func (v SessionVerifier) Verify(ctx context.Context, raw string) (domain.User, error) {
	tok, err := ParseSessionToken(raw)
	if err != nil {
		return domain.User{}, err
	}
	user, err := v.Users.GetUser(ctx, tok.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("session lookup: %w", err)
	}
	if user.Secret != tok.Secret {
		return domain.User{}, ErrSecretMismatch
	}
	if tok.IssuedAt < user.LastPassReset {
		return domain.User{}, ErrCredentialReset
	}
	return user, nil
}
