package app

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/strafechat/stargate/internal/domain"
)

type grant struct {
	user      domain.UserID
	room      domain.RoomID
	createdAt time.Time
	expiresAt time.Time
	expiry    *time.Timer
}

// TokenManager issues short-lived join tokens for direct peer-to-peer
// calls. At most one live token exists per (user, room) pair; granting
// again before expiry returns the existing token instead of minting a
// duplicate.
type TokenManager struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]*grant
	byUser map[domain.UserID][]string
	now    func() time.Time
}

func NewTokenManager(ttl time.Duration) *TokenManager {
	return &TokenManager{
		ttl:    ttl,
		tokens: make(map[string]*grant),
		byUser: make(map[domain.UserID][]string),
		now:    time.Now,
	}
}

// Grant returns a token authorizing user to join room, reusing a live one
// when present.
func (m *TokenManager) Grant(user domain.UserID, room domain.RoomID) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tok := range m.byUser[user] {
		g, ok := m.tokens[tok]
		if !ok {
			continue
		}
		if g.room == room && g.expiresAt.After(m.now()) {
			return tok
		}
	}

	tok := strings.ReplaceAll(uuid.NewString(), "-", "")
	g := &grant{
		user:      user,
		room:      room,
		createdAt: m.now(),
		expiresAt: m.now().Add(m.ttl),
	}
	g.expiry = time.AfterFunc(m.ttl, func() { m.expire(tok) })
	m.tokens[tok] = g
	m.byUser[user] = append(m.byUser[user], tok)
	log.Info().Str("module", "app.tokens").Str("user", string(user)).Str("room", string(room)).Msg("granted join token")
	return tok
}

// Verify checks that token belongs to user and is still live, returning
// the room it is scoped to.
func (m *TokenManager) Verify(user domain.UserID, token string) (domain.RoomID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.tokens[token]
	if !ok {
		return "", false
	}
	if g.user != user || !g.expiresAt.After(m.now()) {
		return "", false
	}
	return g.room, true
}

// Revoke drops a token ahead of its expiry. Safe to call for unknown or
// already-expired tokens.
func (m *TokenManager) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(token)
}

func (m *TokenManager) expire(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(token)
}

func (m *TokenManager) remove(token string) {
	g, ok := m.tokens[token]
	if !ok {
		return
	}
	g.expiry.Stop()
	delete(m.tokens, token)
	rest := m.byUser[g.user][:0]
	for _, t := range m.byUser[g.user] {
		if t != token {
			rest = append(rest, t)
		}
	}
	if len(rest) == 0 {
		delete(m.byUser, g.user)
	} else {
		m.byUser[g.user] = rest
	}
}
