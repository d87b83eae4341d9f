package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strafechat/stargate/internal/core"
	"github.com/strafechat/stargate/internal/domain"
)

// RoomGrant is the association behind one issued SFU join token.
type RoomGrant struct {
	User  domain.UserID
	Room  domain.RoomID
	Space domain.SpaceID
}

type roomGrantEntry struct {
	RoomGrant
	expiresAt time.Time
}

// RoomManager provisions SFU rooms on demand and hands out scoped join
// credentials. Token associations are kept so the relay endpoint can map
// an access token back to (user, room, space).
//
// Expired associations are pruned lazily when touched; there is no
// background sweep, so a token minted right before a restart may linger
// until its entry is next read.
type RoomManager struct {
	admin  core.MediaAdmin
	minter core.AccessMinter

	ttl             time.Duration
	emptyTimeout    time.Duration
	maxParticipants int

	mu     sync.Mutex
	tokens map[string]roomGrantEntry
	now    func() time.Time
}

func NewRoomManager(admin core.MediaAdmin, minter core.AccessMinter, ttl, emptyTimeout time.Duration, maxParticipants int) *RoomManager {
	return &RoomManager{
		admin:           admin,
		minter:          minter,
		ttl:             ttl,
		emptyTimeout:    emptyTimeout,
		maxParticipants: maxParticipants,
		tokens:          make(map[string]roomGrantEntry),
		now:             time.Now,
	}
}

// EnsureRoom idempotently creates room upstream. Existing rooms are left
// untouched.
func (m *RoomManager) EnsureRoom(ctx context.Context, room domain.RoomID) error {
	rooms, err := m.admin.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	for _, r := range rooms {
		if r.Name == string(room) {
			return nil
		}
	}
	info := core.MediaRoomInfo{
		Name:            string(room),
		EmptyTimeout:    int(m.emptyTimeout.Seconds()),
		MaxParticipants: m.maxParticipants,
	}
	if err := m.admin.CreateRoom(ctx, info); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	log.Info().Str("module", "app.rooms").Str("room", string(room)).Msg("provisioned media room")
	return nil
}

// IssueToken mints a join credential scoped to room and records the
// association. Calling again with the same (user, room, space) before
// expiry returns the recorded token instead of minting a second one.
func (m *RoomManager) IssueToken(ctx context.Context, user domain.UserID, room domain.RoomID, space domain.SpaceID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for tok, e := range m.tokens {
		if !e.expiresAt.After(m.now()) {
			delete(m.tokens, tok)
			continue
		}
		if e.User == user && e.Room == room && e.Space == space {
			return tok, nil
		}
	}

	tok, err := m.minter.MintJoinToken(string(user), room, m.ttl)
	if err != nil {
		return "", fmt.Errorf("mint join token: %w", err)
	}
	m.tokens[tok] = roomGrantEntry{
		RoomGrant: RoomGrant{User: user, Room: room, Space: space},
		expiresAt: m.now().Add(m.ttl),
	}
	log.Info().Str("module", "app.rooms").Str("user", string(user)).Str("room", string(room)).Msg("issued media join token")
	return tok, nil
}

// Resolve maps an access token back to its grant, reporting false for
// unknown or expired tokens.
func (m *RoomManager) Resolve(token string) (RoomGrant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tokens[token]
	if !ok {
		return RoomGrant{}, false
	}
	if !e.expiresAt.After(m.now()) {
		delete(m.tokens, token)
		return RoomGrant{}, false
	}
	return e.RoomGrant, true
}
