// Package core declares the narrow interfaces through which the real-time
// layer talks to the rest of the platform. The CRUD API, the persistent
// store and the media server live behind these; nothing here implements
// business logic.
package core

import (
	"context"
	"time"

	"github.com/strafechat/stargate/internal/domain"
)

// UserStore is the synchronous lookup into the platform user records.
type UserStore interface {
	// GetUser returns the user record for id, or ErrUnknownUser.
	GetUser(ctx context.Context, id domain.UserID) (domain.User, error)
	// UpdatePresence persists a presence change for id.
	UpdatePresence(ctx context.Context, id domain.UserID, p domain.Presence) error
}

// FriendDirectory resolves the accepted friend set of a user, both
// directions of the relationship included.
type FriendDirectory interface {
	Friends(ctx context.Context, id domain.UserID) ([]domain.UserID, error)
}

// RoomDirectory answers which space a room belongs to.
type RoomDirectory interface {
	// RoomSpace returns the owning space of a room, or ErrUnknownRoom.
	RoomSpace(ctx context.Context, room domain.RoomID) (domain.SpaceID, error)
}

// Event is a fan-out notification for the REST/notification layer.
// Delivery is at-most-once.
type Event struct {
	Event string          `json:"event"`
	Users []domain.UserID `json:"users"`
	Data  map[string]any  `json:"data"`
}

// Event names published by this layer.
const (
	EventVoiceJoin  = "voice_join"
	EventVoiceLeave = "voice_leave"
	EventCallInit   = "call_init"
)

// EventBus is publish-only; consumers are external.
type EventBus interface {
	Publish(ctx context.Context, ev Event) error
}

// MediaRoomInfo describes one room known to the media server.
type MediaRoomInfo struct {
	Name            string `json:"name"`
	EmptyTimeout    int    `json:"empty_timeout"`
	MaxParticipants int    `json:"max_participants"`
}

// MediaAdmin is the administrative API of the upstream SFU.
type MediaAdmin interface {
	ListRooms(ctx context.Context) ([]MediaRoomInfo, error)
	CreateRoom(ctx context.Context, room MediaRoomInfo) error
}

// AccessMinter issues signed, time-boxed credentials for joining exactly
// one media room.
type AccessMinter interface {
	MintJoinToken(identity string, room domain.RoomID, ttl time.Duration) (string, error)
}
