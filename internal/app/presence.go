package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/strafechat/stargate/internal/core"
	"github.com/strafechat/stargate/internal/domain"
	"github.com/strafechat/stargate/pkg/protocol"
)

// Broadcaster persists presence changes and fans them out to the user's
// friends over their live gateway connections.
//
// Fan-out only reaches friends connected to this process. Friends on
// another instance would need a pub/sub delivery path that the platform
// does not define yet.
type Broadcaster struct {
	Registry *Registry
	Users    core.UserStore
	Friends  core.FriendDirectory
}

// Publish writes the new presence to the store and notifies every locally
// connected friend. Delivery is best effort: a friend with a full send
// buffer misses the update.
func (b *Broadcaster) Publish(ctx context.Context, id domain.UserID, p domain.Presence) error {
	if err := b.Users.UpdatePresence(ctx, id, p); err != nil {
		return fmt.Errorf("persist presence: %w", err)
	}
	b.Fanout(ctx, id, p)
	return nil
}

// Fanout delivers the presence payload without touching the store.
func (b *Broadcaster) Fanout(ctx context.Context, id domain.UserID, p domain.Presence) {
	friends, err := b.Friends.Friends(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("user", string(id)).Msg("resolve friends")
		return
	}
	frame := protocol.Marshal(protocol.OpPresenceUpdate, protocol.PresencePayload{Presence: p, UserID: id})
	for _, friend := range friends {
		sink, ok := b.Registry.Get(friend)
		if !ok {
			continue
		}
		if err := sink.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.presence").Str("friend", string(friend)).Msg("presence delivery dropped")
		}
	}
}
