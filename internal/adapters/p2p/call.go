package p2p

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/strafechat/stargate/internal/domain"
	"github.com/strafechat/stargate/pkg/protocol"
)

const peerHungUpReason = "The other party has ended the call."

// Call is one active negotiation between exactly two peers. The first
// arrival is the caller and becomes the impolite peer; the second is the
// recipient and becomes the polite one, which deterministically resolves
// simultaneous-offer collisions.
type Call struct {
	srv  *Server
	room domain.RoomID

	mu        sync.Mutex
	caller    *Peer
	recipient *Peer
	closed    bool
}

func newCall(srv *Server, caller *Peer) *Call {
	return &Call{srv: srv, room: caller.room, caller: caller}
}

func (c *Call) CallerID() domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caller.id
}

// ReplaceCaller swaps in a reconnected caller socket before the recipient
// has joined. The superseded socket is detached first so its teardown
// cannot take the call down.
func (c *Call) ReplaceCaller(p *Peer) {
	c.mu.Lock()
	old := c.caller
	c.caller = p
	c.mu.Unlock()
	if old != nil && old != p {
		old.detach()
		old.conn.Close()
	}
}

// Start finalizes the call: the recipient joins, both peers learn their
// negotiation role and the server waits for both ACKs before reporting
// the call established.
func (c *Call) Start(recipient *Peer) {
	c.mu.Lock()
	c.recipient = recipient
	caller := c.caller
	c.mu.Unlock()

	go func() {
		if err := caller.sendRole(protocol.RoleImpolite); err != nil {
			log.Warn().Err(err).Str("module", "p2p").Str("room", string(c.room)).Msg("caller role ack")
		}
	}()
	go func() {
		if err := recipient.sendRole(protocol.RolePolite); err != nil {
			log.Warn().Err(err).Str("module", "p2p").Str("room", string(c.room)).Msg("recipient role ack")
		}
	}()

	log.Info().Str("module", "p2p").Str("room", string(c.room)).Msg("call established")
}

// Relay forwards an opaque negotiation payload to the other party. The
// payload is never inspected here.
func (c *Call) Relay(from *Peer, payload json.RawMessage) {
	c.mu.Lock()
	var to *Peer
	switch from {
	case c.caller:
		to = c.recipient
	case c.recipient:
		to = c.caller
	}
	c.mu.Unlock()
	if to == nil {
		return
	}
	to.forward(payload)
}

// PeerClosed tears the call down when either socket dies: the remaining
// peer is force-closed and the call leaves the registry.
func (c *Call) PeerClosed(p *Peer) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var other *Peer
	switch p {
	case c.caller:
		other = c.recipient
	case c.recipient:
		other = c.caller
	default:
		// Superseded socket, not a party to the call anymore.
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if other != nil {
		other.terminate(protocol.P2PClosePeerHungUp, peerHungUpReason)
	}
	c.srv.removeCall(c.room, c)
}
