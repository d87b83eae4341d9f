// Package p2p brokers direct two-party WebRTC calls: it authorizes peers
// with join tokens, assigns perfect-negotiation roles and relays
// offer/answer/ICE payloads between exactly two sockets.
package p2p

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/strafechat/stargate/internal/adapters/wsconn"
	"github.com/strafechat/stargate/internal/app"
	"github.com/strafechat/stargate/internal/core"
	"github.com/strafechat/stargate/internal/domain"
)

type Server struct {
	Tokens     *app.TokenManager
	Bus        core.EventBus
	AckTimeout time.Duration

	mu    sync.Mutex
	calls map[domain.RoomID]*Call
}

func NewServer(tokens *app.TokenManager, bus core.EventBus, ackTimeout time.Duration) *Server {
	return &Server{
		Tokens:     tokens,
		Bus:        bus,
		AckTimeout: ackTimeout,
		calls:      make(map[domain.RoomID]*Call),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the socket and runs the peer protocol until the
// connection drops. Authorization happens post-connect via IDENTIFY.
func (s *Server) HandleSignal(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "p2p").Msg("ws upgrade")
		return
	}
	p := newPeer(s, wsconn.New(ws))
	go p.conn.WritePump()
	p.readLoop()
}

// admit runs the call admission algorithm for a freshly identified peer.
func (s *Server) admit(p *Peer) {
	s.mu.Lock()
	call, ok := s.calls[p.room]
	if !ok {
		call = newCall(s, p)
		s.calls[p.room] = call
		s.mu.Unlock()
		p.attach(call)
		s.invite(p)
		log.Info().Str("module", "p2p").Str("room", string(p.room)).Str("caller", string(p.id)).Msg("call created, waiting for recipient")
		return
	}
	s.mu.Unlock()

	if call.CallerID() == p.id {
		// Reconnect before the callee joined: replace, don't duplicate.
		call.ReplaceCaller(p)
		p.attach(call)
		log.Info().Str("module", "p2p").Str("room", string(p.room)).Msg("caller reconnected")
		return
	}

	p.attach(call)
	call.Start(p)
}

// invite notifies the intended counterpart out-of-band so they can
// connect: a fresh join token travels on the event bus.
func (s *Server) invite(caller *Peer) {
	friend := domain.PairCounterpart(caller.room, caller.id)
	if friend == "" {
		return
	}
	token := s.Tokens.Grant(friend, caller.room)
	ev := core.Event{
		Event: core.EventCallInit,
		Users: []domain.UserID{friend},
		Data:  map[string]any{"caller": caller.id, "token": token},
	}
	if err := s.Bus.Publish(context.Background(), ev); err != nil {
		log.Error().Err(err).Str("module", "p2p").Str("user", string(friend)).Msg("call invite publish")
	}
}

func (s *Server) removeCall(room domain.RoomID, call *Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.calls[room]; ok && cur == call {
		delete(s.calls, room)
		log.Info().Str("module", "p2p").Str("room", string(room)).Msg("call removed")
	}
}

// CallCount reports the number of active calls.
func (s *Server) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
