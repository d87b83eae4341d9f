package p2p

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strafechat/stargate/internal/adapters/wsconn"
	"github.com/strafechat/stargate/internal/domain"
	"github.com/strafechat/stargate/pkg/protocol"
)

var errAckTimeout = errors.New("ack timed out")

// Peer is one side of a direct call. The read loop is the sole mutator of
// identity fields; the mutex covers what the call object touches from the
// other side.
type Peer struct {
	srv  *Server
	conn *wsconn.Conn

	mu         sync.Mutex
	id         domain.UserID
	room       domain.RoomID
	role       string
	identified bool
	call       *Call
	closed     bool

	jobs    map[int]chan struct{}
	nextJob int
}

func newPeer(srv *Server, conn *wsconn.Conn) *Peer {
	return &Peer{srv: srv, conn: conn, jobs: make(map[int]chan struct{})}
}

func (p *Peer) readLoop() {
	defer p.teardown()
	for {
		data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			p.terminate(protocol.P2PCloseInvalidJSON, "400: Invalid JSON")
			return
		}
		p.dispatch(env)
	}
}

func (p *Peer) dispatch(env protocol.Envelope) {
	switch env.Op {
	case protocol.P2POpIdentify:
		p.handleIdentify(env)
	case protocol.P2POpAck:
		p.handleAck(env)
	case protocol.P2POpNegotiation:
		p.handleNegotiation(env)
	default:
		_ = p.conn.TrySend(protocol.Marshal(protocol.P2POpError, protocol.ErrorData{Message: "Invalid OP code."}))
	}
}

func (p *Peer) handleIdentify(env protocol.Envelope) {
	var data protocol.P2PIdentifyData
	if err := protocol.Decode(env.Data, &data); err != nil || data.Token == "" || data.ID == "" {
		p.terminate(protocol.P2PCloseInvalidData, "Invalid data provided or missing fields.")
		return
	}

	p.mu.Lock()
	if p.identified {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	room, ok := p.srv.Tokens.Verify(data.ID, data.Token)
	if !ok {
		p.terminate(protocol.P2PCloseForbidden, "You are not allowed to perform this action.")
		return
	}

	p.mu.Lock()
	p.id = data.ID
	p.room = room
	p.identified = true
	p.mu.Unlock()

	log.Info().Str("module", "p2p").Str("user", string(data.ID)).Str("room", string(room)).Msg("peer identified")
	p.srv.admit(p)
}

func (p *Peer) handleAck(env protocol.Envelope) {
	var data protocol.AckData
	if err := protocol.Decode(env.Data, &data); err != nil {
		return
	}
	p.mu.Lock()
	ch, ok := p.jobs[data.ID]
	if ok {
		delete(p.jobs, data.ID)
	}
	p.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (p *Peer) handleNegotiation(env protocol.Envelope) {
	p.mu.Lock()
	call := p.call
	p.mu.Unlock()
	if call == nil {
		return
	}
	call.Relay(p, env.Data)
}

// sendRole assigns the negotiation role and waits for the peer's ACK. The
// wait is bounded; a silent peer does not wedge call setup forever.
func (p *Peer) sendRole(role string) error {
	p.mu.Lock()
	p.role = role
	id := p.nextJob
	p.nextJob++
	ch := make(chan struct{})
	p.jobs[id] = ch
	p.mu.Unlock()

	frame := protocol.Marshal(protocol.P2POpSettings, protocol.SettingsData{
		Role:    role,
		Setting: "role",
		ID:      id,
	})
	if err := p.conn.TrySend(frame); err != nil {
		return err
	}

	select {
	case <-ch:
		return nil
	case <-time.After(p.srv.AckTimeout):
		p.mu.Lock()
		delete(p.jobs, id)
		p.mu.Unlock()
		return errAckTimeout
	}
}

func (p *Peer) forward(payload json.RawMessage) {
	_ = p.conn.TrySend(protocol.Marshal(protocol.P2POpNegotiation, payload))
}

func (p *Peer) attach(call *Call) {
	p.mu.Lock()
	p.call = call
	p.mu.Unlock()
}

func (p *Peer) detach() {
	p.mu.Lock()
	p.call = nil
	p.mu.Unlock()
}

func (p *Peer) terminate(code int, reason string) {
	p.conn.Kick(code, reason)
}

// teardown runs exactly once when the socket dies; an active call takes
// the other party down with it.
func (p *Peer) teardown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	call := p.call
	p.mu.Unlock()

	p.conn.Close()
	if call != nil {
		call.PeerClosed(p)
	}
}
