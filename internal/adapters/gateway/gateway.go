// Package gateway implements the presence/heartbeat wire protocol: one
// state machine per socket, HELLO on connect, IDENTIFY binding the
// connection to a user, heartbeat-timeout disconnect detection.
package gateway

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
	"github.com/strafechat/stargate/internal/domain"
	"github.com/strafechat/stargate/pkg/protocol"
)

const timedOutReason = "You couldn't keep up with strafe, please try reconnecting."

// Verifier resolves a session token to a user record.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.User, error)
}

type Controller struct {
	Registry *app.Registry
	Verifier Verifier
	Presence *app.Broadcaster

	HeartbeatInterval time.Duration
	HeartbeatGrace    time.Duration
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type sessionState int

const (
	stateConnected sessionState = iota
	stateIdentified
	stateClosed
)

// session is the per-socket state machine. The read loop is the only
// goroutine mutating it apart from the inactivity timer, so a mutex over
// state transitions is enough.
type session struct {
	ctl  *Controller
	conn *wsconn.Conn

	mu    sync.Mutex
	state sessionState
	timer *time.Timer
	user  *domain.User
}

func (ctl *Controller) HandleEvents(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("ws upgrade")
		return
	}

	s := &session{ctl: ctl, conn: wsconn.New(ws)}
	s.timer = time.AfterFunc(ctl.deadline(), s.onTimeout)

	go s.conn.WritePump()

	_ = s.conn.TrySend(protocol.Marshal(protocol.OpHello, protocol.HelloData{
		HeartbeatInterval: ctl.HeartbeatInterval.Milliseconds(),
	}))

	s.readLoop()
}

func (ctl *Controller) deadline() time.Duration {
	return ctl.HeartbeatInterval + ctl.HeartbeatGrace
}

func (s *session) readLoop() {
	ctx := context.Background()
	defer s.teardown()
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := protocol.Decode(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "gateway").Msg("malformed frame")
			s.conn.Kick(protocol.CloseProtocolError, "Malformed frame.")
			return
		}
		s.dispatch(ctx, env)
	}
}

func (s *session) dispatch(ctx context.Context, env protocol.Envelope) {
	switch env.Op {
	case protocol.OpHeartbeat:
		s.handleHeartbeat()
	case protocol.OpIdentify:
		s.handleIdentify(ctx, env)
	case protocol.OpPresenceUpdate:
		s.handlePresenceUpdate(ctx, env)
	default:
		log.Warn().Int("op", env.Op).Str("module", "gateway").Msg("unknown op")
	}
}

func (s *session) handleHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	s.timer.Reset(s.ctl.deadline())
	_ = s.conn.TrySend(protocol.Marshal(protocol.OpHeartbeatAck, nil))
}

func (s *session) handleIdentify(ctx context.Context, env protocol.Envelope) {
	s.mu.Lock()
	if s.state != stateConnected {
		s.mu.Unlock()
		log.Warn().Str("module", "gateway").Msg("identify in wrong state, ignoring")
		return
	}
	s.mu.Unlock()

	var data protocol.IdentifyData
	if err := protocol.Decode(env.Data, &data); err != nil {
		s.conn.Kick(protocol.CloseProtocolError, "Malformed frame.")
		return
	}

	user, err := s.ctl.Verifier.Verify(ctx, data.Token)
	if err != nil {
		log.Info().Err(err).Str("module", "gateway").Msg("identify rejected")
		_ = s.conn.SendNow(protocol.Marshal(protocol.OpInvalidSession, nil))
		s.conn.Kick(protocol.CloseInvalidSession, err.Error())
		return
	}

	user.Presence.Online = true
	if user.Presence.Status == "" {
		user.Presence.Status = domain.StatusOnline
	}

	s.mu.Lock()
	if s.state == stateClosed {
		// Timed out while the token lookup was in flight.
		s.mu.Unlock()
		return
	}
	s.state = stateIdentified
	s.user = &user
	s.timer.Stop()
	s.timer = time.AfterFunc(s.ctl.deadline(), s.onTimeout)
	// Bind under the same hold that flips the state, so a concurrent
	// teardown either sees stateConnected or a bound connection.
	s.ctl.Registry.Bind(user.ID, s.conn)
	s.mu.Unlock()

	if err := s.ctl.Presence.Publish(ctx, user.ID, user.Presence); err != nil {
		log.Error().Err(err).Str("module", "gateway").Str("user", string(user.ID)).Msg("presence publish")
	}

	// teardown may have finished between the unlock and the publish
	// above, leaving the user stuck online; re-check and undo.
	s.mu.Lock()
	lost := s.state == stateClosed
	s.mu.Unlock()
	if lost {
		offline := user.Presence
		offline.Online = false
		if err := s.ctl.Presence.Publish(context.Background(), user.ID, offline); err != nil {
			log.Error().Err(err).Str("module", "gateway").Str("user", string(user.ID)).Msg("offline presence publish")
		}
		return
	}

	_ = s.conn.TrySend(protocol.MarshalEvent(protocol.OpDispatch, "READY", user.Public()))
	log.Info().Str("module", "gateway").Str("user", string(user.ID)).Msg("identified")
}

func (s *session) handlePresenceUpdate(ctx context.Context, env protocol.Envelope) {
	s.mu.Lock()
	if s.state != stateIdentified {
		s.mu.Unlock()
		return
	}
	var upd domain.Presence
	if err := protocol.Decode(env.Data, &upd); err != nil {
		s.mu.Unlock()
		s.conn.Kick(protocol.CloseProtocolError, "Malformed frame.")
		return
	}
	upd.Online = true
	s.user.Presence = s.user.Presence.Merge(upd)
	user := *s.user
	s.mu.Unlock()

	if err := s.ctl.Presence.Publish(ctx, user.ID, user.Presence); err != nil {
		log.Error().Err(err).Str("module", "gateway").Str("user", string(user.ID)).Msg("presence publish")
	}
}

// onTimeout fires when the heartbeat deadline lapses: the connection is
// closed with the timeout code and, if identified, the user goes offline.
func (s *session) onTimeout() {
	log.Info().Str("module", "gateway").Msg("heartbeat timeout")
	s.conn.Kick(protocol.CloseSessionTimedOut, timedOutReason)
	s.teardown()
}

// teardown is the single exit path for a session. It is idempotent: the
// timer callback, the read loop and Kick may all race into it.
func (s *session) teardown() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	wasIdentified := s.state == stateIdentified
	s.state = stateClosed
	s.timer.Stop()
	var user domain.User
	if wasIdentified {
		user = *s.user
	}
	s.mu.Unlock()

	s.conn.Close()

	if wasIdentified {
		ctx := context.Background()
		s.ctl.Registry.Unbind(user.ID, s.conn)
		offline := user.Presence
		offline.Online = false
		if err := s.ctl.Presence.Publish(ctx, user.ID, offline); err != nil {
			log.Error().Err(err).Str("module", "gateway").Str("user", string(user.ID)).Msg("offline presence publish")
		}
		log.Info().Str("module", "gateway").Str("user", string(user.ID)).Msg("session closed")
	}
}
