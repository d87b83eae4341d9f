package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/strafechat/stargate/internal/adapters/relay"
	"github.com/strafechat/stargate/internal/app"
	"github.com/strafechat/stargate/internal/core"
	"github.com/strafechat/stargate/internal/domain"
)

// Verifier resolves a session token to a user record; the gateway shares
// the same contract.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.User, error)
}

var relayUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// authenticate resolves the Authorization header to a user or writes the
// 401 itself.
func (d *Deps) authenticate(c *gin.Context) (domain.User, bool) {
	token := c.GetHeader("Authorization")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return domain.User{}, false
	}
	user, err := d.Verifier.Verify(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return domain.User{}, false
	}
	return user, true
}

// handleRoomJoin is the SFU join endpoint: it provisions the room
// idempotently and answers with a signed, time-boxed join credential.
func (d *Deps) handleRoomJoin(c *gin.Context) {
	user, ok := d.authenticate(c)
	if !ok {
		return
	}
	if !d.Limiter.Allow(user.ID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "Slow down."})
		return
	}

	room := domain.RoomID(c.Param("room_id"))
	space, err := d.RoomDir.RoomSpace(c.Request.Context(), room)
	if err != nil {
		if errors.Is(err, core.ErrUnknownRoom) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Unknown room"})
			return
		}
		log.Error().Err(err).Str("module", "http").Str("room", string(room)).Msg("room lookup")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	member := false
	for _, sid := range user.SpaceIDs {
		if domain.SpaceID(sid) == space {
			member = true
			break
		}
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}

	if err := d.Rooms.EnsureRoom(c.Request.Context(), room); err != nil {
		log.Error().Err(err).Str("module", "http").Str("room", string(room)).Msg("room provisioning")
		c.JSON(http.StatusBadGateway, gin.H{"message": "Media server unavailable"})
		return
	}
	token, err := d.Rooms.IssueToken(c.Request.Context(), user.ID, room, space)
	if err != nil {
		log.Error().Err(err).Str("module", "http").Str("room", string(room)).Msg("token issue")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// handleCallJoin grants the caller a peer join token for a direct call
// with the named user. The same token authorizes the peer-signaling
// IDENTIFY.
func (d *Deps) handleCallJoin(c *gin.Context) {
	user, ok := d.authenticate(c)
	if !ok {
		return
	}
	if !d.Limiter.Allow(user.ID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "Slow down."})
		return
	}

	target := domain.UserID(c.Param("user_id"))
	if target == "" || target == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid call target"})
		return
	}

	room := domain.PairRoomID(user.ID, target)
	token := d.PeerTokens.Grant(user.ID, room)
	c.JSON(http.StatusOK, gin.H{"token": token, "room": room})
}

// handlePortal proxies a client's signaling socket to the upstream SFU.
// The access token must resolve to a known join grant; the query string
// travels upstream unchanged.
func (d *Deps) handlePortal(c *gin.Context) {
	token := c.Query("access_token")
	grant, ok := d.Rooms.Resolve(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	ws, err := relayUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "http").Msg("portal upgrade")
		return
	}

	d.publishVoice(core.EventVoiceJoin, grant)
	r := relay.New(ws, relay.Options{
		MediaWSHost: d.MediaWSHost,
		Query:       c.Request.URL.Query(),
		QueueMax:    d.RelayQueueMax,
		OnClose: func() {
			d.publishVoice(core.EventVoiceLeave, grant)
		},
	})
	r.Run()
}

func (d *Deps) publishVoice(event string, grant app.RoomGrant) {
	ev := core.Event{
		Event: event,
		Users: []domain.UserID{grant.User},
		Data: map[string]any{
			"room":  grant.Room,
			"space": grant.Space,
		},
	}
	if err := d.Bus.Publish(context.Background(), ev); err != nil {
		log.Error().Err(err).Str("module", "http").Str("event", event).Msg("voice event publish")
	}
}
