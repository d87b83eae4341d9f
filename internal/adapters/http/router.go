// Package http wires the gin router: the gateway and signaling websocket
// endpoints plus the join endpoints that hand out room credentials.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/strafechat/stargate/internal/adapters/gateway"
	"github.com/strafechat/stargate/internal/adapters/p2p"
	"github.com/strafechat/stargate/internal/app"
	"github.com/strafechat/stargate/internal/config"
	"github.com/strafechat/stargate/internal/core"
)

const version = "1.0.0"

// Deps carries everything the routes need.
type Deps struct {
	Gateway    *gateway.Controller
	P2P        *p2p.Server
	Rooms      *app.RoomManager
	PeerTokens *app.TokenManager
	RoomDir    core.RoomDirectory
	Verifier   Verifier
	Bus        core.EventBus
	Limiter    *JoinRateLimiter

	MediaWSHost   string
	RelayQueueMax int
}

func SetupRouter(cfg *config.Config, d *Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": version,
			"ws":      "/events",
			"portal":  "/portal",
			"p2p":     "/portal/p2p",
		})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ok":          true,
			"connections": d.Gateway.Registry.Count(),
			"calls":       d.P2P.CallCount(),
		})
	})

	r.GET("/events", d.Gateway.HandleEvents)
	r.GET("/portal", d.handlePortal)
	r.GET("/portal/p2p", d.P2P.HandleSignal)

	v1 := r.Group("/v1")
	v1.POST("/rooms/:room_id/join", d.handleRoomJoin)
	v1.POST("/calls/:user_id/join", d.handleCallJoin)

	return r
}
