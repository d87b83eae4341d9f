// Package protocol defines the JSON wire protocol spoken on the gateway
// and peer-signaling sockets. Frames are text messages shaped
// {"op": <int>, "data": <any>, "event"?: <string>}.
package protocol

import (
	"encoding/json"

	"github.com/strafechat/stargate/internal/domain"
)

// Gateway op codes.
const (
	OpDispatch       = 0
	OpHeartbeat      = 1
	OpIdentify       = 2
	OpPresenceUpdate = 3
	OpHello          = 10
	OpHeartbeatAck   = 11
	OpInvalidSession = 12
)

// Gateway close codes. Clients treat 4008 as retry-worthy and 4004 as an
// authorization failure.
const (
	CloseProtocolError   = 4000
	CloseInvalidSession  = 4004
	CloseSessionTimedOut = 4008
)

// Peer-signaling op codes (independent numbering).
const (
	P2POpIdentify    = 0
	P2POpAck         = 1
	P2POpSettings    = 2
	P2POpNegotiation = 3
	P2POpError       = 20
)

// Peer-signaling close codes.
const (
	P2PCloseInvalidJSON = 4000
	P2PCloseInvalidData = 4001
	P2PCloseForbidden   = 4003
	P2PClosePeerHungUp  = 4014
)

// Envelope is the frame container. Data stays raw until the op is known.
type Envelope struct {
	Op    int             `json:"op"`
	Data  json.RawMessage `json:"data"`
	Event string          `json:"event,omitempty"`
}

type outEnvelope struct {
	Op    int    `json:"op"`
	Data  any    `json:"data"`
	Event string `json:"event,omitempty"`
}

// Marshal builds an outbound frame. Payloads are our own types, so a
// marshal failure is a programming error.
func Marshal(op int, data any) []byte {
	b, err := json.Marshal(outEnvelope{Op: op, Data: data})
	if err != nil {
		panic(err)
	}
	return b
}

// MarshalEvent builds a DISPATCH-style frame carrying an event name.
func MarshalEvent(op int, event string, data any) []byte {
	b, err := json.Marshal(outEnvelope{Op: op, Data: data, Event: event})
	if err != nil {
		panic(err)
	}
	return b
}

// Decode unmarshals a frame or payload. A missing payload decodes as the
// zero value.
func Decode(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

// HelloData announces the heartbeat cadence in milliseconds.
type HelloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type IdentifyData struct {
	Token string `json:"token"`
}

// PresencePayload is the fan-out shape friends receive.
type PresencePayload struct {
	domain.Presence
	UserID domain.UserID `json:"user_id"`
}

// P2PIdentifyData authorizes a peer-signaling socket post-connect.
type P2PIdentifyData struct {
	Token string        `json:"token"`
	ID    domain.UserID `json:"id"`
}

type AckData struct {
	ID int `json:"id"`
}

// SettingsData assigns a negotiation role. The id correlates the frame
// with the peer's ACK.
type SettingsData struct {
	Role    string `json:"role"`
	Setting string `json:"setting"`
	ID      int    `json:"id"`
}

// Negotiation roles, per the WebRTC perfect-negotiation convention.
const (
	RolePolite   = "polite"
	RoleImpolite = "impolite"
)

type ErrorData struct {
	Message string `json:"message"`
}
