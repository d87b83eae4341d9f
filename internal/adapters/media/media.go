// Package media talks to the upstream SFU: room administration over HTTP
// and minting of the signed, room-scoped access tokens clients use to
// join.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/strafechat/stargate/internal/core"
	"github.com/strafechat/stargate/internal/domain"
)

// VideoGrant scopes an access token to one room.
type VideoGrant struct {
	RoomJoin     bool   `json:"room_join"`
	Room         string `json:"room"`
	CanPublish   bool   `json:"can_publish"`
	CanSubscribe bool   `json:"can_subscribe"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Video VideoGrant `json:"video"`
}

type Client struct {
	host      string
	apiKey    string
	apiSecret string
	http      *http.Client
}

func NewClient(host, apiKey, apiSecret string) *Client {
	return &Client{
		host:      host,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// MintJoinToken issues a credential granting join/publish/subscribe rights
// scoped to exactly one room for the given ttl.
func (c *Client) MintJoinToken(identity string, room domain.RoomID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.apiKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Video: VideoGrant{
			RoomJoin:     true,
			Room:         string(room),
			CanPublish:   true,
			CanSubscribe: true,
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(c.apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// adminToken signs a short-lived credential for the admin API itself.
func (c *Client) adminToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.apiKey,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(c.apiSecret))
}

func (c *Client) ListRooms(ctx context.Context) ([]core.MediaRoomInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: unexpected status %d", resp.StatusCode)
	}
	var out struct {
		Rooms []core.MediaRoomInfo `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("list rooms: decode: %w", err)
	}
	return out.Rooms, nil
}

func (c *Client) CreateRoom(ctx context.Context, room core.MediaRoomInfo) error {
	body, err := json.Marshal(room)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/rooms", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create room: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) error {
	tok, err := c.adminToken()
	if err != nil {
		return fmt.Errorf("sign admin token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}
