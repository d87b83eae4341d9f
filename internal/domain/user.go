// Package domain contains entities without logic, just meta-data.
package domain

type UserID string

// Presence status values understood by clients.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusIdle    = "idle"
	StatusDND     = "dnd"
)

type Presence struct {
	Online     bool   `json:"online"`
	Status     string `json:"status"`
	StatusText string `json:"status_text,omitempty"`
}

// Merge overlays the fields of upd onto p and returns the result. Empty
// strings in upd keep the current value.
func (p Presence) Merge(upd Presence) Presence {
	out := p
	out.Online = upd.Online
	if upd.Status != "" {
		out.Status = upd.Status
	}
	if upd.StatusText != "" {
		out.StatusText = upd.StatusText
	}
	return out
}

// User is the projection of the platform user record the gateway needs.
// The authoritative copy lives in the external store; only Presence is
// ever written back from here.
type User struct {
	ID            UserID   `json:"id"`
	Username      string   `json:"username"`
	Discriminator string   `json:"discriminator"`
	GlobalName    string   `json:"global_name,omitempty"`
	Avatar        string   `json:"avatar,omitempty"`
	Password      string   `json:"password,omitempty"`
	Secret        string   `json:"secret,omitempty"`
	LastPassReset int64    `json:"last_pass_reset,omitempty"`
	SpaceIDs      []string `json:"space_ids,omitempty"`
	Presence      Presence `json:"presence"`
	CreatedAt     int64    `json:"created_at,omitempty"`
	EditedAt      int64    `json:"edited_at,omitempty"`
}

// PublicUser is the shape clients may see. It never carries the password
// hash, the token secret or the last password reset timestamp.
type PublicUser struct {
	ID            UserID   `json:"id"`
	Username      string   `json:"username"`
	Discriminator string   `json:"discriminator"`
	GlobalName    string   `json:"global_name,omitempty"`
	Avatar        string   `json:"avatar,omitempty"`
	SpaceIDs      []string `json:"space_ids,omitempty"`
	Presence      Presence `json:"presence"`
	CreatedAt     int64    `json:"created_at,omitempty"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		GlobalName:    u.GlobalName,
		Avatar:        u.Avatar,
		SpaceIDs:      u.SpaceIDs,
		Presence:      u.Presence,
		CreatedAt:     u.CreatedAt,
	}
}
