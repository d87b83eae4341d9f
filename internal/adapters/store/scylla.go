// Package store implements the narrow platform-store lookups against
// ScyllaDB. The CRUD API owns the schema; this package only reads user,
// relationship and room rows, and writes presence back.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/strafechat/stargate/internal/core"
	"github.com/strafechat/stargate/internal/domain"
)

type Scylla struct {
	session *gocql.Session
}

func Connect(hosts []string, keyspace string) (*Scylla, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect scylla: %w", err)
	}
	return &Scylla{session: session}, nil
}

func (s *Scylla) Close() {
	s.session.Close()
}

func (s *Scylla) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	var (
		u           domain.User
		presenceRaw string
	)
	err := s.session.Query(
		`SELECT id, username, discriminator, global_name, avatar, password, secret,
		        last_pass_reset, space_ids, presence, created_at, edited_at
		 FROM users WHERE id = ?`, string(id),
	).WithContext(ctx).Scan(
		&u.ID, &u.Username, &u.Discriminator, &u.GlobalName, &u.Avatar, &u.Password,
		&u.Secret, &u.LastPassReset, &u.SpaceIDs, &presenceRaw, &u.CreatedAt, &u.EditedAt,
	)
	if err == gocql.ErrNotFound {
		return domain.User{}, core.ErrUnknownUser
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if presenceRaw != "" {
		if err := json.Unmarshal([]byte(presenceRaw), &u.Presence); err != nil {
			return domain.User{}, fmt.Errorf("decode presence: %w", err)
		}
	}
	return u, nil
}

func (s *Scylla) UpdatePresence(ctx context.Context, id domain.UserID, p domain.Presence) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	err = s.session.Query(
		`UPDATE users SET presence = ?, edited_at = ? WHERE id = ?`,
		string(raw), time.Now().UnixMilli(), string(id),
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	return nil
}

// Friends returns the accepted relationship counterparts of id, both
// directions of the edge included.
func (s *Scylla) Friends(ctx context.Context, id domain.UserID) ([]domain.UserID, error) {
	seen := make(map[domain.UserID]struct{})
	var out []domain.UserID

	collect := func(query string) error {
		iter := s.session.Query(query, string(id)).WithContext(ctx).Iter()
		var r domain.Relationship
		for iter.Scan(&r.SenderID, &r.ReceiverID, &r.Status) {
			if r.Status != domain.RelationshipAccepted {
				continue
			}
			friend := r.Counterpart(id)
			if _, ok := seen[friend]; ok {
				continue
			}
			seen[friend] = struct{}{}
			out = append(out, friend)
		}
		return iter.Close()
	}

	err := collect(`SELECT sender_id, receiver_id, status FROM friend_requests_by_receiver WHERE receiver_id = ?`)
	if err != nil {
		return nil, fmt.Errorf("friends by receiver: %w", err)
	}
	err = collect(`SELECT sender_id, receiver_id, status FROM friend_requests_by_sender WHERE sender_id = ?`)
	if err != nil {
		return nil, fmt.Errorf("friends by sender: %w", err)
	}
	return out, nil
}

func (s *Scylla) RoomSpace(ctx context.Context, room domain.RoomID) (domain.SpaceID, error) {
	var space string
	err := s.session.Query(`SELECT space_id FROM rooms WHERE id = ?`, string(room)).
		WithContext(ctx).Scan(&space)
	if err == gocql.ErrNotFound {
		return "", core.ErrUnknownRoom
	}
	if err != nil {
		return "", fmt.Errorf("room space: %w", err)
	}
	return domain.SpaceID(space), nil
}
