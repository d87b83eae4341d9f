package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/strafechat/stargate/internal/domain"
)

// Sink is the outbound side of one live gateway connection. Registry never
// blocks on a sink; delivery failures are the owning connection's problem.
type Sink interface {
	// TrySend queues an already-marshaled frame, dropping it when the
	// connection's buffer is full or the connection is closed.
	TrySend(frame []byte) error
	// Kick closes the connection with a websocket close code and reason.
	Kick(code int, reason string)
}

// Registry maps identified users to their live gateway connection. All
// mutation goes through here so concurrent identify/disconnect from
// different sockets cannot lose updates.
type Registry struct {
	mu     sync.RWMutex
	byUser map[domain.UserID]Sink
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[domain.UserID]Sink)}
}

// Bind registers s as the live connection of id, replacing any previous one.
func (r *Registry) Bind(id domain.UserID, s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[id] = s
	log.Info().Str("module", "app.registry").Str("user", string(id)).Msg("bound session")
}

// Unbind removes id only while s is still its current connection, so a
// stale disconnect cannot evict a fresh session. Safe to call twice.
func (r *Registry) Unbind(id domain.UserID, s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byUser[id]; ok && cur == s {
		delete(r.byUser, id)
		log.Info().Str("module", "app.registry").Str("user", string(id)).Msg("unbound session")
	}
}

func (r *Registry) Get(id domain.UserID) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[id]
	return s, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
