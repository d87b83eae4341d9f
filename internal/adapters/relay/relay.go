// Package relay splices a client websocket onto the upstream SFU
// signaling endpoint so the two behave as one logical connection. Frames
// are proxied verbatim in both directions; payloads are opaque here.
package relay

import (
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type frame struct {
	messageType int
	data        []byte
}

type Options struct {
	// MediaWSHost is the upstream websocket base, e.g. ws://localhost:7880.
	MediaWSHost string
	// Query is forwarded to the upstream /rtc endpoint unchanged, so the
	// SFU sees the same access token the client presented.
	Query url.Values
	// QueueMax caps frames buffered while the upstream connection is still
	// opening. Exceeding it fails the relay instead of growing without
	// bound against an unreachable upstream.
	QueueMax int
	// OnClose fires exactly once, however the relay ends.
	OnClose func()
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Relay owns both sockets. Client-to-upstream writes are serialized under
// mu (the flush and live forwards share it); upstream-to-client writes all
// happen on the pipe goroutine.
type Relay struct {
	opts   Options
	client *websocket.Conn

	mu       sync.Mutex
	upstream *websocket.Conn
	queue    []frame

	closeOnce sync.Once
	done      chan struct{}
}

func New(client *websocket.Conn, opts Options) *Relay {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Relay{opts: opts, client: client, done: make(chan struct{})}
}

// Run proxies until either side closes. It returns once the relay is done;
// the OnClose notification has fired by then.
func (r *Relay) Run() {
	go r.dialUpstream()

	for {
		mt, data, err := r.client.ReadMessage()
		if err != nil {
			r.close()
			return
		}
		r.forward(mt, data)
	}
}

func (r *Relay) dialUpstream() {
	target := r.opts.MediaWSHost + "/rtc"
	if enc := r.opts.Query.Encode(); enc != "" {
		target += "?" + enc
	}
	ws, resp, err := r.opts.Dialer.Dial(target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Str("target", target).Msg("upstream dial failed")
		r.close()
		return
	}

	r.mu.Lock()
	select {
	case <-r.done:
		// Relay died while we were dialing; queued frames are discarded.
		r.mu.Unlock()
		_ = ws.Close()
		return
	default:
	}
	r.upstream = ws
	queued := r.queue
	r.queue = nil
	for _, f := range queued {
		if err := ws.WriteMessage(f.messageType, f.data); err != nil {
			r.mu.Unlock()
			r.close()
			return
		}
	}
	r.mu.Unlock()

	go r.pipeUpstream(ws)
}

// forward sends a client frame upstream, buffering while the upstream
// connection is still opening.
func (r *Relay) forward(messageType int, data []byte) {
	r.mu.Lock()
	if r.upstream == nil {
		if len(r.queue) >= r.opts.QueueMax {
			r.mu.Unlock()
			log.Warn().Str("module", "relay").Int("max", r.opts.QueueMax).Msg("queue overflow, failing relay")
			r.close()
			return
		}
		r.queue = append(r.queue, frame{messageType: messageType, data: data})
		r.mu.Unlock()
		return
	}
	err := r.upstream.WriteMessage(messageType, data)
	r.mu.Unlock()
	if err != nil {
		r.close()
	}
}

func (r *Relay) pipeUpstream(ws *websocket.Conn) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			r.close()
			return
		}
		if err := r.client.WriteMessage(mt, data); err != nil {
			r.close()
			return
		}
	}
}

// close cascades closure to both sides exactly once, no matter how many
// directions trigger it concurrently.
func (r *Relay) close() {
	r.closeOnce.Do(func() {
		close(r.done)
		_ = r.client.Close()
		r.mu.Lock()
		if r.upstream != nil {
			_ = r.upstream.Close()
		}
		r.queue = nil
		r.mu.Unlock()
		if r.opts.OnClose != nil {
			r.opts.OnClose()
		}
		log.Info().Str("module", "relay").Msg("relay closed")
	})
}
