// Package bus publishes fan-out notifications for the REST/notification
// layer over redis pub/sub. Publish-only; nothing here subscribes.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/strafechat/stargate/internal/core"
)

type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(addr, channel string) *Publisher {
	return &Publisher{
		rdb:     redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

// Ping verifies the connection at startup.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func (p *Publisher) Publish(ctx context.Context, ev core.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Event, err)
	}
	log.Debug().Str("module", "bus").Str("event", ev.Event).Msg("published")
	return nil
}

func (p *Publisher) Close() error {
	return p.rdb.Close()
}
