package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	// Gateway liveness. A connection that sends no HEARTBEAT for
	// HeartbeatInterval+HeartbeatGrace is considered dead.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatGrace    time.Duration `mapstructure:"heartbeat_grace"`

	// Upstream SFU.
	MediaHost           string        `mapstructure:"media_host"`
	MediaWSHost         string        `mapstructure:"media_ws_host"`
	MediaAPIKey         string        `mapstructure:"media_api_key"`
	MediaAPISecret      string        `mapstructure:"media_api_secret"`
	RoomEmptyTimeout    time.Duration `mapstructure:"room_empty_timeout"`
	RoomMaxParticipants int           `mapstructure:"room_max_participants"`

	// Store and bus.
	ScyllaHosts    []string `mapstructure:"scylla_hosts"`
	ScyllaKeyspace string   `mapstructure:"scylla_keyspace"`
	RedisAddr      string   `mapstructure:"redis_addr"`
	RedisChannel   string   `mapstructure:"redis_channel"`

	// Join credentials and signaling behavior.
	JoinTokenTTL   time.Duration `mapstructure:"join_token_ttl"`
	RelayQueueMax  int           `mapstructure:"relay_queue_max"`
	AckTimeout     time.Duration `mapstructure:"ack_timeout"`
	JoinRateLimit  int           `mapstructure:"join_rate_limit"`
	JoinRateWindow time.Duration `mapstructure:"join_rate_window"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("heartbeat_interval", "45s")
	v.SetDefault("heartbeat_grace", "1s")
	v.SetDefault("media_host", "http://localhost:7880")
	v.SetDefault("media_ws_host", "ws://localhost:7880")
	v.SetDefault("media_api_key", "devkey")
	v.SetDefault("media_api_secret", "devsecret")
	v.SetDefault("room_empty_timeout", "5m")
	v.SetDefault("room_max_participants", 20)
	v.SetDefault("scylla_hosts", []string{"localhost:9042"})
	v.SetDefault("scylla_keyspace", "strafe")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_channel", "stargate_personal")
	v.SetDefault("join_token_ttl", "5m")
	v.SetDefault("relay_queue_max", 256)
	v.SetDefault("ack_timeout", "10s")
	v.SetDefault("join_rate_limit", 10)
	v.SetDefault("join_rate_window", "1m")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
