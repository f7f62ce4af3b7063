// Package config はサーバーの設定を環境変数から読み込みます。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ParseEnv は環境変数をtargetの構造体に読み込みます。
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

type Config struct {
	Addr      string `env:"ADDR" envDefault:"localhost"`
	Port      string `env:"PORT" envDefault:"9090"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Room     RoomConfig     `envPrefix:"ROOM_"`
	Endpoint EndpointConfig `envPrefix:"ENDPOINT_"`
	Game     GameConfig     `envPrefix:"GAME_"`
	Grant    GrantConfig    `envPrefix:"SEAT_GRANT_"`

	ArchivePath string `env:"ARCHIVE_PATH" envDefault:"portofmars.db"`
	// AllowedOrigins が空の場合はOriginを検査しません。
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

type RoomConfig struct {
	TickInterval   time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	Linger         time.Duration `env:"LINGER" envDefault:"30s"`
	ArchiveTimeout time.Duration `env:"ARCHIVE_TIMEOUT" envDefault:"5s"`
	PubSubBuffer   int           `env:"PUBSUB_BUFFER" envDefault:"256"`
}

type EndpointConfig struct {
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"10s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"30s"`
	WriteQueueSize    int           `env:"WRITE_QUEUE_SIZE" envDefault:"256"`
}

// GameConfig はゲームの進行に関する設定です。0の値は既定のチューニングを使います。
type GameConfig struct {
	MaxRounds           int   `env:"MAX_ROUNDS"`
	InitialSystemHealth int   `env:"INITIAL_SYSTEM_HEALTH"`
	Seed                int64 `env:"SEED"`
	LobbySeconds        int   `env:"LOBBY_SECONDS"`
	BotTakeoverSeconds  int   `env:"BOT_TAKEOVER_SECONDS"`
}

type GrantConfig struct {
	Issuer    string `env:"ISSUER" envDefault:"portofmars-accounts"`
	Audience  string `env:"AUDIENCE" envDefault:"portofmars"`
	PublicKey string `env:"PUBLIC_KEY,required,notEmpty"`
}

// Load は環境変数から設定を読み込み、検証します。
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Room.TickInterval <= 0 {
		errs = append(errs, errors.New("ROOM_TICK_INTERVAL must be positive"))
	}
	if c.Endpoint.WriteQueueSize <= 0 {
		errs = append(errs, errors.New("ENDPOINT_WRITE_QUEUE_SIZE must be positive"))
	}
	if c.Game.MaxRounds < 0 {
		errs = append(errs, errors.New("GAME_MAX_ROUNDS must not be negative"))
	}
	if c.Game.InitialSystemHealth < 0 || c.Game.InitialSystemHealth > 100 {
		errs = append(errs, errors.New("GAME_INITIAL_SYSTEM_HEALTH must be within 0..100"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

func (c Config) ListenAddr() string {
	return c.Addr + ":" + c.Port
}

func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
