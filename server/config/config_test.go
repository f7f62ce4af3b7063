package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port int `env:"PORTOFMARS_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("PORTOFMARS_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SEAT_GRANT_PUBLIC_KEY", "key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr() != "localhost:9090" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr())
	}
	if cfg.Room.TickInterval != time.Second {
		t.Fatalf("tick interval = %v, want 1s", cfg.Room.TickInterval)
	}
	if cfg.Endpoint.IdleTimeout != 30*time.Second {
		t.Fatalf("idle timeout = %v, want 30s", cfg.Endpoint.IdleTimeout)
	}
	if cfg.Grant.Audience != "portofmars" {
		t.Fatalf("audience = %q", cfg.Grant.Audience)
	}
	level, err := cfg.SlogLevel()
	if err != nil || level != slog.LevelInfo {
		t.Fatalf("level = %v, %v", level, err)
	}
}

func TestLoadPrefixedOverrides(t *testing.T) {
	t.Setenv("SEAT_GRANT_PUBLIC_KEY", "key")
	t.Setenv("GAME_MAX_ROUNDS", "3")
	t.Setenv("GAME_SEED", "42")
	t.Setenv("ROOM_LINGER", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Game.MaxRounds != 3 || cfg.Game.Seed != 42 {
		t.Fatalf("game config = %+v", cfg.Game)
	}
	if cfg.Room.Linger != 5*time.Second {
		t.Fatalf("linger = %v", cfg.Room.Linger)
	}
}

func TestLoadRequiresGrantKey(t *testing.T) {
	t.Setenv("SEAT_GRANT_PUBLIC_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without public key")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("SEAT_GRANT_PUBLIC_KEY", "key")
	t.Setenv("GAME_INITIAL_SYSTEM_HEALTH", "150")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"GAME_INITIAL_SYSTEM_HEALTH", "LOG_FORMAT"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}
