package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"portofmars/server"
	adaptersqlite "portofmars/server/adapter/sqlite"
	"portofmars/server/application"
	"portofmars/server/config"
	"portofmars/server/domain"
	"portofmars/server/identity"
	"portofmars/server/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "portofmars-server")
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			slog.Warn("tracer shutdown failed", "err", err)
		}
	}()

	store, err := adaptersqlite.Open(cfg.ArchivePath)
	if err != nil {
		return err
	}
	defer store.Close()

	key, err := identity.ParsePublicKey(cfg.Grant.PublicKey)
	if err != nil {
		return err
	}
	verifier, err := identity.NewVerifier(identity.VerifierConfig{
		Issuer:   cfg.Grant.Issuer,
		Audience: cfg.Grant.Audience,
		Key:      key,
	})
	if err != nil {
		return err
	}

	// PubSub初期化
	pubsub := domain.NewSimplePubSub(cfg.Room.PubSubBuffer)

	tuning := gameTuning(cfg.Game)
	roomCtx, stopRooms := context.WithCancel(context.Background())
	defer stopRooms()
	rooms := domain.NewSimpleRoomManager(roomCtx, pubsub, func(id domain.RoomID) (domain.Application, error) {
		return application.NewGame(tuning), nil
	}, store, domain.RoomConfig{
		TickInterval:   cfg.Room.TickInterval,
		Linger:         cfg.Room.Linger,
		ArchiveTimeout: cfg.Room.ArchiveTimeout,
	})

	handler := server.Route(server.Dependencies{
		PubSub:   pubsub,
		Rooms:    rooms,
		Verifier: verifier,
		Endpoint: domain.EndpointConfig{
			HeartbeatInterval: cfg.Endpoint.HeartbeatInterval,
			IdleTimeout:       cfg.Endpoint.IdleTimeout,
			WriteQueueSize:    cfg.Endpoint.WriteQueueSize,
		},
		AllowedOrigins: cfg.AllowedOrigins,
	})
	s := server.NewServer(cfg.ListenAddr(), handler)

	serveErr := make(chan error, 1)
	go func() {
		if err := s.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	slog.InfoContext(ctx, "server listening", "addr", cfg.ListenAddr())

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// ルームを先に止めて、接続中のクライアントにクローズを送る
	stopRooms()
	rooms.Wait()
	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "graceful shutdown failed", "error", err)
		if err := s.Close(); err != nil {
			slog.ErrorContext(shutdownCtx, "forced close failed", "error", err)
		}
	}
	slog.InfoContext(shutdownCtx, "server shutdown complete")
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// gameTuning は設定で上書きされた項目だけを既定のチューニングに反映します。
func gameTuning(g config.GameConfig) application.Tuning {
	t := application.DefaultTuning()
	if g.MaxRounds > 0 {
		t.MaxRounds = g.MaxRounds
	}
	if g.InitialSystemHealth > 0 {
		t.InitialSystemHealth = g.InitialSystemHealth
	}
	if g.LobbySeconds > 0 {
		t.LobbySeconds = g.LobbySeconds
	}
	if g.BotTakeoverSeconds > 0 {
		t.BotTakeoverSeconds = g.BotTakeoverSeconds
	}
	if g.Seed != 0 {
		t.Seed = uint64(g.Seed)
	}
	return t
}
