// bot はPort of Marsのサーバーに接続して自動で遊ぶ負荷試験用のクライアントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"portofmars/server/application"
	"portofmars/server/config"
	"portofmars/server/domain"
	"portofmars/server/identity"
	"portofmars/server/replication"
)

type botConfig struct {
	ServerURL  string        `env:"BOT_SERVER_URL" envDefault:"ws://localhost:9090/ws"`
	RoomID     string        `env:"BOT_ROOM_ID" envDefault:"bots"`
	Count      int           `env:"BOT_COUNT" envDefault:"5"`
	Issuer     string        `env:"SEAT_GRANT_ISSUER" envDefault:"portofmars-accounts"`
	Audience   string        `env:"SEAT_GRANT_AUDIENCE" envDefault:"portofmars"`
	PrivateKey string        `env:"SEAT_GRANT_PRIVATE_KEY,required,notEmpty"`
	Backoff    time.Duration `env:"BOT_RECONNECT_BACKOFF" envDefault:"2s"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg botConfig
	if err := config.ParseEnv(&cfg); err != nil {
		slog.Error("invalid bot config", "err", err)
		os.Exit(1)
	}
	key, err := identity.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		slog.Error("invalid private key", "err", err)
		os.Exit(1)
	}
	issuer := identity.NewIssuer(cfg.Issuer, cfg.Audience, key, time.Hour)

	slog.Info("starting bots", "count", cfg.Count, "server", cfg.ServerURL, "room_id", cfg.RoomID)

	var wg sync.WaitGroup
	for i := range cfg.Count {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runBot(ctx, cfg, issuer, id)
		}(i)
	}

	wg.Wait()
	slog.Info("all bots stopped")
}

func runBot(ctx context.Context, cfg botConfig, issuer *identity.Issuer, id int) {
	logger := slog.With("botID", id)
	grant := identity.SeatGrant{
		UserID:   "bot-" + strconv.Itoa(id),
		Username: "bot" + strconv.Itoa(id),
		RoomID:   cfg.RoomID,
	}

	for {
		if ctx.Err() != nil {
			return
		}
		code, err := botSession(ctx, cfg.ServerURL, issuer, grant, logger)
		if ctx.Err() != nil {
			return
		}
		switch domain.ClassifyDisconnect(code, false) {
		case domain.DisconnectBenign:
			logger.Info("session finished", "code", code)
			return
		case domain.DisconnectRefreshable:
			logger.Warn("session refused, issuing a fresh grant", "code", code, "err", err)
		default:
			logger.Warn("bot session ended, reconnecting", "code", code, "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.Backoff):
		}
	}
}

// botSession は1本の接続でゲームを遊び、切断時のクローズコードを返します。
func botSession(ctx context.Context, serverURL string, issuer *identity.Issuer, grant identity.SeatGrant, logger *slog.Logger) (int32, error) {
	token, err := issuer.Issue(grant)
	if err != nil {
		return domain.CloseInternalError, err
	}
	conn, _, err := websocket.Dial(ctx, serverURL+"?grant="+token, nil)
	if err != nil {
		return domain.CloseAbnormal, fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	logger.Info("connected")
	p := &player{conn: conn, mirror: replication.NewMirror(), logger: logger}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				return int32(status), nil
			}
			return domain.CloseAbnormal, err
		}
		if err := p.handle(ctx, data); err != nil {
			return domain.CloseAbnormal, err
		}
	}
}

// player はミラーした状態を見て、フェーズごとに1度だけ行動します。
type player struct {
	conn   *websocket.Conn
	mirror *replication.Mirror
	logger *slog.Logger

	role      string
	actedIn   string
	actedFrom int
}

func (p *player) handle(ctx context.Context, data []byte) error {
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		return err
	}
	switch env.Type {
	case domain.TypePing:
		return p.send(ctx, domain.TypePong, nil)
	case domain.TypeSetPlayerRole:
		payload, err := domain.DecodePayload[domain.SetPlayerRolePayload](env)
		if err != nil {
			return err
		}
		p.role = payload.Role
		p.logger.Info("seated", "role", p.role)
	case domain.TypeSetError:
		payload, _ := domain.DecodePayload[domain.SetErrorPayload](env)
		p.logger.Warn("server error", "message", payload.Message)
	case domain.TypePatch:
		batch, err := domain.DecodePayload[replication.Batch](env)
		if err != nil {
			return err
		}
		if err := p.mirror.Apply(batch); err != nil {
			if errors.Is(err, replication.ErrProtocolDesync) {
				p.logger.Warn("desync, requesting resync", "err", err)
				return p.send(ctx, domain.TypeResyncRequest, nil)
			}
			return err
		}
		return p.act(ctx)
	}
	return nil
}

func (p *player) act(ctx context.Context) error {
	if p.role == "" {
		return nil
	}
	var phase string
	var round int
	if n, ok := p.mirror.Root().Lookup(replication.F("phase")); !ok || n.Decode(&phase) != nil {
		return nil
	}
	if n, ok := p.mirror.Root().Lookup(replication.F("round")); ok {
		_ = n.Decode(&round)
	}
	if phase == p.actedIn && round == p.actedFrom {
		return nil
	}
	switch application.Phase(phase) {
	case application.PhaseLobby, application.PhaseVictory, application.PhaseDefeat:
		return nil
	case application.PhaseInvest:
		var blocks int
		if n, ok := p.mirror.Root().Lookup(replication.F("players"), replication.K(p.role), replication.F("timeBlocks")); ok {
			_ = n.Decode(&blocks)
		}
		if blocks > 0 {
			if err := p.send(ctx, application.CommandInvest, application.Investment{SystemHealth: blocks}); err != nil {
				return err
			}
		}
	}
	p.actedIn, p.actedFrom = phase, round
	return p.send(ctx, application.CommandReady, application.ReadyPayload{})
}

func (p *player) send(ctx context.Context, t domain.MessageType, payload any) error {
	data, err := domain.Encode(t, payload)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.conn.Write(wctx, websocket.MessageText, data)
}
