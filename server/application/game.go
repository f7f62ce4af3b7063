package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"portofmars/server/domain"
)

// Game はPort of Marsの1セッションのゲームロジックです。domain.Applicationを実装し、
// ルームのループからのみ呼び出されます。
type Game struct {
	state  *GameState
	tuning Tuning
	deck   *deck
	bot    BotController
	now    func() time.Time
	newID  func() string

	journal []domain.GameEvent
	sfx     []string
}

var _ domain.Application = (*Game)(nil)

type Option func(*Game)

func WithClock(now func() time.Time) Option {
	return func(g *Game) { g.now = now }
}

// WithIDGenerator は取引IDの生成方法を差し替えます。
func WithIDGenerator(newID func() string) Option {
	return func(g *Game) { g.newID = newID }
}

// WithDeck はイベントデッキを差し替えます。カードはシャッフルせずに先頭から引かれます。
func WithDeck(defs []EventDefinition) Option {
	return func(g *Game) { g.deck = &deck{cards: slices.Clone(defs)} }
}

func WithBot(bot BotController) Option {
	return func(g *Game) { g.bot = bot }
}

func NewGame(tuning Tuning, opts ...Option) *Game {
	g := &Game{
		state:  NewGameState(tuning.InitialSystemHealth),
		tuning: tuning,
		bot:    NewRuleBotController(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.deck == nil {
		g.deck = newDeck(DefaultDeck(), tuning.Seed)
	}
	g.state.TimeRemaining = tuning.LobbySeconds
	return g
}

// GameState は状態木を返します。ルームのループの外から変更してはいけません。
func (g *Game) GameState() *GameState { return g.state }

func (g *Game) State() any { return g.state }

func (g *Game) Terminal() bool { return g.state.Phase.Terminal() }

// Seat はユーザーを着席させます。同じユーザーの再接続には元のロールを返します。
// 新しいユーザーはロビーでのみ受け付け、5席が埋まった時点でゲームを始めます。
func (g *Game) Seat(ctx context.Context, seat domain.Seat) (string, error) {
	s := g.state
	if seat.UserID == "" {
		return "", fmt.Errorf("%w: user id is required", domain.ErrInvalidCommand)
	}
	for p := range s.EachPlayer {
		if p.userID != seat.UserID {
			continue
		}
		p.Connected = true
		p.IsBot = false
		p.absentTicks = 0
		if seat.Username != "" {
			p.Username = seat.Username
		}
		s.AppendLog("connection", p.Username+" rejoined as "+p.Role.String()+".", string(p.Role))
		g.record("playerRejoined", p.Role, nil)
		return string(p.Role), nil
	}

	if s.Phase.Terminal() {
		return "", domain.ErrRoomClosed
	}
	if s.Phase != PhaseLobby {
		return "", domain.ErrRoomFull
	}

	p, err := g.freeSeat(seat.Role)
	if err != nil {
		return "", err
	}
	p.userID = seat.UserID
	p.Username = seat.Username
	p.IsMuted = seat.Muted
	p.Connected = true
	s.AppendLog("connection", p.Username+" joined as "+p.Role.String()+".", string(p.Role))
	g.record("playerSeated", p.Role, map[string]any{"userId": seat.UserID, "username": seat.Username})
	slog.InfoContext(ctx, "player seated", "role", p.Role, "user_id", seat.UserID)

	if g.seatedCount() == len(Roles) {
		if err := g.advance(ctx); err != nil {
			return "", err
		}
	}
	return string(p.Role), nil
}

func (g *Game) freeSeat(requested string) (*Player, error) {
	if requested != "" {
		role, err := ParseRole(requested)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidCommand, err)
		}
		p, _ := g.state.Player(role)
		if p.Seated() {
			return nil, domain.ErrRoleTaken
		}
		return p, nil
	}
	for p := range g.state.EachPlayer {
		if !p.Seated() {
			return p, nil
		}
	}
	return nil, domain.ErrRoomFull
}

func (g *Game) seatedCount() int {
	n := 0
	for p := range g.state.EachPlayer {
		if p.Seated() {
			n++
		}
	}
	return n
}

// Detach はロールの接続が切れたことを記録します。ロビーでは席を空けます。
func (g *Game) Detach(ctx context.Context, role string) {
	r, err := ParseRole(role)
	if err != nil {
		return
	}
	p, _ := g.state.Player(r)
	p.Connected = false
	p.absentTicks = 0
	if g.state.Phase == PhaseLobby {
		g.state.AppendLog("connection", p.Username+" left the lobby.", role)
		p.userID = ""
		p.Username = ""
		p.IsMuted = false
	}
	g.record("playerDetached", r, nil)
	slog.InfoContext(ctx, "player detached", "role", r, "phase", g.state.Phase)
}

// Handle はroleのコマンドを1つ適用します。エラーの場合、状態は変更されていません。
func (g *Game) Handle(ctx context.Context, role string, data []byte) (domain.Effects, error) {
	g.sfx = nil
	r, err := ParseRole(role)
	if err != nil {
		return domain.Effects{}, fmt.Errorf("%w: %w", domain.ErrInvalidCommand, err)
	}
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		return domain.Effects{}, fmt.Errorf("%w: %w", domain.ErrInvalidCommand, err)
	}
	if err := g.apply(ctx, r, env); err != nil {
		g.sfx = nil
		return domain.Effects{}, err
	}
	return g.takeEffects(), nil
}

func (g *Game) apply(ctx context.Context, role Role, env domain.Envelope) error {
	s := g.state
	switch env.Type {
	case CommandReady:
		ready, err := decodeReady(env)
		if err != nil {
			return err
		}
		if err := s.SetReady(role, ready); err != nil {
			return err
		}
		if p, _ := s.Player(role); ready {
			p.BotWarning = false
		}
		g.record("ready", role, map[string]any{"ready": ready})
		if s.allReady() {
			return g.advance(ctx)
		}
		return nil

	case CommandInvest:
		inv, err := decodePayload[Investment](env)
		if err != nil {
			return err
		}
		return g.invest(role, inv)

	case CommandProposeTrade:
		req, err := decodePayload[ProposeTradePayload](env)
		if err != nil {
			return err
		}
		return g.proposeTrade(role, req)

	case CommandAcceptTrade:
		req, err := decodePayload[TradeIDPayload](env)
		if err != nil {
			return err
		}
		return g.acceptTrade(role, req.ID)

	case CommandRejectTrade:
		req, err := decodePayload[TradeIDPayload](env)
		if err != nil {
			return err
		}
		return g.rejectTrade(role, req.ID)

	case CommandPurchaseAccomplishment:
		req, err := decodePayload[PurchasePayload](env)
		if err != nil {
			return err
		}
		return g.purchase(role, req.ID)

	case CommandSendChat:
		req, err := decodePayload[SendChatPayload](env)
		if err != nil {
			return err
		}
		if err := s.AppendChat(role, req.Message, g.now()); err != nil {
			return err
		}
		g.record("chat", role, req)
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q", domain.ErrInvalidCommand, env.Type)
	}
}

// Tick は残り時間を1秒進め、時間切れか全員の準備が整ったらフェーズを進めます。
func (g *Game) Tick(ctx context.Context) (domain.Effects, error) {
	g.sfx = nil
	s := g.state
	if s.Phase.Terminal() {
		return domain.Effects{}, nil
	}
	if s.TimeRemaining > 0 {
		s.TimeRemaining--
	}

	if s.Phase == PhaseLobby {
		if s.TimeRemaining > 0 {
			return domain.Effects{}, nil
		}
		if !g.anyoneConnected() {
			s.TimeRemaining = g.tuning.LobbySeconds
			return domain.Effects{}, nil
		}
		g.fillBots()
		err := g.advance(ctx)
		return g.takeEffects(), err
	}

	g.substituteBots(ctx)
	g.runBots(ctx)
	if s.TimeRemaining == 0 || s.allReady() {
		if err := g.advance(ctx); err != nil {
			return g.takeEffects(), err
		}
	}
	return g.takeEffects(), nil
}

func (g *Game) anyoneConnected() bool {
	for p := range g.state.EachPlayer {
		if p.Connected {
			return true
		}
	}
	return false
}

func (g *Game) takeEffects() domain.Effects {
	e := domain.Effects{Sfx: g.sfx}
	g.sfx = nil
	return e
}

// record はアーカイブ用のジャーナルに1件追加します。
func (g *Game) record(kind string, role Role, payload any) {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	g.journal = append(g.journal, domain.GameEvent{
		Round:   g.state.Round,
		Phase:   string(g.state.Phase),
		Kind:    kind,
		Role:    string(role),
		Payload: raw,
		At:      g.now(),
	})
}

func (g *Game) Record() domain.GameRecord {
	s := g.state
	rec := domain.GameRecord{
		Status:       string(s.Phase),
		Round:        s.Round,
		SystemHealth: s.SystemHealth,
		Events:       slices.Clone(g.journal),
	}
	for p := range s.EachPlayer {
		rec.Players = append(rec.Players, domain.PlayerRecord{
			Role:          string(p.Role),
			UserID:        p.userID,
			Username:      p.Username,
			IsBot:         p.IsBot,
			VictoryPoints: p.VictoryPoints,
		})
	}
	return rec
}

// invest は投資を適用してログとゲームの記録に残します。プレイヤーとボットが共通で使います。
func (g *Game) invest(role Role, inv Investment) error {
	s := g.state
	if err := s.InvestTimeBlocks(role, inv); err != nil {
		return err
	}
	s.AppendLog("invest", fmt.Sprintf("%s invested in %s and %d system health.", role, inv.Resources, inv.SystemHealth), string(role))
	g.record("invest", role, inv)
	return nil
}

func (g *Game) purchase(role Role, id int) error {
	s := g.state
	if err := s.PurchaseAccomplishment(role, id); err != nil {
		return err
	}
	s.AppendLog("purchase", fmt.Sprintf("%s purchased accomplishment %d.", role, id), string(role))
	g.record("purchase", role, PurchasePayload{ID: id})
	g.sfx = append(g.sfx, "purchase")
	return nil
}
