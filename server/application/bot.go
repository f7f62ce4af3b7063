package application

import (
	"context"
	"log/slog"
)

// BotAction はボットの1回分の行動です。
type BotAction struct {
	Invest   *Investment
	Purchase int
	Ready    bool
}

// BotController はボットの意思決定インターフェースです。
type BotController interface {
	Decide(self *Player, state *GameState) BotAction
}

// RuleBotController は協調的なルールベースのボットです。
// システムヘルスが閾値を下回っている間は時間を全てシステムヘルスに投資し、
// それ以外は半分を得意な資源に回します。
type RuleBotController struct {
	HealthThreshold int
}

func NewRuleBotController() *RuleBotController {
	return &RuleBotController{HealthThreshold: 65}
}

func (b *RuleBotController) Decide(self *Player, state *GameState) BotAction {
	if self.Ready {
		return BotAction{}
	}
	switch state.Phase {
	case PhaseInvest:
		return BotAction{Invest: b.investment(self, state), Ready: true}
	case PhasePurchase:
		for _, a := range self.Accomplishments.Purchasable.All() {
			if self.Inventory.Covers(a.Cost) {
				return BotAction{Purchase: a.ID, Ready: true}
			}
		}
		return BotAction{Ready: true}
	default:
		return BotAction{Ready: true}
	}
}

func (b *RuleBotController) investment(self *Player, state *GameState) *Investment {
	blocks := self.TimeBlocks
	if blocks <= 0 {
		return nil
	}
	if state.SystemHealth < b.HealthThreshold {
		return &Investment{SystemHealth: blocks}
	}
	inv := &Investment{}
	if cost := self.Costs.Get(self.Specialty); cost > 0 && cost < CostUnavailable {
		inv.Resources.Set(self.Specialty, blocks/2/cost)
	}
	inv.SystemHealth = blocks - inv.Cost(self.Costs)
	return inv
}

// runBots はボットの席の行動を適用します。ボットの操作が拒否されてもゲームは続けます。
func (g *Game) runBots(ctx context.Context) {
	s := g.state
	for p := range s.EachPlayer {
		if !p.IsBot {
			continue
		}
		action := g.bot.Decide(p, s)
		if action.Invest != nil {
			if err := g.invest(p.Role, *action.Invest); err != nil {
				slog.DebugContext(ctx, "bot investment rejected", "role", p.Role, "err", err)
			}
		}
		if action.Purchase != 0 {
			if err := g.purchase(p.Role, action.Purchase); err != nil {
				slog.DebugContext(ctx, "bot purchase rejected", "role", p.Role, "err", err)
			}
		}
		if action.Ready {
			p.Ready = true
		}
	}
}

// substituteBots は一定時間戻らないプレイヤーをボットに置き換えます。
func (g *Game) substituteBots(ctx context.Context) {
	limit := g.tuning.BotTakeoverSeconds
	if limit <= 0 {
		return
	}
	s := g.state
	for p := range s.EachPlayer {
		if p.IsBot || p.Connected || p.userID == "" {
			continue
		}
		p.absentTicks++
		if p.absentTicks < limit {
			continue
		}
		p.IsBot = true
		p.BotWarning = true
		slog.InfoContext(ctx, "player replaced by bot", "role", p.Role, "user_id", p.userID)
		s.AppendLog("bot", p.Role.String()+" has been replaced by a bot.", "")
		g.record("botTakeover", p.Role, nil)
	}
}

// fillBots は空いている席をボットで埋めます。
func (g *Game) fillBots() {
	for p := range g.state.EachPlayer {
		if p.Seated() {
			continue
		}
		p.IsBot = true
		p.Username = p.Role.String() + " Bot"
		g.record("botSeated", p.Role, nil)
	}
}
