package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"portofmars/server/domain"
)

// advance はフェーズを1つ進めます。終了しているセッションでは何もしません。
// システムヘルスが0ならdefeatに、最終ラウンドのroundEndを終えたらvictoryに進みます。
func (g *Game) advance(ctx context.Context) error {
	s := g.state
	if s.Phase.Terminal() {
		return nil
	}
	prev := s.Phase
	next := nextPhase[prev]
	switch {
	case prev != PhaseLobby && s.SystemHealth == 0:
		next = PhaseDefeat
	case prev == PhaseRoundEnd && s.Round >= g.tuning.MaxRounds:
		next = PhaseVictory
	}
	if err := s.SetPhase(next); err != nil {
		return domain.Fatal(err)
	}
	if prev == PhaseRoundEnd && next == PhaseRoundIntroduction {
		s.Round++
	}
	slog.DebugContext(ctx, "phase advanced", "from", prev, "to", next, "round", s.Round)
	return g.enter(ctx, next)
}

// enter はフェーズに入ったときの処理です。
func (g *Game) enter(ctx context.Context, phase Phase) error {
	s := g.state
	s.TimeRemaining = g.tuning.duration(phase)
	for p := range s.EachPlayer {
		p.Ready = false
	}

	switch phase {
	case PhaseRoundIntroduction:
		s.startRound(g.tuning.SystemHealthWear, g.tuning.TimeBlocksPerRound)
	case PhaseEvent:
		if err := g.runEventPhase(ctx); err != nil {
			return err
		}
	case PhasePurchase:
		s.refreshPurchasable(g.tuning.PurchasableLimit)
	case PhaseRoundEnd:
		g.expireTrades()
	case PhaseVictory:
		s.Winners = s.topScorers()
		s.TimeRemaining = 0
		g.sfx = append(g.sfx, "victory")
	case PhaseDefeat:
		s.Winners = []Role{}
		s.TimeRemaining = 0
		g.sfx = append(g.sfx, "defeat")
	}

	s.AppendLog("phase", fmt.Sprintf("Round %d: %s", s.Round, phase), "")
	g.record("phaseChanged", "", map[string]any{"phase": phase})
	if !phase.Terminal() {
		g.runBots(ctx)
	}
	return nil
}

// startRound は前のラウンドの要約を作り、ラウンドごとの値をリセットします。
func (s *GameState) startRound(wear, timeBlocks int) {
	maintenance := 0
	if s.Round >= 2 {
		maintenance = min(wear, s.SystemHealth)
		s.SystemHealth = clampHealth(s.SystemHealth - wear)
	}

	ri := &s.RoundIntroduction
	ri.SystemHealthAtStart = s.SystemHealth
	ri.SystemHealthMaintenance = maintenance
	ri.SystemHealthMarsEvents.Clear()
	for _, ev := range s.acc.marsEvents {
		ri.SystemHealthMarsEvents.Set(ev.ID, &ev)
	}
	ri.AccomplishmentPurchases.Clear()
	for i, p := range s.acc.purchases {
		ri.AccomplishmentPurchases.Set(strconv.Itoa(i+1), &p)
	}
	ri.CompletedTrades.Clear()
	for _, t := range s.acc.trades {
		if t.Status == TradeAccepted {
			ri.CompletedTrades.Set(t.ID, &t)
		}
	}
	contributions := make(map[string]int, len(Roles))
	for _, role := range Roles {
		contributions[string(role)] = s.acc.contributions[role]
	}
	ri.SystemHealthGroupContributions = contributions
	costDeltas := s.acc.costDeltas
	s.acc.reset()

	s.TradeSet.Clear()
	s.MarsEvents.Clear()
	for p := range s.EachPlayer {
		p.TimeBlocks = timeBlocks
		p.Costs = adjustCosts(baseCosts(p.Role), costDeltas[p.Role])
		p.SystemHealthChanges = 0
	}
}

// refreshPurchasable は各プレイヤーの購入可能な実績を作り直します。
// 未購入で今のインベントリで買えるものを、一覧の順にlimit件まで選びます。
func (s *GameState) refreshPurchasable(limit int) {
	for p := range s.EachPlayer {
		keep := make(map[string]bool)
		for _, a := range accomplishmentsOf(p.Role) {
			if len(keep) >= limit {
				break
			}
			if p.Accomplishments.Purchased.Has(a.key()) || !p.Inventory.Covers(a.Cost) {
				continue
			}
			keep[a.key()] = true
			if !p.Accomplishments.Purchasable.Has(a.key()) {
				p.Accomplishments.Purchasable.Set(a.key(), &a)
			}
		}
		for _, key := range p.Accomplishments.Purchasable.Keys() {
			if !keep[key] {
				p.Accomplishments.Purchasable.Remove(key)
			}
		}
	}
}

// topScorers は勝利点が最も高いロールを正規順で返します。
func (s *GameState) topScorers() []Role {
	best := -1
	var winners []Role
	for p := range s.EachPlayer {
		switch {
		case p.VictoryPoints > best:
			best = p.VictoryPoints
			winners = []Role{p.Role}
		case p.VictoryPoints == best:
			winners = append(winners, p.Role)
		}
	}
	return winners
}

func (s *GameState) allReady() bool {
	for p := range s.EachPlayer {
		if !p.Ready {
			return false
		}
	}
	return true
}
