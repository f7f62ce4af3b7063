package application

import (
	"errors"
	"fmt"

	"portofmars/server/domain"
)

func tradingPhase(p Phase) bool { return p == PhaseInvest || p == PhaseTrade }

// proposeTrade はroleからの取引の提案を記録します。
func (g *Game) proposeTrade(role Role, req ProposeTradePayload) error {
	to, err := ParseRole(string(req.To))
	if err != nil {
		return domain.Invalid("Unknown trade partner %q.", req.To)
	}
	t := Trade{
		ID:   g.newID(),
		From: TradeSide{Role: role, Resources: req.Give},
		To:   TradeSide{Role: to, Resources: req.Get},
	}
	if err := g.state.RecordTrade(t); err != nil {
		return err
	}
	g.state.AppendLog("trade", fmt.Sprintf("%s offered %s to %s for %s.", role, req.Give, to, req.Get), string(role))
	g.record("tradeProposed", role, t)
	g.sfx = append(g.sfx, "trade-request")
	return nil
}

// acceptTrade はtoロールが取引を受け入れます。どちらかの在庫が足りなければ取引は却下され、資源は動きません。
func (g *Game) acceptTrade(role Role, id string) error {
	s := g.state
	if !tradingPhase(s.Phase) {
		return domain.Invalid("Trades can only be accepted during the invest and trade phases.")
	}
	t, ok := s.TradeSet.Get(id)
	if !ok {
		return domain.Invalid("That trade no longer exists.")
	}
	if t.Status.Terminal() {
		return domain.Invalid("This trade is already %s.", t.Status)
	}
	if t.To.Role != role {
		return domain.Invalid("Only %s can accept this trade.", t.To.Role)
	}

	if err := s.exchange(t.From.Role, t.From.Resources, t.To.Role, t.To.Resources); err != nil {
		if !errors.Is(err, domain.ErrInvalidMutation) {
			return err
		}
		if err := s.SetTradeStatus(id, TradeRejected); err != nil {
			return err
		}
		s.AppendLog("trade", fmt.Sprintf("Trade between %s and %s was rejected: %s", t.From.Role, t.To.Role, domain.UserMessage(err)), string(role))
		g.record("tradeRejected", role, map[string]any{"id": id, "reason": domain.UserMessage(err)})
		g.sfx = append(g.sfx, "trade-rejected")
		return nil
	}
	if err := s.SetTradeStatus(id, TradeAccepted); err != nil {
		return err
	}
	s.AppendLog("trade", fmt.Sprintf("%s accepted the trade from %s.", role, t.From.Role), string(role))
	g.record("tradeAccepted", role, map[string]any{"id": id})
	g.sfx = append(g.sfx, "trade-accepted")
	return nil
}

// rejectTrade は受け手が断るか、提案者が取り下げます。
func (g *Game) rejectTrade(role Role, id string) error {
	s := g.state
	t, ok := s.TradeSet.Get(id)
	if !ok {
		return domain.Invalid("That trade no longer exists.")
	}
	if t.From.Role != role && t.To.Role != role {
		return domain.Invalid("You are not part of this trade.")
	}
	if err := s.SetTradeStatus(id, TradeRejected); err != nil {
		return err
	}
	verb := "declined"
	if t.From.Role == role {
		verb = "cancelled"
	}
	s.AppendLog("trade", fmt.Sprintf("%s %s the trade between %s and %s.", role, verb, t.From.Role, t.To.Role), string(role))
	g.record("tradeRejected", role, map[string]any{"id": id})
	return nil
}

// expireTrades はラウンドの終わりに提案中のまま残っている取引を失効させます。
func (g *Game) expireTrades() {
	s := g.state
	for id, t := range s.TradeSet.All() {
		if t.Status != TradeProposed {
			continue
		}
		if err := s.SetTradeStatus(id, TradeExpired); err != nil {
			continue
		}
		s.AppendLog("trade", fmt.Sprintf("The trade from %s to %s expired.", t.From.Role, t.To.Role), "")
		g.record("tradeExpired", "", map[string]any{"id": id})
	}
}
