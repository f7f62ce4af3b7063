package application

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"portofmars/server/domain"
)

const maxChatLength = 500

// 各フェーズの次のフェーズ。victoryとdefeatへの遷移は別に判定します。
var nextPhase = map[Phase]Phase{
	PhaseLobby:             PhaseRoundIntroduction,
	PhaseRoundIntroduction: PhaseInvest,
	PhaseInvest:            PhaseEvent,
	PhaseEvent:             PhaseTrade,
	PhaseTrade:             PhasePurchase,
	PhasePurchase:          PhaseRoundEnd,
	PhaseRoundEnd:          PhaseRoundIntroduction,
}

func (s *GameState) active() error {
	if s.Phase.Terminal() {
		return domain.Invalid("The game is over.")
	}
	return nil
}

func (s *GameState) player(role Role) (*Player, error) {
	p, ok := s.Player(role)
	if !ok {
		return nil, domain.Invalid("Unknown role %q.", role)
	}
	return p, nil
}

// SetPhase はフェーズを次に進めます。フェーズを飛ばす遷移は拒否されます。
// defeatはラウンド中のどのフェーズからでも、victoryはroundEndからのみ遷移できます。
func (s *GameState) SetPhase(next Phase) error {
	if err := s.active(); err != nil {
		return err
	}
	ok := nextPhase[s.Phase] == next
	switch next {
	case PhaseDefeat:
		ok = s.Phase != PhaseLobby
	case PhaseVictory:
		ok = s.Phase == PhaseRoundEnd
	}
	if !ok {
		return domain.Invalid("Cannot move from %s to %s.", s.Phase, next)
	}
	s.Phase = next
	return nil
}

// AdjustInventory はroleのインベントリにdeltaを加えます。どれか1つでも負になる場合は何も変更しません。
func (s *GameState) AdjustInventory(role Role, delta Bundle) error {
	if err := s.active(); err != nil {
		return err
	}
	p, err := s.player(role)
	if err != nil {
		return err
	}
	return p.adjustInventory(delta)
}

// adjustInventory はインベントリを変更する唯一の経路です。負になる資源があれば何も変更しません。
func (p *Player) adjustInventory(delta Bundle) error {
	next := p.Inventory.Add(delta)
	if next.hasNegative() {
		return domain.Invalid("%s does not have enough resources.", p.Role)
	}
	p.Inventory = next
	return nil
}

// exchange はaのgiveとbのgetを入れ替えます。両者の在庫を確認してから移動します。
func (s *GameState) exchange(a Role, give Bundle, b Role, get Bundle) error {
	pa, err := s.player(a)
	if err != nil {
		return err
	}
	pb, err := s.player(b)
	if err != nil {
		return err
	}
	if !pa.Inventory.Covers(give) {
		return domain.Invalid("%s does not have enough resources.", a)
	}
	if !pb.Inventory.Covers(get) {
		return domain.Invalid("%s does not have enough resources.", b)
	}
	if err := pa.adjustInventory(get.Sub(give)); err != nil {
		return err
	}
	return pb.adjustInventory(give.Sub(get))
}

// addMarsEvent は引いたイベントを未処理として状態に加えます。
func (s *GameState) addMarsEvent(def EventDefinition) *MarsEvent {
	ev := &MarsEvent{
		ID:     fmt.Sprintf("%d-%d", s.Round, s.MarsEvents.Len()+1),
		Kind:   def.Kind,
		Name:   def.Name,
		Effect: def.Effect,
		def:    def,
	}
	s.MarsEvents.Set(ev.ID, ev)
	return ev
}

// ApplyEventEffect はイベントの効果を適用します。1つのイベントは1度しか適用できません。
// 投資コストの増減はeventフェーズの時点では投資が終わっているため、次のラウンドのコストに反映されます。
func (s *GameState) ApplyEventEffect(id string) error {
	if err := s.active(); err != nil {
		return err
	}
	ev, ok := s.MarsEvents.Get(id)
	if !ok {
		return domain.Invalid("Unknown event %q.", id)
	}
	if ev.Processed {
		return domain.Invalid("Event %q has already been applied.", ev.Name)
	}
	def := ev.def

	s.SystemHealth = clampHealth(s.SystemHealth + def.SystemHealth)
	for p := range s.EachPlayer {
		if def.Target != "" && def.Target != p.Role {
			continue
		}
		if !def.Inventory.IsZero() {
			// 損失は持っている分までで止める
			var delta Bundle
			for _, r := range Resources {
				delta.Set(r, max(-p.Inventory.Get(r), def.Inventory.Get(r)))
			}
			if err := p.adjustInventory(delta); err != nil {
				return err
			}
		}
		if !def.CostDelta.IsZero() {
			s.acc.costDeltas[p.Role] = s.acc.costDeltas[p.Role].Add(def.CostDelta)
		}
	}
	if def.HeroOrPariah != "" {
		s.HeroOrPariah = def.HeroOrPariah
	}

	ev.Processed = true
	s.MarsEventsProcessed++
	if def.SystemHealth != 0 {
		s.acc.marsEvents = append(s.acc.marsEvents, SystemHealthMarsEvent{
			ID:                       ev.ID,
			Name:                     ev.Name,
			SystemHealthModification: def.SystemHealth,
		})
	}
	return nil
}

// RecordTrade は新しい取引を提案中として記録します。IDは過去に使われていないものである必要があります。
func (s *GameState) RecordTrade(t Trade) error {
	if err := s.active(); err != nil {
		return err
	}
	if s.Phase != PhaseInvest && s.Phase != PhaseTrade {
		return domain.Invalid("Trades can only be proposed during the invest and trade phases.")
	}
	if t.ID == "" || s.TradeSet.Has(t.ID) || s.tradeIDs[t.ID] {
		return domain.Invalid("Trade id %q cannot be used.", t.ID)
	}
	if t.From.Role == t.To.Role {
		return domain.Invalid("You cannot trade with yourself.")
	}
	from, err := s.player(t.From.Role)
	if err != nil {
		return err
	}
	to, err := s.player(t.To.Role)
	if err != nil {
		return err
	}
	if !from.Seated() || !to.Seated() {
		return domain.Invalid("Both players must be seated to trade.")
	}
	if t.From.Resources.hasNegative() || t.To.Resources.hasNegative() {
		return domain.Invalid("Trade amounts cannot be negative.")
	}
	if t.From.Resources.IsZero() || t.To.Resources.IsZero() {
		return domain.Invalid("Both sides of a trade must include resources.")
	}
	if !from.Inventory.Covers(t.From.Resources) {
		return domain.Invalid("You do not have the resources you offered.")
	}

	t.Status = TradeProposed
	s.TradeSet.Set(t.ID, &t)
	s.tradeIDs[t.ID] = true
	return nil
}

// SetTradeStatus は提案中の取引を終端の状態にします。終端の状態から別の状態には戻りません。
func (s *GameState) SetTradeStatus(id string, status TradeStatus) error {
	if err := s.active(); err != nil {
		return err
	}
	t, ok := s.TradeSet.Get(id)
	if !ok {
		return domain.Invalid("That trade no longer exists.")
	}
	if !status.Terminal() {
		return domain.Invalid("Cannot set a trade back to %s.", status)
	}
	if t.Status.Terminal() {
		return domain.Invalid("This trade is already %s.", t.Status)
	}
	t.Status = status
	s.acc.trades = append(s.acc.trades, *t)
	return nil
}

// PurchaseAccomplishment は購入可能な実績を買います。費用を払い、勝利点とシステムヘルスへの効果を適用します。
func (s *GameState) PurchaseAccomplishment(role Role, id int) error {
	if err := s.active(); err != nil {
		return err
	}
	if s.Phase != PhasePurchase {
		return domain.Invalid("Accomplishments can only be purchased during the purchase phase.")
	}
	p, err := s.player(role)
	if err != nil {
		return err
	}
	key := strconv.Itoa(id)
	a, ok := p.Accomplishments.Purchasable.Get(key)
	if !ok {
		return domain.Invalid("That accomplishment is not available to you.")
	}
	if !p.Inventory.Covers(a.Cost) {
		return domain.Invalid("You cannot afford %s.", a.Label)
	}

	if err := p.adjustInventory(Bundle{}.Sub(a.Cost)); err != nil {
		return err
	}
	p.VictoryPoints += a.VictoryPoints
	s.SystemHealth = clampHealth(s.SystemHealth + a.SystemHealth)
	p.Accomplishments.Purchasable.Remove(key)
	p.Accomplishments.Purchased.Set(key, a)
	s.acc.purchases = append(s.acc.purchases, AccomplishmentPurchase{
		Role:          role,
		Name:          a.Label,
		VictoryPoints: a.VictoryPoints,
		SystemHealth:  a.SystemHealth,
	})
	return nil
}

// Investment はinvestフェーズでの時間の使い方です。
type Investment struct {
	Resources    Bundle `json:"resources"`
	SystemHealth int    `json:"systemHealth"`
}

// Cost はcostsの下で必要な時間です。システムヘルスへの投資は1につき1です。
func (inv Investment) Cost(costs Bundle) int {
	total := inv.SystemHealth
	for _, r := range Resources {
		total += inv.Resources.Get(r) * costs.Get(r)
	}
	return total
}

// InvestTimeBlocks は時間を資源とシステムヘルスに投資します。
func (s *GameState) InvestTimeBlocks(role Role, inv Investment) error {
	if err := s.active(); err != nil {
		return err
	}
	if s.Phase != PhaseInvest {
		return domain.Invalid("Time blocks can only be invested during the invest phase.")
	}
	p, err := s.player(role)
	if err != nil {
		return err
	}
	if inv.Resources.hasNegative() || inv.SystemHealth < 0 {
		return domain.Invalid("Investments cannot be negative.")
	}
	if inv.Resources.IsZero() && inv.SystemHealth == 0 {
		return domain.Invalid("Nothing to invest.")
	}
	for _, r := range Resources {
		if inv.Resources.Get(r) > 0 && p.Costs.Get(r) >= CostUnavailable {
			return domain.Invalid("%s cannot invest in %s.", role, r)
		}
	}
	cost := inv.Cost(p.Costs)
	if cost > p.TimeBlocks {
		return domain.Invalid("That investment needs %d time blocks, you have %d.", cost, p.TimeBlocks)
	}

	if err := p.adjustInventory(inv.Resources); err != nil {
		return err
	}
	p.TimeBlocks -= cost
	if inv.SystemHealth > 0 {
		s.SystemHealth = clampHealth(s.SystemHealth + inv.SystemHealth)
		p.SystemHealthChanges += inv.SystemHealth
		s.acc.contributions[role] += inv.SystemHealth
	}
	return nil
}

func (s *GameState) SetReady(role Role, ready bool) error {
	if err := s.active(); err != nil {
		return err
	}
	if s.Phase == PhaseLobby {
		return domain.Invalid("The game has not started yet.")
	}
	p, err := s.player(role)
	if err != nil {
		return err
	}
	p.Ready = ready
	return nil
}

// AppendLog はゲームのログに1行追加します。
func (s *GameState) AppendLog(category, content, performedBy string) {
	s.logSeq++
	id := strconv.Itoa(s.logSeq)
	s.Logs.Set(id, &LogEntry{
		ID:          id,
		Round:       s.Round,
		Category:    category,
		Content:     content,
		PerformedBy: performedBy,
	})
}

// AppendChat はチャットに1件追加します。ミュートされたプレイヤーは発言できません。
func (s *GameState) AppendChat(role Role, message string, at time.Time) error {
	if err := s.active(); err != nil {
		return err
	}
	p, err := s.player(role)
	if err != nil {
		return err
	}
	if p.IsMuted {
		return domain.Invalid("You have been muted and cannot send messages.")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.Invalid("Message is empty.")
	}
	if utf8.RuneCountInString(message) > maxChatLength {
		return domain.Invalid("Message is longer than %d characters.", maxChatLength)
	}
	s.chatSeq++
	id := strconv.Itoa(s.chatSeq)
	s.Messages.Set(id, &ChatMessage{
		ID:        id,
		Round:     s.Round,
		Sender:    role,
		Message:   message,
		Timestamp: at.UnixMilli(),
	})
	return nil
}
