package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"portofmars/server/domain"
)

// ErrDeckExhausted はデッキの残りがラウンドに必要な枚数より少ない場合のエラーです。設定の誤りとして扱います。
var ErrDeckExhausted = errors.New("mars event deck exhausted")

// deck は引いたカードを戻さない山札です。
type deck struct {
	cards []EventDefinition
}

func newDeck(defs []EventDefinition, seed uint64) *deck {
	if seed == 0 {
		seed = rand.Uint64()
	}
	cards := make([]EventDefinition, len(defs))
	copy(cards, defs)
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	rng.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	return &deck{cards: cards}
}

func (d *deck) Remaining() int { return len(d.cards) }

func (d *deck) draw(n int) ([]EventDefinition, error) {
	if n > len(d.cards) {
		return nil, fmt.Errorf("%w: %d left, %d needed", ErrDeckExhausted, len(d.cards), n)
	}
	out := d.cards[:n:n]
	d.cards = d.cards[n:]
	return out, nil
}

// runEventPhase はラウンドのイベントを引いて順に適用します。
func (g *Game) runEventPhase(ctx context.Context) error {
	defs, err := g.deck.draw(g.tuning.EventsPerRound)
	if err != nil {
		return domain.Fatal(err)
	}
	for _, def := range defs {
		ev := g.state.addMarsEvent(def)
		if err := g.state.ApplyEventEffect(ev.ID); err != nil {
			return domain.Fatal(fmt.Errorf("apply event %s: %w", ev.ID, err))
		}
		slog.DebugContext(ctx, "mars event applied", "event_id", ev.ID, "name", ev.Name, "system_health", g.state.SystemHealth)
		g.state.AppendLog("event", fmt.Sprintf("%s: %s", ev.Name, ev.Effect), "")
		g.record("marsEvent", "", map[string]any{"id": ev.ID, "name": ev.Name, "systemHealth": g.state.SystemHealth})
		g.sfx = append(g.sfx, "mars-event")
	}
	return nil
}
