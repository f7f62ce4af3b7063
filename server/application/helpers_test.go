package application

import (
	"context"
	"strconv"
	"testing"
	"time"

	"portofmars/server/domain"
)

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "t" + strconv.Itoa(n)
	}
}

func newTestGame(t *testing.T, tuning Tuning, opts ...Option) *Game {
	t.Helper()
	if tuning.Seed == 0 {
		tuning.Seed = 7
	}
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(sequentialIDs()),
	}
	return NewGame(tuning, append(base, opts...)...)
}

// seatAll は5人を着席させてゲームを始めます。
func seatAll(t *testing.T, g *Game) {
	t.Helper()
	for i := range Roles {
		if _, err := g.Seat(context.Background(), domain.Seat{
			UserID:   "user-" + strconv.Itoa(i),
			Username: "player" + strconv.Itoa(i),
		}); err != nil {
			t.Fatalf("seat %d: %v", i, err)
		}
	}
}

func advanceTo(t *testing.T, g *Game, phase Phase) {
	t.Helper()
	for range 64 {
		if g.state.Phase == phase {
			return
		}
		if err := g.advance(context.Background()); err != nil {
			t.Fatalf("advance from %s: %v", g.state.Phase, err)
		}
	}
	t.Fatalf("phase %s not reached, stuck at %s", phase, g.state.Phase)
}

func command(t *testing.T, typ domain.MessageType, payload any) []byte {
	t.Helper()
	data, err := domain.Encode(typ, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	return data
}

func mustPlayer(t *testing.T, g *Game, role Role) *Player {
	t.Helper()
	p, ok := g.state.Player(role)
	if !ok {
		t.Fatalf("player %s missing", role)
	}
	return p
}

// calmDeck は何も起きないイベントをn枚並べたデッキです。
func calmDeck(n int) Option {
	defs := make([]EventDefinition, n)
	for i := range defs {
		defs[i] = EventDefinition{Kind: EventKindSystemHealth, Name: "Stable Season"}
	}
	return WithDeck(defs)
}
