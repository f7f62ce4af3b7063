package domain_test

import (
	"context"
	"errors"
	"testing"

	"portofmars/server/domain"
)

func newManager(t *testing.T, factory domain.ApplicationFactory) (*domain.SimpleRoomManager, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := domain.DefaultRoomConfig()
	m := domain.NewSimpleRoomManager(ctx, domain.NewSimplePubSub(32), factory, nil, cfg)
	t.Cleanup(func() {
		cancel()
		m.Wait()
	})
	return m, cancel
}

func counterFactory(domain.RoomID) (domain.Application, error) {
	return newCounterApp(), nil
}

func TestSimpleRoomManager_CreatesRoomOnFirstJoin(t *testing.T) {
	m, _ := newManager(t, counterFactory)
	ctx := context.Background()

	role, err := m.Join(ctx, "room-a", domain.NewSessionID(), domain.Seat{UserID: "u1"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if role != "Curator" {
		t.Fatalf("role = %s, want Curator", role)
	}
	if _, err := m.Join(ctx, "room-a", domain.NewSessionID(), domain.Seat{UserID: "u2", Role: "Pioneer"}); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if _, err := m.Join(ctx, "room-b", domain.NewSessionID(), domain.Seat{UserID: "u3"}); err != nil {
		t.Fatalf("join other room: %v", err)
	}
	if got := m.Count(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
	if id, ok := m.ActiveRoomFor("u2"); !ok || id != "room-a" {
		t.Fatalf("active room for u2 = %q, %v", id, ok)
	}
}

func TestSimpleRoomManager_RejectsEmptyRoomID(t *testing.T) {
	m, _ := newManager(t, counterFactory)
	_, err := m.Join(context.Background(), "", domain.NewSessionID(), domain.Seat{UserID: "u1"})
	if !errors.Is(err, domain.ErrRoomMissing) {
		t.Fatalf("err = %v, want ErrRoomMissing", err)
	}
}

func TestSimpleRoomManager_FactoryError(t *testing.T) {
	boom := errors.New("no capacity")
	m, _ := newManager(t, func(domain.RoomID) (domain.Application, error) { return nil, boom })
	_, err := m.Join(context.Background(), "room-a", domain.NewSessionID(), domain.Seat{UserID: "u1"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if m.Count() != 0 {
		t.Fatalf("count = %d, want 0", m.Count())
	}
}

func TestSimpleRoomManager_ShutdownRemovesRooms(t *testing.T) {
	m, cancel := newManager(t, counterFactory)
	ctx := context.Background()
	if _, err := m.Join(ctx, "room-a", domain.NewSessionID(), domain.Seat{UserID: "u1"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	cancel()
	m.Wait()

	if m.Count() != 0 {
		t.Fatalf("count = %d, want 0", m.Count())
	}
	if _, ok := m.ActiveRoomFor("u1"); ok {
		t.Fatal("user still mapped to a removed room")
	}
	if _, err := m.Join(ctx, "room-a", domain.NewSessionID(), domain.Seat{UserID: "u1"}); !errors.Is(err, domain.ErrRoomClosed) {
		t.Fatalf("join after shutdown err = %v, want ErrRoomClosed", err)
	}
}

func TestSimpleRoomManager_IgnoresUnknownRoom(t *testing.T) {
	m, _ := newManager(t, counterFactory)
	m.Leave(context.Background(), "ghost", domain.NewSessionID(), domain.CloseNormal)
	m.RequestResync(context.Background(), "ghost", domain.NewSessionID())
	if m.Count() != 0 {
		t.Fatalf("count = %d, want 0", m.Count())
	}
}
