package adaptersqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"portofmars/server/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(roomID domain.RoomID, status string) domain.ArchiveRecord {
	created := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	return domain.ArchiveRecord{
		RoomID:      roomID,
		CreatedAt:   created,
		FinalizedAt: created.Add(40 * time.Minute),
		GameRecord: domain.GameRecord{
			Status:       status,
			Round:        8,
			SystemHealth: 42,
			Players: []domain.PlayerRecord{
				{Role: "Curator", UserID: "u1", Username: "ada", VictoryPoints: 9},
				{Role: "Pioneer", UserID: "", Username: "bot", IsBot: true, VictoryPoints: 3},
			},
			Events: []domain.GameEvent{
				{Round: 1, Phase: "invest", Kind: "phaseChanged", Payload: json.RawMessage(`{"to":"invest"}`), At: created.Add(time.Minute)},
				{Round: 1, Phase: "trade", Kind: "tradeProposed", Role: "Curator", At: created.Add(2 * time.Minute)},
			},
		},
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rec := sampleRecord("room-1", "victory")

	if err := store.Archive(ctx, rec); err != nil {
		t.Fatalf("archive: %v", err)
	}

	got, err := store.FindByRoomID(ctx, "room-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := rec
	want.Events = nil
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	events, err := store.EventsByGame(ctx, "room-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Kind != "phaseChanged" || string(events[0].Payload) != `{"to":"invest"}` {
		t.Fatalf("first event = %+v", events[0])
	}
	if string(events[1].Payload) != "null" {
		t.Fatalf("empty payload stored as %q, want null", events[1].Payload)
	}
}

func TestArchiveReplacesExistingRoom(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Archive(ctx, sampleRecord("room-1", "defeat")); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := store.Archive(ctx, sampleRecord("room-1", "victory")); err != nil {
		t.Fatalf("archive again: %v", err)
	}

	got, err := store.FindByRoomID(ctx, "room-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != "victory" {
		t.Fatalf("status = %q, want victory", got.Status)
	}
	events, err := store.EventsByGame(ctx, "room-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
}

func TestCountCompleted(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for id, status := range map[domain.RoomID]string{"a": "victory", "b": "defeat", "c": "victory"} {
		if err := store.Archive(ctx, sampleRecord(id, status)); err != nil {
			t.Fatalf("archive %s: %v", id, err)
		}
	}

	cases := map[string]int{"": 3, "victory": 2, "defeat": 1, "lobby": 0}
	for status, want := range cases {
		got, err := store.CountCompleted(ctx, status)
		if err != nil {
			t.Fatalf("count %q: %v", status, err)
		}
		if got != want {
			t.Errorf("CountCompleted(%q) = %d, want %d", status, got, want)
		}
	}
}

func TestFindByRoomIDNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.FindByRoomID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOpenTwiceSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Archive(context.Background(), sampleRecord("room-1", "victory")); err != nil {
		t.Fatalf("archive: %v", err)
	}
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	n, err := second.CountCompleted(context.Background(), "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
