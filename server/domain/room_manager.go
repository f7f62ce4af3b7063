package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

//go:generate go tool mockgen -destination=./mocks/room_manager_mock.go -package=mocks . RoomManager

// RoomManager はセッションエンドポイントからルームへの入退室を仲介します。
type RoomManager interface {
	Join(ctx context.Context, roomID RoomID, sessionID SessionID, seat Seat) (string, error)
	Leave(ctx context.Context, roomID RoomID, sessionID SessionID, code int32)
	RequestResync(ctx context.Context, roomID RoomID, sessionID SessionID)
}

// ApplicationFactory は新しいルームのためのApplicationを作ります。
type ApplicationFactory func(id RoomID) (Application, error)

// SimpleRoomManager はルームをIDで保持し、最初の入室で作成し、Runが戻ったら取り除きます。
type SimpleRoomManager struct {
	ctx context.Context

	mu    sync.RWMutex
	rooms map[RoomID]*Room
	users map[string]RoomID

	pubsub   PubSub
	newApp   ApplicationFactory
	archiver Archiver
	cfg      RoomConfig

	wg sync.WaitGroup
}

var _ RoomManager = (*SimpleRoomManager)(nil)

// NewSimpleRoomManager はRoomManagerを生成します。ctxはルームのループに渡され、キャンセルで全ルームが止まります。
func NewSimpleRoomManager(ctx context.Context, pubsub PubSub, newApp ApplicationFactory, archiver Archiver, cfg RoomConfig) *SimpleRoomManager {
	return &SimpleRoomManager{
		ctx:      ctx,
		rooms:    make(map[RoomID]*Room),
		users:    make(map[string]RoomID),
		pubsub:   pubsub,
		newApp:   newApp,
		archiver: archiver,
		cfg:      cfg,
	}
}

func (m *SimpleRoomManager) Join(ctx context.Context, roomID RoomID, sessionID SessionID, seat Seat) (string, error) {
	room, err := m.getOrCreate(roomID)
	if err != nil {
		return "", err
	}
	role, err := room.Join(ctx, sessionID, seat)
	if err != nil {
		return "", err
	}
	if seat.UserID != "" {
		m.mu.Lock()
		m.users[seat.UserID] = roomID
		m.mu.Unlock()
	}
	return role, nil
}

func (m *SimpleRoomManager) Leave(ctx context.Context, roomID RoomID, sessionID SessionID, code int32) {
	room := m.get(roomID)
	if room == nil {
		return
	}
	if err := room.Leave(ctx, sessionID, code); err != nil && !errors.Is(err, ErrRoomClosed) {
		slog.WarnContext(ctx, "leave room failed", "room_id", roomID, "session_id", sessionID, "err", err)
	}
}

func (m *SimpleRoomManager) RequestResync(ctx context.Context, roomID RoomID, sessionID SessionID) {
	room := m.get(roomID)
	if room == nil {
		return
	}
	if err := room.RequestResync(sessionID); err != nil {
		slog.WarnContext(ctx, "resync request dropped", "room_id", roomID, "session_id", sessionID, "err", err)
	}
}

// ActiveRoomFor はユーザーが着席している進行中のルームを返します。
func (m *SimpleRoomManager) ActiveRoomFor(userID string) (RoomID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.users[userID]
	return id, ok
}

// Count は進行中のルーム数を返します。
func (m *SimpleRoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Wait は全ルームのループが終了するまで待ちます。
func (m *SimpleRoomManager) Wait() {
	m.wg.Wait()
}

func (m *SimpleRoomManager) get(id RoomID) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[id]
}

func (m *SimpleRoomManager) getOrCreate(id RoomID) (*Room, error) {
	if id.IsEmpty() {
		return nil, ErrRoomMissing
	}
	if err := m.ctx.Err(); err != nil {
		return nil, ErrRoomClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	app, err := m.newApp(id)
	if err != nil {
		return nil, fmt.Errorf("create application for room %s: %w", id, err)
	}
	r := NewRoom(id, m.pubsub, app, m.archiver, m.cfg)
	m.rooms[id] = r
	m.wg.Add(1)
	go m.run(r)
	slog.InfoContext(m.ctx, "room created", "room_id", id)
	return r, nil
}

func (m *SimpleRoomManager) run(r *Room) {
	defer m.wg.Done()
	if err := r.Run(m.ctx); err != nil {
		slog.ErrorContext(m.ctx, "room stopped with error", "room_id", r.ID, "err", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[r.ID] != r {
		return
	}
	delete(m.rooms, r.ID)
	for user, id := range m.users {
		if id == r.ID {
			delete(m.users, user)
		}
	}
	slog.InfoContext(m.ctx, "room removed", "room_id", r.ID)
}
