package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"portofmars/server/domain"
	"portofmars/server/domain/mocks"
	"portofmars/server/replication"
)

type counterState struct {
	Phase string `patch:"phase"`
	Count int    `patch:"count"`
}

// counterApp はコマンドの種類ごとに決まった振る舞いをする最小のApplicationです。
type counterApp struct {
	state    counterState
	seated   map[string]string
	detached chan string
	terminal bool
}

func newCounterApp() *counterApp {
	return &counterApp{
		state:    counterState{Phase: "lobby"},
		seated:   make(map[string]string),
		detached: make(chan string, 8),
	}
}

func (a *counterApp) Seat(_ context.Context, seat domain.Seat) (string, error) {
	if role, ok := a.seated[seat.UserID]; ok {
		return role, nil
	}
	role := seat.Role
	if role == "" {
		role = "Curator"
	}
	for _, r := range a.seated {
		if r == role {
			return "", domain.ErrRoleTaken
		}
	}
	a.seated[seat.UserID] = role
	return role, nil
}

func (a *counterApp) Detach(_ context.Context, role string) { a.detached <- role }

func (a *counterApp) Handle(_ context.Context, _ string, data []byte) (domain.Effects, error) {
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		return domain.Effects{}, domain.ErrInvalidCommand
	}
	switch env.Type {
	case "inc":
		a.state.Count++
		return domain.Effects{Sfx: []string{"ding"}}, nil
	case "bad":
		return domain.Effects{}, domain.Invalid("nope")
	case "boom":
		return domain.Effects{}, domain.Fatal(errors.New("boom"))
	case "end":
		a.state.Phase = "victory"
		a.terminal = true
		return domain.Effects{}, nil
	}
	return domain.Effects{}, domain.ErrInvalidCommand
}

func (a *counterApp) Tick(context.Context) (domain.Effects, error) { return domain.Effects{}, nil }
func (a *counterApp) State() any                                   { return &a.state }
func (a *counterApp) Terminal() bool                               { return a.terminal }
func (a *counterApp) Record() domain.GameRecord {
	return domain.GameRecord{Status: a.state.Phase, Round: 1}
}

type roomHarness struct {
	room   *domain.Room
	pubsub *domain.SimplePubSub
	app    *counterApp
	done   chan error
	cancel context.CancelFunc
}

func startRoom(t *testing.T, archiver domain.Archiver, cfg domain.RoomConfig) *roomHarness {
	t.Helper()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Hour
	}
	if cfg.ArchiveTimeout == 0 {
		cfg.ArchiveTimeout = time.Second
	}
	ps := domain.NewSimplePubSub(32)
	app := newCounterApp()
	room := domain.NewRoom("room-1", ps, app, archiver, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	h := &roomHarness{room: room, pubsub: ps, app: app, done: make(chan error, 1), cancel: cancel}
	go func() { h.done <- room.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-room.Done()
	})
	return h
}

func (h *roomHarness) join(t *testing.T, userID, role string) (domain.SessionID, <-chan domain.Message) {
	t.Helper()
	sid := domain.NewSessionID()
	ch := h.pubsub.Subscribe(domain.SessionTopic(sid))
	got, err := h.room.Join(context.Background(), sid, domain.Seat{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if role != "" && got != role {
		t.Fatalf("role = %s, want %s", got, role)
	}
	return sid, ch
}

func (h *roomHarness) send(t *testing.T, sid domain.SessionID, typ domain.MessageType) {
	t.Helper()
	data, err := domain.Encode(typ, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := h.pubsub.Publish(context.Background(), domain.RoomTopic(h.room.ID), domain.Message{SessionID: sid, Data: data}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func receive(t *testing.T, ch <-chan domain.Message) domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return domain.Message{}
	}
}

func receiveFrame(t *testing.T, ch <-chan domain.Message) domain.Envelope {
	t.Helper()
	msg := receive(t, ch)
	if msg.CloseCode != 0 {
		t.Fatalf("got close %d (%s), want a frame", msg.CloseCode, msg.CloseReason)
	}
	env, err := domain.DecodeEnvelope(msg.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func receivePatch(t *testing.T, ch <-chan domain.Message) replication.Batch {
	t.Helper()
	env := receiveFrame(t, ch)
	if env.Type != domain.TypePatch {
		t.Fatalf("type = %s, want patch", env.Type)
	}
	b, err := domain.DecodePayload[replication.Batch](env)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	return b
}

func TestRoom_JoinSendsResync(t *testing.T) {
	h := startRoom(t, nil, domain.DefaultRoomConfig())
	_, ch := h.join(t, "u1", "")

	b := receivePatch(t, ch)
	if !b.Resync {
		t.Fatal("first frame after join should be a resync")
	}
	m := replication.NewMirror()
	if err := m.Apply(b); err != nil {
		t.Fatalf("apply: %v", err)
	}
	want, _ := replication.Snapshot(&counterState{Phase: "lobby"})
	if !replication.Equal(want, m.Root()) {
		t.Fatal("resync does not match room state")
	}
}

// droppingPubSub は指定したトピックへの次のn件の配信を落とします。
type droppingPubSub struct {
	*domain.SimplePubSub
	mu    sync.Mutex
	topic domain.Topic
	drops int
}

func (p *droppingPubSub) dropNext(topic domain.Topic, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic, p.drops = topic, n
}

func (p *droppingPubSub) Publish(ctx context.Context, topic domain.Topic, msg domain.Message) error {
	p.mu.Lock()
	if topic == p.topic && p.drops > 0 {
		p.drops--
		p.mu.Unlock()
		return domain.ErrSubscriberFull
	}
	p.mu.Unlock()
	return p.SimplePubSub.Publish(ctx, topic, msg)
}

func TestRoom_DroppedPatchIsRepairedByResync(t *testing.T) {
	ps := &droppingPubSub{SimplePubSub: domain.NewSimplePubSub(32)}
	cfg := domain.DefaultRoomConfig()
	cfg.TickInterval = time.Hour
	room := domain.NewRoom("room-1", ps, newCounterApp(), nil, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go room.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-room.Done()
	})

	sid := domain.NewSessionID()
	ch := ps.Subscribe(domain.SessionTopic(sid))
	if _, err := room.Join(context.Background(), sid, domain.Seat{UserID: "u1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	m := replication.NewMirror()
	if err := m.Apply(receivePatch(t, ch)); err != nil {
		t.Fatalf("apply join resync: %v", err)
	}

	inc := func() {
		t.Helper()
		data, err := domain.Encode("inc", nil)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := ps.Publish(context.Background(), domain.RoomTopic(room.ID), domain.Message{SessionID: sid, Data: data}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	// 1件目のパッチは落ち、効果音だけが届く
	ps.dropNext(domain.SessionTopic(sid), 1)
	inc()
	if env := receiveFrame(t, ch); env.Type != domain.TypeSetSfx {
		t.Fatalf("type = %s, want set-sfx after the dropped patch", env.Type)
	}

	// 配信に失敗したセッションには次に全量が送られる
	inc()
	b := receivePatch(t, ch)
	if !b.Resync {
		t.Fatal("patch after a failed publish should be a resync")
	}
	if err := m.Apply(b); err != nil {
		t.Fatalf("apply resync: %v", err)
	}
	receiveFrame(t, ch) // set-sfx

	inc()
	b = receivePatch(t, ch)
	if b.Resync {
		t.Fatal("stream should return to incremental patches")
	}
	if err := m.Apply(b); err != nil {
		t.Fatalf("apply after resync: %v", err)
	}
	want, _ := replication.Snapshot(&counterState{Phase: "lobby", Count: 3})
	if !replication.Equal(want, m.Root()) {
		t.Fatal("mirror does not match room state")
	}
}

func TestRoom_JoinRejectedRoleTaken(t *testing.T) {
	h := startRoom(t, nil, domain.DefaultRoomConfig())
	h.join(t, "u1", "Curator")

	_, err := h.room.Join(context.Background(), domain.NewSessionID(), domain.Seat{UserID: "u2", Role: "Curator"})
	if !errors.Is(err, domain.ErrRoleTaken) {
		t.Fatalf("err = %v, want ErrRoleTaken", err)
	}
}

func TestRoom_CommandBroadcastsPatchThenSfx(t *testing.T) {
	h := startRoom(t, nil, domain.DefaultRoomConfig())
	sid1, ch1 := h.join(t, "u1", "Curator")
	receivePatch(t, ch1)
	_, ch2 := h.join(t, "u2", "Pioneer")
	receivePatch(t, ch2)

	h.send(t, sid1, "inc")
	for _, ch := range []<-chan domain.Message{ch1, ch2} {
		b := receivePatch(t, ch)
		if b.Resync || len(b.Ops) != 1 || b.Ops[0].String() != "change .count" {
			t.Fatalf("batch = %+v", b)
		}
		env := receiveFrame(t, ch)
		if env.Type != domain.TypeSetSfx {
			t.Fatalf("type = %s, want set-sfx", env.Type)
		}
	}
}

func TestRoom_InvalidCommandOnlyNotifiesSender(t *testing.T) {
	h := startRoom(t, nil, domain.DefaultRoomConfig())
	sid1, ch1 := h.join(t, "u1", "Curator")
	receivePatch(t, ch1)
	_, ch2 := h.join(t, "u2", "Pioneer")
	receivePatch(t, ch2)

	h.send(t, sid1, "bad")
	env := receiveFrame(t, ch1)
	if env.Type != domain.TypeSetError {
		t.Fatalf("type = %s, want set-error", env.Type)
	}
	p, _ := domain.DecodePayload[domain.SetErrorPayload](env)
	if p.Message != "nope" {
		t.Fatalf("message = %q, want nope", p.Message)
	}

	// 状態は変わっていないので、次のincでcountは1になる
	h.send(t, sid1, "inc")
	b := receivePatch(t, ch2)
	var count int
	if err := b.Ops[0].Value.Decode(&count); err != nil || count != 1 {
		t.Fatalf("count = %d, %v", count, err)
	}
}

func TestRoom_ResyncRequest(t *testing.T) {
	h := startRoom(t, nil, domain.DefaultRoomConfig())
	sid, ch := h.join(t, "u1", "")
	receivePatch(t, ch)

	if err := h.room.RequestResync(sid); err != nil {
		t.Fatalf("request resync: %v", err)
	}
	b := receivePatch(t, ch)
	if !b.Resync || b.Seq != 1 {
		t.Fatalf("batch = %+v, want resync at seq 1", b)
	}
}

func TestRoom_NewConnectionReplacesOldForSameRole(t *testing.T) {
	h := startRoom(t, nil, domain.DefaultRoomConfig())
	_, old := h.join(t, "u1", "")
	receivePatch(t, old)
	_, fresh := h.join(t, "u1", "")

	msg := receive(t, old)
	if msg.CloseCode != domain.CloseReplaced {
		t.Fatalf("close code = %d, want %d", msg.CloseCode, domain.CloseReplaced)
	}
	if b := receivePatch(t, fresh); !b.Resync {
		t.Fatal("replacement connection should be resynced")
	}
}

func TestRoom_LeaveDetachesRole(t *testing.T) {
	h := startRoom(t, nil, domain.DefaultRoomConfig())
	sid, ch := h.join(t, "u1", "Researcher")
	receivePatch(t, ch)

	if err := h.room.Leave(context.Background(), sid, domain.CloseGoingAway); err != nil {
		t.Fatalf("leave: %v", err)
	}
	select {
	case role := <-h.app.detached:
		if role != "Researcher" {
			t.Fatalf("detached %s, want Researcher", role)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("role was not detached")
	}
}

func TestRoom_FatalTearsDown(t *testing.T) {
	h := startRoom(t, nil, domain.DefaultRoomConfig())
	sid, ch := h.join(t, "u1", "")
	receivePatch(t, ch)

	h.send(t, sid, "boom")
	if env := receiveFrame(t, ch); env.Type != domain.TypeSetError {
		t.Fatalf("type = %s, want set-error", env.Type)
	}
	if msg := receive(t, ch); msg.CloseCode != domain.CloseInternalError {
		t.Fatalf("close code = %d, want %d", msg.CloseCode, domain.CloseInternalError)
	}
	select {
	case err := <-h.done:
		if !errors.Is(err, domain.ErrRoomFatal) {
			t.Fatalf("run err = %v, want ErrRoomFatal", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("room did not stop")
	}
	if _, err := h.room.Join(context.Background(), domain.NewSessionID(), domain.Seat{UserID: "u2"}); !errors.Is(err, domain.ErrRoomClosed) {
		t.Fatalf("join after fatal err = %v, want ErrRoomClosed", err)
	}
}

func TestRoom_TerminalGameIsArchived(t *testing.T) {
	ctrl := gomock.NewController(t)
	archiver := mocks.NewMockArchiver(ctrl)
	archiver.EXPECT().Archive(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, rec domain.ArchiveRecord) error {
		if rec.RoomID != "room-1" || rec.Status != "victory" {
			t.Errorf("record = %+v", rec)
		}
		if rec.FinalizedAt.Before(rec.CreatedAt) {
			t.Errorf("finalized %v before created %v", rec.FinalizedAt, rec.CreatedAt)
		}
		return nil
	})

	h := startRoom(t, archiver, domain.RoomConfig{Linger: 0})
	sid, ch := h.join(t, "u1", "")
	receivePatch(t, ch)

	h.send(t, sid, "end")
	b := receivePatch(t, ch)
	if b.Ops[0].String() != "change .phase" {
		t.Fatalf("ops = %v", b.Ops)
	}
	if msg := receive(t, ch); msg.CloseCode != domain.CloseNormal {
		t.Fatalf("close code = %d, want %d", msg.CloseCode, domain.CloseNormal)
	}
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("run err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("room did not finish")
	}
}

func TestRoom_ShutdownClosesSessions(t *testing.T) {
	h := startRoom(t, nil, domain.DefaultRoomConfig())
	_, ch := h.join(t, "u1", "")
	receivePatch(t, ch)

	h.cancel()
	if msg := receive(t, ch); msg.CloseCode != domain.CloseGoingAway {
		t.Fatalf("close code = %d, want %d", msg.CloseCode, domain.CloseGoingAway)
	}
	if err := <-h.done; err != nil {
		t.Fatalf("run err = %v", err)
	}
}
