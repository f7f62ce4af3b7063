package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"portofmars/server/replication"
)

type RoomID string

func (id RoomID) String() string { return string(id) }

func (id RoomID) IsEmpty() bool { return id == "" }

type RoomConfig struct {
	// TickInterval はApplication.Tickを呼び出す間隔です。ゲームの残り時間は1tickで1秒減ります。
	TickInterval time.Duration
	// Linger は終了フェーズに入ってから接続が残っていてもルームを閉じるまでの時間です。
	Linger time.Duration
	// ArchiveTimeout はアーカイブの書き込みに待つ最大時間です。
	ArchiveTimeout time.Duration
}

func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		TickInterval:   time.Second,
		Linger:         30 * time.Second,
		ArchiveTimeout: 5 * time.Second,
	}
}

type member struct {
	role   string
	resync bool
}

type roomCtrlKind uint8

const (
	ctrlJoin roomCtrlKind = iota + 1
	ctrlLeave
	ctrlResync
)

type roomCtrl struct {
	kind      roomCtrlKind
	sessionID SessionID
	seat      Seat
	code      int32
	reply     chan joinResult
}

type joinResult struct {
	role string
	err  error
}

// Room は1つのゲームセッションを単一のゴルーチンで進めます。
// 制御、プレイヤーのコマンド、タイマーは全てRunのループに直列化され、
// 1件処理するごとに差分を計算して接続中の全セッションへ配信します。
type Room struct {
	ID       RoomID
	sessions map[SessionID]*member

	pubsub      PubSub
	application Application // 外部からアプリケーションロジックを注入できる
	replicator  *replication.Replicator
	archiver    Archiver
	tracer      trace.Tracer

	cfg    RoomConfig
	ctrlCh chan roomCtrl
	done   chan struct{}

	pendingSfx []string
	createdAt  time.Time
	finishedAt time.Time
	fatal      error
	now        func() time.Time
}

func NewRoom(id RoomID, pubsub PubSub, application Application, archiver Archiver, cfg RoomConfig) *Room {
	if archiver == nil {
		archiver = nopArchiver{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Room{
		ID:          id,
		sessions:    make(map[SessionID]*member),
		pubsub:      pubsub,
		application: application,
		replicator:  replication.NewReplicator(),
		archiver:    archiver,
		tracer:      otel.Tracer("portofmars/server/domain"),
		cfg:         cfg,
		ctrlCh:      make(chan roomCtrl, 64),
		done:        make(chan struct{}),
		createdAt:   time.Now(),
		now:         time.Now,
	}
}

// Done はRunが終了すると閉じられます。
func (r *Room) Done() <-chan struct{} { return r.done }

// Join はセッションを着席させ、割り当てられたロールを返します。
// 着席したセッションには次の配信で全量の再同期が送られます。
func (r *Room) Join(ctx context.Context, sessionID SessionID, seat Seat) (string, error) {
	reply := make(chan joinResult, 1)
	if err := r.enqueue(ctx, roomCtrl{kind: ctrlJoin, sessionID: sessionID, seat: seat, reply: reply}); err != nil {
		return "", err
	}
	select {
	case res := <-reply:
		return res.role, res.err
	case <-r.done:
		return "", ErrRoomClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Leave はセッションを切り離します。codeは切断の分類に使われます。
func (r *Room) Leave(ctx context.Context, sessionID SessionID, code int32) error {
	return r.enqueue(ctx, roomCtrl{kind: ctrlLeave, sessionID: sessionID, code: code})
}

// RequestResync は次の配信でセッションに全量の再同期を送るよう要求します。ブロックしません。
func (r *Room) RequestResync(sessionID SessionID) error {
	select {
	case <-r.done:
		return ErrRoomClosed
	case r.ctrlCh <- roomCtrl{kind: ctrlResync, sessionID: sessionID}:
		return nil
	default:
		return ErrRoomBusy
	}
}

func (r *Room) enqueue(ctx context.Context, c roomCtrl) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomClosed
	case r.ctrlCh <- c:
		return nil
	}
}

// Run はルームのループです。ctxがキャンセルされるか、ゲームが終了して配信が済むか、
// 回復できないエラーが起きるまで戻りません。
func (r *Room) Run(ctx context.Context) error {
	defer close(r.done)

	// room宛のメッセージを購読
	roomTopic := RoomTopic(r.ID)
	msgCh := r.pubsub.Subscribe(roomTopic)
	defer r.pubsub.Unsubscribe(roomTopic, msgCh)

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll(context.WithoutCancel(ctx), CloseGoingAway, "server is shutting down")
			return nil
		case c := <-r.ctrlCh:
			r.handleControl(ctx, c)
		case msg := <-msgCh:
			r.handleMessage(ctx, msg)
		case <-ticker.C:
			r.handleTick(ctx)
		}

		if r.fatal == nil {
			if err := r.flush(ctx); err != nil {
				r.fatal = Fatal(err)
			}
		}
		if r.fatal != nil {
			slog.ErrorContext(ctx, "room fatal, tearing down", "room_id", r.ID, "err", r.fatal)
			r.broadcastError(ctx, "The game ended because of a server error.")
			r.closeAll(ctx, CloseInternalError, "room error")
			return r.fatal
		}
		if r.application.Terminal() && r.finishedAt.IsZero() {
			r.finishedAt = r.now()
		}
		if r.finished() {
			r.finalize(ctx)
			return nil
		}
	}
}

func (r *Room) handleControl(ctx context.Context, c roomCtrl) {
	switch c.kind {
	case ctrlJoin:
		role, err := r.application.Seat(ctx, c.seat)
		if err == nil {
			for id, m := range r.sessions {
				if m.role == role && id != c.sessionID {
					delete(r.sessions, id)
					r.publishClose(ctx, id, CloseReplaced, "replaced by a new connection")
				}
			}
			r.sessions[c.sessionID] = &member{role: role, resync: true}
			slog.InfoContext(ctx, "session joined room", "room_id", r.ID, "session_id", c.sessionID, "role", role)
		} else if errors.Is(err, ErrRoomFatal) {
			r.fatal = err
		}
		c.reply <- joinResult{role: role, err: err}
	case ctrlLeave:
		m, ok := r.sessions[c.sessionID]
		if !ok {
			return
		}
		delete(r.sessions, c.sessionID)
		kind := ClassifyDisconnect(c.code, r.application.Terminal())
		slog.InfoContext(ctx, "session left room", "room_id", r.ID, "session_id", c.sessionID, "role", m.role, "code", c.code, "disconnect", kind.String())
		if !r.roleAttached(m.role) {
			r.application.Detach(ctx, m.role)
		}
	case ctrlResync:
		if m, ok := r.sessions[c.sessionID]; ok {
			m.resync = true
		}
	default:
	}
}

func (r *Room) handleMessage(ctx context.Context, msg Message) {
	m, ok := r.sessions[msg.SessionID]
	if !ok {
		slog.WarnContext(ctx, "message from a session not in room", "room_id", r.ID, "session_id", msg.SessionID)
		return
	}
	ctx, span := r.tracer.Start(ctx, "room.handle", trace.WithAttributes(
		attribute.String("room.id", r.ID.String()),
		attribute.String("player.role", m.role),
	))
	defer span.End()

	effects, err := r.application.Handle(ctx, m.role, msg.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrRoomFatal) {
			r.fatal = err
			return
		}
		slog.InfoContext(ctx, "command rejected", "room_id", r.ID, "role", m.role, "err", err)
		r.sendError(ctx, msg.SessionID, UserMessage(err))
		return
	}
	r.pendingSfx = append(r.pendingSfx, effects.Sfx...)
}

func (r *Room) handleTick(ctx context.Context) {
	effects, err := r.application.Tick(ctx)
	if err != nil {
		if errors.Is(err, ErrRoomFatal) {
			r.fatal = err
			return
		}
		slog.WarnContext(ctx, "room tick failed", "room_id", r.ID, "err", err)
	}
	r.pendingSfx = append(r.pendingSfx, effects.Sfx...)
}

// flush は状態の差分を配信します。再同期を待っているセッションには差分の代わりに全量を送ります。
func (r *Room) flush(ctx context.Context) error {
	batch, err := r.replicator.Commit(r.application.State())
	if err != nil {
		return err
	}
	var frame, resync []byte
	if !batch.Empty() {
		if frame, err = EncodePatch(batch); err != nil {
			return err
		}
	}
	for id, m := range r.sessions {
		if m.resync {
			if resync == nil {
				if resync, err = EncodePatch(r.replicator.Resync()); err != nil {
					return err
				}
			}
			m.resync = !r.publishTo(ctx, id, resync)
			continue
		}
		if frame != nil && !r.publishTo(ctx, id, frame) {
			m.resync = true
		}
	}
	if len(r.pendingSfx) > 0 {
		sfx, err := EncodeSetSfx(r.pendingSfx)
		r.pendingSfx = nil
		if err != nil {
			return err
		}
		for id := range r.sessions {
			r.publishTo(ctx, id, sfx)
		}
	}
	return nil
}

func (r *Room) finished() bool {
	if r.finishedAt.IsZero() {
		return false
	}
	return len(r.sessions) == 0 || r.now().Sub(r.finishedAt) >= r.cfg.Linger
}

// finalize は終了したゲームをアーカイブし、残っている接続を閉じます。
func (r *Room) finalize(ctx context.Context) {
	record := ArchiveRecord{
		RoomID:      r.ID,
		CreatedAt:   r.createdAt,
		FinalizedAt: r.now(),
		GameRecord:  r.application.Record(),
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ArchiveTimeout)
	defer cancel()
	if err := r.archiver.Archive(actx, record); err != nil {
		slog.ErrorContext(ctx, "archive failed", "room_id", r.ID, "err", err)
	} else {
		slog.InfoContext(ctx, "room archived", "room_id", r.ID, "status", record.Status)
	}
	r.closeAll(ctx, CloseNormal, "game over")
}

func (r *Room) roleAttached(role string) bool {
	for _, m := range r.sessions {
		if m.role == role {
			return true
		}
	}
	return false
}

func (r *Room) publishTo(ctx context.Context, id SessionID, data []byte) bool {
	if err := r.pubsub.Publish(ctx, SessionTopic(id), Message{SessionID: id, Data: data}); err != nil {
		slog.WarnContext(ctx, "room publish failed", "room_id", r.ID, "session_id", id, "err", err)
		return false
	}
	return true
}

func (r *Room) publishClose(ctx context.Context, id SessionID, code int32, reason string) {
	msg := Message{SessionID: id, CloseCode: code, CloseReason: reason}
	if err := r.pubsub.Publish(ctx, SessionTopic(id), msg); err != nil {
		slog.WarnContext(ctx, "room close publish failed", "room_id", r.ID, "session_id", id, "err", err)
	}
}

func (r *Room) sendError(ctx context.Context, id SessionID, message string) {
	data, err := EncodeSetError(message)
	if err != nil {
		return
	}
	r.publishTo(ctx, id, data)
}

func (r *Room) broadcastError(ctx context.Context, message string) {
	for id := range r.sessions {
		r.sendError(ctx, id, message)
	}
}

func (r *Room) closeAll(ctx context.Context, code int32, reason string) {
	for id := range r.sessions {
		r.publishClose(ctx, id, code, reason)
	}
	clear(r.sessions)
}
