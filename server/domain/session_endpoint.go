package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrBackpressure は書き込みチャネルが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write channel is full, apply backpressure")
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
)

type EndpointConfig struct {
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
	WriteQueueSize    int
}

func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		HeartbeatInterval: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
		WriteQueueSize:    256,
	}
}

// Ticket は接続が入室するルームと席です。本人確認が済んだ後にハンドラが作ります。
type Ticket struct {
	RoomID RoomID
	Seat   Seat
}

// SessionEndpoint は1本の接続とルームの間を取り持ちます。
// 受信したコマンドはroom topicへ、自分宛のtopicに届いたデータは接続へ流します。
type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	session     *Session
	connection  *Connection
	pubsub      PubSub
	roomManager RoomManager
	ticket      Ticket
	cfg         EndpointConfig
	role        string

	ctrlCh  chan endpointEvent // 制御用チャネル
	writeCh chan []byte        // 書き込み用チャネル
	closeCh chan Message       // ルームからの切断要求

	// lifecycle
	closed atomic.Bool
}

func NewSessionEndpoint(session *Session, connection *Connection, pubsub PubSub, roomManager RoomManager, ticket Ticket, cfg EndpointConfig) (*SessionEndpoint, error) {
	if session == nil || connection == nil || pubsub == nil || roomManager == nil {
		return nil, ErrInitializationFailed
	}
	if ticket.RoomID.IsEmpty() {
		return nil, fmt.Errorf("%w: room id is required", ErrInitializationFailed)
	}
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = DefaultEndpointConfig().WriteQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	se := &SessionEndpoint{
		ctx:         ctx,
		cancel:      cancel,
		session:     session,
		connection:  connection,
		pubsub:      pubsub,
		roomManager: roomManager,
		ticket:      ticket,
		cfg:         cfg,
		ctrlCh:      make(chan endpointEvent, 16),
		writeCh:     make(chan []byte, cfg.WriteQueueSize),
		closeCh:     make(chan Message, 1),
	}
	return se, nil
}

// Role は着席したロールです。Runが入室に成功するまでは空です。
func (se *SessionEndpoint) Role() string { return se.role }

// Run はルームに入室し、接続が閉じるまでブロックします。
func (se *SessionEndpoint) Run() error {
	// 自分宛のメッセージを購読。入室直後の再同期を取りこぼさないよう、Joinより先に購読する
	sessionTopic := SessionTopic(se.session.ID())
	msgCh := se.pubsub.Subscribe(sessionTopic)
	defer se.pubsub.Unsubscribe(sessionTopic, msgCh)

	role, err := se.roomManager.Join(se.ctx, se.ticket.RoomID, se.session.ID(), se.ticket.Seat)
	if err != nil {
		se.reject(err)
		return fmt.Errorf("join room %s: %w", se.ticket.RoomID, err)
	}
	se.role = role
	slog.InfoContext(se.ctx, "session endpoint attached", "session_id", se.session.ID(), "room_id", se.ticket.RoomID, "role", role)

	// ロール通知は最初のフレームとして送る
	roleMsg, err := EncodeSetPlayerRole(role)
	if err != nil {
		se.close(CloseInternalError, "encode role")
		return err
	}
	if err := se.Send(roleMsg); err != nil {
		se.close(CloseInternalError, "send role")
		return err
	}

	heartbeat := NewHeartbeatService(se.cfg.HeartbeatInterval, se.session, se.writeCh)
	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.subscribeLoop(ctx, msgCh)
		return nil
	})
	eg.Go(func() error {
		heartbeat.Run(ctx)
		return nil
	})
	err = eg.Wait()

	leaveCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	se.roomManager.Leave(leaveCtx, se.ticket.RoomID, se.session.ID(), se.session.CloseCode())
	return err
}

func (se *SessionEndpoint) Send(data []byte) error {
	select {
	case se.writeCh <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close は正常終了として接続を閉じます。
func (se *SessionEndpoint) Close(ctx context.Context) {
	se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, code: CloseNormal})
}

func (se *SessionEndpoint) ForceClose() {
	se.close(CloseGoingAway, "")
}

// ownerLoop は論理セッションの状態を監視し、必要に応じて接続の管理を行います。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-se.ctrlCh:
			se.handleControlEvent(ctx, ev)
		case <-ticker.C:
			ok, reason := se.session.IsIdle(se.cfg.IdleTimeout)
			if ok {
				se.handleControlEvent(ctx, endpointEvent{
					kind: evClose,
					code: CloseGoingAway,
					err:  errors.New("idle: " + reason.String()),
				})
			}
		}
	}
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	for {
		data, err := se.connection.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			code := CloseAbnormal
			var ce *CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			se.sendCtrlEvent(ctx, endpointEvent{kind: evReadError, code: code, err: err})
			return
		}
		se.session.TouchRead()
		se.handleData(ctx, data)
	}
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-se.writeCh:
			if !se.write(ctx, data) {
				return
			}
		case msg := <-se.closeCh:
			// 切断要求より前に積まれたフレームは書き出してから閉じる
		DRAIN:
			for {
				select {
				case data := <-se.writeCh:
					if !se.write(ctx, data) {
						return
					}
				default:
					break DRAIN
				}
			}
			se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, code: msg.CloseCode, err: errors.New(msg.CloseReason)})
			return
		}
	}
}

func (se *SessionEndpoint) write(ctx context.Context, data []byte) bool {
	if err := se.connection.Write(ctx, data); err != nil {
		se.sendCtrlEvent(ctx, endpointEvent{kind: evWriteError, code: CloseAbnormal, err: err})
		return false
	}
	se.session.TouchWrite()
	return true
}

// subscribeLoop はpubsubからのメッセージをwriteChに転送します。
func (se *SessionEndpoint) subscribeLoop(ctx context.Context, msgCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if msg.CloseCode != 0 {
				select {
				case se.closeCh <- msg:
				default:
				}
				continue
			}
			select {
			case se.writeCh <- msg.Data:
				// 送信成功
			default:
				slog.WarnContext(ctx, "subscribeLoop: writeCh full, message dropped", "session_id", se.session.ID())
				se.sendCtrlEvent(ctx, endpointEvent{kind: evDropped})
			}
		}
	}
}

func (se *SessionEndpoint) close(code int32, reason string) {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	se.session.Close(code)
	se.cancel()
	se.connection.Close(code, reason)
}

// reject は入室に失敗したことをクライアントに伝えてから接続を閉じます。
func (se *SessionEndpoint) reject(err error) {
	slog.WarnContext(se.ctx, "join rejected", "session_id", se.session.ID(), "room_id", se.ticket.RoomID, "err", err)
	if data, encErr := EncodeSetError(UserMessage(err)); encErr == nil {
		ctx, cancel := context.WithTimeout(se.ctx, 2*time.Second)
		_ = se.connection.Write(ctx, data)
		cancel()
	}
	se.close(ClosePolicyViolation, "join rejected")
}

func (se *SessionEndpoint) handleData(ctx context.Context, data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		slog.WarnContext(ctx, "failed to decode frame", "session_id", se.session.ID(), "err", err)
		se.sendError(UserMessage(ErrInvalidCommand))
		return
	}
	switch env.Type {
	case TypePong:
		se.sendCtrlEvent(ctx, endpointEvent{kind: evPong})
	case TypeResyncRequest:
		slog.InfoContext(ctx, "client requested resync", "session_id", se.session.ID())
		se.roomManager.RequestResync(ctx, se.ticket.RoomID, se.session.ID())
	default:
		// コマンドはroom topicに転送し、Applicationが解釈する
		err := se.pubsub.Publish(ctx, RoomTopic(se.ticket.RoomID), Message{
			SessionID: se.session.ID(),
			Data:      data,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to forward command", "session_id", se.session.ID(), "type", env.Type, "err", err)
			se.sendError(UserMessage(err))
		}
	}
}

func (se *SessionEndpoint) sendError(message string) {
	data, err := EncodeSetError(message)
	if err != nil {
		return
	}
	if err := se.Send(data); err != nil {
		slog.Warn("set-error dropped", "session_id", se.session.ID(), "err", err)
	}
}

// handleControlEvent は制御チャネルからのイベントを処理し論理セッションの状態を更新する唯一の関数です。
func (se *SessionEndpoint) handleControlEvent(ctx context.Context, ev endpointEvent) {
	switch ev.kind {
	case evClose:
		reason := ""
		if ev.err != nil {
			reason = ev.err.Error()
		}
		se.close(ev.code, reason)
	case evPong:
		se.session.TouchPong()
	case evReadError, evWriteError:
		slog.DebugContext(ctx, "connection lost", "session_id", se.session.ID(), "code", ev.code, "err", ev.err)
		se.close(ev.code, "")
	case evDropped:
		se.roomManager.RequestResync(ctx, se.ticket.RoomID, se.session.ID())
	default:
		slog.WarnContext(ctx, "unknown endpoint event kind", "kind", ev.kind)
	}
}

func (se *SessionEndpoint) sendCtrlEvent(ctx context.Context, ev endpointEvent) {
	select {
	case se.ctrlCh <- ev:
	case <-ctx.Done():
	}
}
