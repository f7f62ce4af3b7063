package domain

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatService は定期的にpingメッセージを送信する死活監視サービスです。
// クライアントはpongを返し、SessionEndpointがそれを最終応答時刻として記録します。
type HeartbeatService struct {
	pingInterval time.Duration
	session      *Session
	writeCh      chan<- []byte
}

// NewHeartbeatService は新しいHeartbeatServiceを生成します。
func NewHeartbeatService(pingInterval time.Duration, session *Session, writeCh chan<- []byte) *HeartbeatService {
	return &HeartbeatService{
		pingInterval: pingInterval,
		session:      session,
		writeCh:      writeCh,
	}
}

// Run はpingInterval間隔でpingメッセージをwriteChに送信します。
// ctxがキャンセルされると終了します。pingIntervalが0以下なら何もしません。
func (h *HeartbeatService) Run(ctx context.Context) {
	if h.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case h.writeCh <- EncodePingMessage():
				slog.DebugContext(ctx, "heartbeat: ping sent", "session_id", h.session.ID())
			default:
				slog.WarnContext(ctx, "heartbeat: writeCh full, ping dropped", "session_id", h.session.ID())
			}
		}
	}
}
