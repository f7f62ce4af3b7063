package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	adapterwebsocket "portofmars/server/adapter/websocket"
	"portofmars/server/domain"
	"portofmars/server/identity"
)

// GrantVerifier は着席許可を検証します。
type GrantVerifier interface {
	Verify(token string) (identity.SeatGrant, error)
}

// Rooms はルームへの入退室と、再接続のための着席中ルームの検索を提供します。
type Rooms interface {
	domain.RoomManager
	ActiveRoomFor(userID string) (domain.RoomID, bool)
}

type AcceptHandler struct {
	pubsub      domain.PubSub
	roomManager Rooms
	verifier    GrantVerifier
	cfg         domain.EndpointConfig
	origins     []string
}

func NewAcceptHandler(pubsub domain.PubSub, roomManager Rooms, verifier GrantVerifier, cfg domain.EndpointConfig, origins []string) *AcceptHandler {
	return &AcceptHandler{pubsub: pubsub, roomManager: roomManager, verifier: verifier, cfg: cfg, origins: origins}
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 本人確認はアップグレード前に済ませる
	grant, err := h.verifier.Verify(grantToken(r))
	if err != nil {
		slog.InfoContext(ctx, "seat grant rejected", "remote", r.RemoteAddr, "err", err)
		status := http.StatusUnauthorized
		if errors.Is(err, identity.ErrGrantMismatch) {
			status = http.StatusForbidden
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	roomID := domain.RoomID(grant.RoomID)
	if roomID.IsEmpty() {
		id, ok := h.roomManager.ActiveRoomFor(grant.UserID)
		if !ok {
			slog.InfoContext(ctx, "no active room to reconnect", "user_id", grant.UserID)
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		roomID = id
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.origins,
		InsecureSkipVerify: len(h.origins) == 0, // 開発用: Origin チェックをスキップ
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	session := domain.NewSession()
	transport := adapterwebsocket.NewTransportFrom(conn)
	connection := domain.NewConnection(session.ID(), transport)
	ticket := domain.Ticket{
		RoomID: roomID,
		Seat: domain.Seat{
			UserID:   grant.UserID,
			Username: grant.Username,
			Role:     grant.Role,
			Muted:    grant.Muted,
		},
	}
	endpoint, err := domain.NewSessionEndpoint(session, connection, h.pubsub, h.roomManager, ticket, h.cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session endpoint", "err", err)
		connection.Close(domain.CloseInternalError, "endpoint")
		return
	}
	slog.DebugContext(ctx, "accepted new connection", "session_id", session.ID(), "room_id", ticket.RoomID, "user_id", grant.UserID)
	if err := endpoint.Run(); err != nil {
		slog.InfoContext(ctx, "session endpoint finished", "session_id", session.ID(), "err", err)
	}
}

// grantToken はクエリの grant か Authorization ヘッダーのBearerトークンを返します。
// ブラウザのWebSocketはヘッダーを付けられないため、クエリを優先します。
func grantToken(r *http.Request) string {
	if token := r.URL.Query().Get("grant"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
