package adapterwebsocket

import (
	"context"
	"errors"

	"github.com/coder/websocket"

	"portofmars/server/domain"
)

type wsTransport struct {
	conn *websocket.Conn
}

func NewTransportFrom(conn *websocket.Conn) domain.Transport {
	return &wsTransport{conn: conn}
}

// Read はテキストフレームを1つ読みます。ピアからのクローズは domain.CloseError に変換します。
func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		if status := websocket.CloseStatus(err); status != -1 {
			var ce websocket.CloseError
			reason := ""
			if errors.As(err, &ce) {
				reason = ce.Reason
			}
			return nil, &domain.CloseError{Code: int32(status), Reason: reason}
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// Close はクローズフレームを送ります。送信できない予約コードは 1001 に置き換えます。
func (t *wsTransport) Close(code int32, reason string) error {
	switch code {
	case domain.CloseNoStatus, domain.CloseAbnormal, domain.CloseTLSHandshake, 0:
		code = domain.CloseGoingAway
	}
	return t.conn.Close(websocket.StatusCode(code), reason)
}
