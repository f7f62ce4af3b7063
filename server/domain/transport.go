package domain

import (
	"context"
	"fmt"
)

//go:generate go tool mockgen -destination=./mocks/transport_mock.go -package=mocks . Transport

// Transport は Connection（物理接続）が依存するI/O境界です。
type Transport interface {
	Read(ctx context.Context) (data []byte, err error)
	Write(ctx context.Context, data []byte) error
	Close(code int32, reason string) error
}

// CloseError はピアから受け取ったクローズフレームを表します。
// Transport の実装は Read のエラーをこの型で包んで返します。
type CloseError struct {
	Code   int32
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: code=%d reason=%q", e.Code, e.Reason)
}
