package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMutation は状態木の不変条件に反する変更を拒否したときのエラーです。
	// 状態は変更されず、操作したクライアントにのみ set-error で通知されます。
	ErrInvalidMutation = errors.New("invalid mutation")
	// ErrInvalidCommand はクライアントから受け取ったコマンドを解釈できないときのエラーです。
	ErrInvalidCommand = errors.New("invalid command")
	// ErrRoomFatal は回復できないルームのエラーです。ルームは破棄され、全ての接続が閉じられます。
	ErrRoomFatal = errors.New("room fatal")

	ErrRoleTaken   = errors.New("role is already seated")
	ErrRoomFull    = errors.New("room is full")
	ErrRoomClosed  = errors.New("room is closed")
	ErrRoomBusy    = errors.New("room control channel is full")
	ErrRoomMissing = errors.New("room not found")
)

// Invalid はErrInvalidMutationを包んだエラーを作ります。メッセージはそのままプレイヤーに表示されます。
func Invalid(format string, args ...any) error {
	return &userError{msg: fmt.Sprintf(format, args...), kind: ErrInvalidMutation}
}

// Fatal はcauseをErrRoomFatalとして包みます。
func Fatal(cause error) error {
	return fmt.Errorf("%w: %w", ErrRoomFatal, cause)
}

type userError struct {
	msg  string
	kind error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.kind }

// UserMessage はプレイヤーに表示してよいエラーメッセージを返します。
func UserMessage(err error) string {
	var ue *userError
	if errors.As(err, &ue) {
		return ue.msg
	}
	switch {
	case errors.Is(err, ErrInvalidCommand):
		return "That action could not be understood."
	case errors.Is(err, ErrRoleTaken):
		return "That role is already taken."
	case errors.Is(err, ErrRoomFull):
		return "This game is full."
	case errors.Is(err, ErrSubscriberFull), errors.Is(err, ErrRoomBusy):
		return "The game is busy, please try again."
	case errors.Is(err, ErrRoomClosed), errors.Is(err, ErrRoomMissing):
		return "This game is no longer available."
	default:
		return "Something went wrong."
	}
}
