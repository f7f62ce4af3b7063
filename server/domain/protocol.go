package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"portofmars/server/replication"
)

var ErrMalformedFrame = errors.New("malformed frame")

type MessageType string

// サーバーからクライアントへ
const (
	TypePatch         MessageType = "patch"
	TypeSetSfx        MessageType = "set-sfx"
	TypeSetPlayerRole MessageType = "set-player-role"
	TypeSetError      MessageType = "set-error"
	TypePing          MessageType = "ping"
)

// クライアントからサーバーへ。ゲームのコマンドはApplicationが解釈する。
const (
	TypePong          MessageType = "pong"
	TypeResyncRequest MessageType = "resync-request"
)

// Envelope はWebSocketの1フレームです。
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SetSfxPayload struct {
	Sfx []string `json:"sfx"`
}

type SetPlayerRolePayload struct {
	Role string `json:"role"`
}

type SetErrorPayload struct {
	Message string `json:"message"`
}

// Encode はpayloadをEnvelopeに包んでエンコードします。payloadがnilの場合は省略します。
func Encode(t MessageType, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("%w: empty type", ErrMalformedFrame)
	}
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return env, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Payload) == 0 {
		return out, fmt.Errorf("%w: empty payload for type %q", ErrMalformedFrame, env.Type)
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return out, nil
}

func EncodePatch(b replication.Batch) ([]byte, error) {
	return Encode(TypePatch, b)
}

func EncodeSetError(message string) ([]byte, error) {
	return Encode(TypeSetError, SetErrorPayload{Message: message})
}

func EncodeSetSfx(sfx []string) ([]byte, error) {
	return Encode(TypeSetSfx, SetSfxPayload{Sfx: sfx})
}

func EncodeSetPlayerRole(role string) ([]byte, error) {
	return Encode(TypeSetPlayerRole, SetPlayerRolePayload{Role: role})
}

var pingFrame = []byte(`{"type":"ping"}`)

// EncodePingMessage はハートビート用のpingフレームを返します。
func EncodePingMessage() []byte {
	return pingFrame
}
