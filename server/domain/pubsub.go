package domain

import (
	"context"
	"errors"
	"sync"
)

//go:generate go tool mockgen -destination=./mocks/pubsub_mock.go -package=mocks . PubSub

var ErrSubscriberFull = errors.New("subscriber channel is full, message dropped")

type Topic string

func SessionTopic(id SessionID) Topic { return Topic("session:" + id.String()) }
func RoomTopic(id RoomID) Topic       { return Topic("room:" + id.String()) }

// Message はトピックに流れる1件のメッセージです。
// CloseCode が0以外の場合、受け取ったセッションはそれまでのデータを書き出した後に接続を閉じます。
type Message struct {
	SessionID   SessionID
	Data        []byte
	CloseCode   int32
	CloseReason string
}

// PubSub はルームとセッションエンドポイントの間のメッセージ配送を担当します。
// Publish はブロックせず、満杯の購読者へのメッセージは落として ErrSubscriberFull を返します。
type PubSub interface {
	Publish(ctx context.Context, topic Topic, msg Message) error
	Subscribe(topic Topic) <-chan Message
	Unsubscribe(topic Topic, ch <-chan Message)
}

type SimplePubSub struct {
	mu     sync.RWMutex
	subs   map[Topic][]chan Message
	buffer int
}

var _ PubSub = (*SimplePubSub)(nil)

func NewSimplePubSub(buffer int) *SimplePubSub {
	if buffer <= 0 {
		buffer = 256
	}
	return &SimplePubSub{
		subs:   make(map[Topic][]chan Message),
		buffer: buffer,
	}
}

func (p *SimplePubSub) Publish(ctx context.Context, topic Topic, msg Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var dropped bool
	for _, ch := range p.subs[topic] {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- msg:
		default:
			dropped = true
		}
	}
	if dropped {
		return ErrSubscriberFull
	}
	return nil
}

func (p *SimplePubSub) Subscribe(topic Topic) <-chan Message {
	ch := make(chan Message, p.buffer)
	p.mu.Lock()
	p.subs[topic] = append(p.subs[topic], ch)
	p.mu.Unlock()
	return ch
}

// Unsubscribe は購読を解除します。チャネルは閉じません。
func (p *SimplePubSub) Unsubscribe(topic Topic, ch <-chan Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := p.subs[topic]
	for i, c := range subs {
		if c == ch {
			p.subs[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(p.subs[topic]) == 0 {
		delete(p.subs, topic)
	}
}
