package domain_test

import (
	"context"
	"errors"
	"testing"

	"portofmars/server/domain"
)

func TestSimplePubSub_DeliversToTopicSubscribers(t *testing.T) {
	ps := domain.NewSimplePubSub(4)
	a := ps.Subscribe("room:1")
	b := ps.Subscribe("room:1")
	other := ps.Subscribe("room:2")

	if err := ps.Publish(context.Background(), "room:1", domain.Message{Data: []byte("hi")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, ch := range []<-chan domain.Message{a, b} {
		if msg := <-ch; string(msg.Data) != "hi" {
			t.Fatalf("data = %q", msg.Data)
		}
	}
	select {
	case msg := <-other:
		t.Fatalf("unexpected delivery to other topic: %+v", msg)
	default:
	}
}

func TestSimplePubSub_DropsWhenSubscriberFull(t *testing.T) {
	ps := domain.NewSimplePubSub(1)
	ch := ps.Subscribe("session:x")
	ctx := context.Background()

	if err := ps.Publish(ctx, "session:x", domain.Message{Data: []byte("1")}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := ps.Publish(ctx, "session:x", domain.Message{Data: []byte("2")}); !errors.Is(err, domain.ErrSubscriberFull) {
		t.Fatalf("err = %v, want ErrSubscriberFull", err)
	}
	if msg := <-ch; string(msg.Data) != "1" {
		t.Fatalf("data = %q, want 1", msg.Data)
	}
}

func TestSimplePubSub_Unsubscribe(t *testing.T) {
	ps := domain.NewSimplePubSub(1)
	ch := ps.Subscribe("session:x")
	ps.Unsubscribe("session:x", ch)

	if err := ps.Publish(context.Background(), "session:x", domain.Message{}); err != nil {
		t.Fatalf("publish without subscribers: %v", err)
	}
	select {
	case <-ch:
		t.Fatal("unsubscribed channel received a message")
	default:
	}
}

func TestTopics(t *testing.T) {
	if got := domain.SessionTopic("abc"); got != "session:abc" {
		t.Fatalf("session topic = %s", got)
	}
	if got := domain.RoomTopic("r1"); got != "room:r1" {
		t.Fatalf("room topic = %s", got)
	}
}
