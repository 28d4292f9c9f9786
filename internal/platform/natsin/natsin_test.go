package natsin

import (
	"context"
	"errors"
	"testing"
	"time"

	"pushbridge/internal/push"
	logx "pushbridge/pkg/logx"
)

type recordingPublisher struct {
	events []push.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, ev push.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func newTestClient(pub Publisher) *Client {
	return &Client{pub: pub, log: logx.Nop(), timeout: time.Second}
}

func TestHandle(t *testing.T) {
	t.Parallel()
	pub := &recordingPublisher{}
	c := newTestClient(pub)

	if err := c.handle([]byte(`{"action":"io.flutter.plugins.firebasemessaging.TOKEN","token":"t"}`)); err != nil {
		t.Fatal(err)
	}
	if err := c.handle([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	if tr, ok := pub.events[0].(push.TokenRefreshed); !ok || tr.Token == nil || *tr.Token != "t" {
		t.Fatalf("event = %#v", pub.events[0])
	}
}

func TestHandlePublishError(t *testing.T) {
	t.Parallel()
	want := errors.New("closed")
	c := newTestClient(&recordingPublisher{err: want})
	if err := c.handle([]byte(`{"action":"x"}`)); !errors.Is(err, want) {
		t.Fatalf("handle = %v, want %v", err, want)
	}
}

func TestConnectRequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := Connect(Config{}, &recordingPublisher{}, logx.Nop()); err == nil {
		t.Fatal("expected error without url")
	}
	var c *Client
	c.Close()
	if c.IsConnected() {
		t.Fatal("nil client reports connected")
	}
}
