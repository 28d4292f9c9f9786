package topics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pushbridge/internal/eventbus"
	"pushbridge/internal/push"
	"pushbridge/internal/runtime/supervisor"
	logx "pushbridge/pkg/logx"
)

type staticTokens struct{ token *string }

func (s staticTokens) Current() *string { return s.token }

type recordedCall struct {
	path string
	auth string
	body batchRequest
}

func newPlatform(t *testing.T, status int) (*httptest.Server, func() []recordedCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []recordedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body batchRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		calls = append(calls, recordedCall{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedCall(nil), calls...)
	}
}

func startClient(t *testing.T, c *Client) {
	t.Helper()
	sup := supervisor.New(context.Background())
	c.Start(sup)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.TopicInfo {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e.Data.(eventbus.TopicInfo)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return eventbus.TopicInfo{}
		}
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	t.Parallel()
	srv, calls := newPlatform(t, http.StatusOK)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	c := New(Config{Endpoint: srv.URL + "/", ServerKey: "secret", Workers: 1},
		staticTokens{token: push.StringPtr("tok")}, logx.Nop(), bus, nil)
	startClient(t, c)

	c.Subscribe("news")
	waitEvent(t, events, eventbus.TypeTopicDone)
	c.Unsubscribe("news")
	waitEvent(t, events, eventbus.TypeTopicDone)

	got := calls()
	if len(got) != 2 {
		t.Fatalf("calls = %d, want 2", len(got))
	}
	if got[0].path != "/iid/v1:batchAdd" || got[1].path != "/iid/v1:batchRemove" {
		t.Fatalf("paths = %q, %q", got[0].path, got[1].path)
	}
	if got[0].auth != "Bearer secret" {
		t.Fatalf("auth = %q", got[0].auth)
	}
	if got[0].body.To != "/topics/news" || len(got[0].body.RegistrationTokens) != 1 || got[0].body.RegistrationTokens[0] != "tok" {
		t.Fatalf("body = %+v", got[0].body)
	}
}

func TestFailuresArePublished(t *testing.T) {
	t.Parallel()
	srv, _ := newPlatform(t, http.StatusBadRequest)

	tests := []struct {
		name   string
		tokens TokenSource
		topic  string
	}{
		{name: "platform error", tokens: staticTokens{token: push.StringPtr("tok")}, topic: "news"},
		{name: "no token", tokens: staticTokens{}, topic: "news"},
		{name: "invalid topic", tokens: staticTokens{token: push.StringPtr("tok")}, topic: "bad topic!"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bus := eventbus.New()
			events, unsub := bus.Subscribe(16)
			defer unsub()

			c := New(Config{Endpoint: srv.URL, Workers: 1}, tt.tokens, logx.Nop(), bus, nil)
			startClient(t, c)
			c.Subscribe(tt.topic)

			info := waitEvent(t, events, eventbus.TypeTopicFailed)
			if info.Op != OpSubscribe || info.Topic != tt.topic || info.Error == "" {
				t.Fatalf("failure event = %+v", info)
			}
		})
	}
}

func TestQueueFullDrops(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	// Not started: nothing drains the queue.
	c := New(Config{QueueSize: 1}, staticTokens{}, logx.Nop(), bus, nil)
	c.Subscribe("a")
	c.Subscribe("b")

	info := waitEvent(t, events, eventbus.TypeTopicFailed)
	if info.Topic != "b" || info.Error != ErrQueueFull.Error() {
		t.Fatalf("failure event = %+v", info)
	}
}

func TestValidTopic(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]bool{
		"news":         true,
		"a-b_c.d~e%20": true,
		"":             false,
		"with space":   false,
		"/topics/x":    false,
	} {
		if got := ValidTopic(name); got != want {
			t.Errorf("ValidTopic(%q) = %v, want %v", name, got, want)
		}
	}
}
