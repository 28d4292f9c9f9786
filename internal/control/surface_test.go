package control

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pushbridge/internal/metrics"
	"pushbridge/internal/push"
	"pushbridge/internal/storage"
)

type fakeTokens struct{ requests int }

func (f *fakeTokens) RequestToken() { f.requests++ }

type fakeHost struct {
	sig     push.LaunchSignal
	present bool
}

func (f fakeHost) CurrentLaunch() (push.LaunchSignal, bool) { return f.sig, f.present }

type fakeBridge struct {
	consumedID string
	launches   []push.LaunchSignal
}

func (f *fakeBridge) OnAppLaunchOrResume(sig push.LaunchSignal, fresh bool) bool {
	if !fresh {
		panic("configure must replay as a fresh launch")
	}
	f.launches = append(f.launches, sig)
	f.consumedID = sig.ID
	return true
}

func (f *fakeBridge) Consumed(sig push.LaunchSignal) bool {
	return sig.ID != "" && sig.ID == f.consumedID
}

type fakeTopics struct{ subs, unsubs []string }

func (f *fakeTopics) Subscribe(t string)   { f.subs = append(f.subs, t) }
func (f *fakeTopics) Unsubscribe(t string) { f.unsubs = append(f.unsubs, t) }

type failingStore struct{}

func (failingStore) Get(context.Context, string, string) (string, bool, error) {
	return "", false, errors.New("unavailable")
}
func (failingStore) Set(context.Context, string, string, string) error { return errors.New("unavailable") }
func (failingStore) Close() error                                        { return nil }

func TestParseRequestKind(t *testing.T) {
	t.Parallel()
	tests := map[string]RequestKind{
		"configure":            RequestConfigure,
		"subscribeToTopic":     RequestSubscribe,
		"unsubscribeFromTopic": RequestUnsubscribe,
		"isCallReceiver":       RequestIsCallReceiver,
		"Configure":            RequestUnknown,
		"getToken":             RequestUnknown,
		"":                     RequestUnknown,
	}
	for method, want := range tests {
		if got := ParseRequestKind(method); got != want {
			t.Errorf("ParseRequestKind(%q) = %v, want %v", method, got, want)
		}
	}
	if RequestUnknown.String() != "unknown" || RequestSubscribe.String() != "subscribeToTopic" {
		t.Fatal("unexpected String()")
	}
}

func TestConfigure(t *testing.T) {
	t.Parallel()
	click := push.LaunchSignal{ID: "l1", Action: push.ClickSentinel, Extras: map[string]any{"k": "v"}}

	tests := []struct {
		name      string
		host      fakeHost
		wantCalls int
	}{
		{name: "no launch", host: fakeHost{}, wantCalls: 0},
		{name: "pending launch replayed", host: fakeHost{sig: click, present: true}, wantCalls: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tokens := &fakeTokens{}
			br := &fakeBridge{}
			s := New(Deps{Tokens: tokens, Host: tt.host, Bridge: br})

			resp := s.Handle(context.Background(), Request{Method: "configure"})
			if resp.Status != StatusOK || resp.Result != nil {
				t.Fatalf("response = %+v", resp)
			}
			if tokens.requests != 1 {
				t.Fatalf("token requests = %d, want 1", tokens.requests)
			}
			if len(br.launches) != tt.wantCalls {
				t.Fatalf("launch calls = %d, want %d", len(br.launches), tt.wantCalls)
			}

			// A second configure re-requests the token but does not replay
			// an already consumed launch.
			s.Handle(context.Background(), Request{Method: "configure"})
			if tokens.requests != 2 || len(br.launches) != tt.wantCalls {
				t.Fatalf("after second configure: tokens=%d launches=%d", tokens.requests, len(br.launches))
			}
		})
	}
}

func TestTopicRequests(t *testing.T) {
	t.Parallel()
	topics := &fakeTopics{}
	s := New(Deps{Topics: topics})
	ctx := context.Background()

	if resp := s.Handle(ctx, Request{Method: "subscribeToTopic", Args: json.RawMessage(`"news"`)}); resp.Status != StatusOK {
		t.Fatalf("subscribe = %+v", resp)
	}
	if resp := s.Handle(ctx, Request{Method: "unsubscribeFromTopic", Args: json.RawMessage(`"news"`)}); resp.Status != StatusOK {
		t.Fatalf("unsubscribe = %+v", resp)
	}
	if len(topics.subs) != 1 || topics.subs[0] != "news" || len(topics.unsubs) != 1 {
		t.Fatalf("topics = %+v", topics)
	}

	for _, args := range []string{``, `42`, `null`, `{"topic":"x"}`} {
		resp := s.Handle(ctx, Request{Method: "subscribeToTopic", Args: json.RawMessage(args)})
		if resp.Status != StatusError || resp.Error == "" {
			t.Fatalf("args %q: response = %+v, want error", args, resp)
		}
	}
}

func TestIsCallReceiver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := storage.NewMemory()
	tests := []struct {
		name  string
		store storage.Store
		setup func()
		want  bool
	}{
		{name: "no store", store: nil, want: false},
		{name: "unset", store: storage.NewMemory(), want: false},
		{name: "store error", store: failingStore{}, want: false},
		{name: "set true", store: mem, setup: func() { _ = storage.SetBool(ctx, mem, DefaultFlagNamespace, DefaultFlagKey, true) }, want: true},
	}
	for _, tt := range tests {
		if tt.setup != nil {
			tt.setup()
		}
		s := New(Deps{Store: tt.store})
		resp := s.Handle(ctx, Request{Method: "isCallReceiver"})
		if resp.Status != StatusOK || resp.Result != tt.want {
			t.Errorf("%s: response = %+v, want ok %v", tt.name, resp, tt.want)
		}
	}
}

func TestFlagLocationIsConfigurable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	_ = storage.SetBool(ctx, st, "Other", "FLAG", true)

	s := New(Deps{Store: st})
	if got := s.Handle(ctx, Request{Method: "isCallReceiver"}).Result; got != false {
		t.Fatalf("default location = %v, want false", got)
	}
	s.SetFlagLocation(FlagLocation{Namespace: "Other", Key: "FLAG"})
	if got := s.Handle(ctx, Request{Method: "isCallReceiver"}).Result; got != true {
		t.Fatalf("moved location = %v, want true", got)
	}
	s.SetFlagLocation(FlagLocation{})
	if loc := s.FlagLocation(); loc.Namespace != DefaultFlagNamespace || loc.Key != DefaultFlagKey {
		t.Fatalf("empty location = %+v, want defaults", loc)
	}
}

func TestUnknownRequestCounted(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	s := New(Deps{Metrics: m})

	resp := s.Handle(context.Background(), Request{Method: "deleteInstanceID"})
	if resp.Status != StatusNotImplemented {
		t.Fatalf("status = %s", resp.Status)
	}
	if got := testutil.ToFloat64(m.ControlRequests.WithLabelValues("unknown", "not_implemented")); got != 1 {
		t.Fatalf("counter = %v, want 1", got)
	}
}
