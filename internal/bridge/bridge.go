// Package bridge turns platform events and notification-tap launch signals
// into outbound consumer calls.
//
// Every recognized event yields exactly one Outbound.Invoke; nothing is
// coalesced. Event handling mutates no shared state besides the outbound
// channel, so OnPlatformEvent is safe for concurrent use. The only state the
// bridge owns is the last consumed launch signal, guarded by a mutex.
package bridge

import (
	"context"
	"sync"

	"pushbridge/internal/eventbus"
	"pushbridge/internal/launch"
	"pushbridge/internal/metrics"
	"pushbridge/internal/payload"
	"pushbridge/internal/push"
	logx "pushbridge/pkg/logx"
)

// Outbound is the ordered call interface to the single consumer.
//
// Implementations must serialize their own writes: concurrent Invoke calls
// are delivered in some total order, never interleaved. Invoke must not wait
// for delivery.
type Outbound interface {
	Invoke(method push.Method, payload any)
}

type Option func(*Bridge)

func WithLogger(log logx.Logger) Option { return func(b *Bridge) { b.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(b *Bridge) { b.bus = bus } }

func WithMetrics(m *metrics.Metrics) Option { return func(b *Bridge) { b.metrics = m } }

type Bridge struct {
	out     Outbound
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics

	mu           sync.Mutex
	lastConsumed *push.LaunchSignal
}

// New builds a bridge bound to out for its whole lifetime.
func New(out Outbound, opts ...Option) *Bridge {
	b := &Bridge{out: out}
	for _, o := range opts {
		o(b)
	}
	if b.log.IsZero() {
		b.log = logx.Nop()
	}
	return b
}

// OnPlatformEvent routes one platform event to its outbound call.
// Unrecognized kinds are dropped silently.
func (b *Bridge) OnPlatformEvent(ev push.Event) {
	switch e := ev.(type) {
	case push.TokenRefreshed:
		b.metrics.IncPlatformEvent(e.Kind())
		// A nil token is meaningful ("token cleared") and goes out as null.
		var token any
		if e.Token != nil {
			token = *e.Token
		}
		b.invoke(push.MethodToken, token)
	case push.MessageReceived:
		b.metrics.IncPlatformEvent(e.Kind())
		b.invoke(push.MethodMessage, payload.NormalizeMessage(e.Envelope))
	case push.Unrecognized:
		b.metrics.IncPlatformEvent(e.Kind())
		b.log.Trace("ignoring broadcast", logx.String("action", e.Action))
		eventbus.Publish(b.bus, eventbus.TypeIgnored, e.Action)
	default:
		b.metrics.IncPlatformEvent("unrecognized")
	}
}

// OnAppLaunchOrResume emits onLaunch (fresh start) or onResume for a
// notification-tap signal and records it as the last consumed signal.
//
// It returns false, without any call or state change, when sig is not a tap
// or carries no extras. On true the host is expected to make sig its current
// launch signal.
func (b *Bridge) OnAppLaunchOrResume(sig push.LaunchSignal, isFreshLaunch bool) bool {
	extras, ok := launch.Classify(sig)
	if !ok {
		b.metrics.IncLaunch("ignored")
		return false
	}

	method := push.MethodResume
	if isFreshLaunch {
		method = push.MethodLaunch
	}

	b.mu.Lock()
	consumed := sig
	b.lastConsumed = &consumed
	b.mu.Unlock()

	b.metrics.IncLaunch(string(method))
	b.invoke(method, extras)
	eventbus.Publish(b.bus, eventbus.TypeLaunchConsumed, eventbus.CallInfo{Method: method.String(), ID: sig.ID})
	return true
}

// Consumed reports whether sig is the signal most recently consumed by
// OnAppLaunchOrResume. Signals without an ID are never considered consumed.
func (b *Bridge) Consumed(sig push.LaunchSignal) bool {
	if sig.ID == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastConsumed != nil && b.lastConsumed.ID == sig.ID
}

// LastConsumed returns the last consumed launch signal, if any.
func (b *Bridge) LastConsumed() (push.LaunchSignal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastConsumed == nil {
		return push.LaunchSignal{}, false
	}
	return *b.lastConsumed, true
}

// Run feeds events from the multiplexed platform stream into OnPlatformEvent
// until ctx is done or the stream closes.
func (b *Bridge) Run(ctx context.Context, events <-chan push.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.OnPlatformEvent(ev)
		}
	}
}

func (b *Bridge) invoke(method push.Method, p any) {
	b.log.Debug("dispatch", logx.String("method", method.String()))
	b.out.Invoke(method, p)
	eventbus.Publish(b.bus, eventbus.TypeDispatched, eventbus.CallInfo{Method: method.String()})
}
