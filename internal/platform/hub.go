// Package platform is the bridge's side of the push-notification platform:
// a multiplexed event stream fed by ingress adapters (HTTP, NATS), the
// last-known registration token, and the asynchronous token rebroadcast that
// configure triggers.
package platform

import (
	"context"
	"errors"
	"sync"

	"pushbridge/internal/eventbus"
	"pushbridge/internal/push"
	logx "pushbridge/pkg/logx"
)

var ErrClosed = errors.New("platform hub closed")

// Hub multiplexes platform events from every ingress into one stream.
//
// It is safe for concurrent use.
type Hub struct {
	log    logx.Logger
	bus    eventbus.Bus
	tokens *TokenCache

	events    chan push.Event
	done      chan struct{}
	closeOnce sync.Once

	// mu guards closing events: senders hold it shared while sending.
	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

func NewHub(buffer int, tokens *TokenCache, log logx.Logger, bus eventbus.Bus) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if tokens == nil {
		tokens = NewTokenCache(nil, log)
	}
	return &Hub{
		log:    log,
		bus:    bus,
		tokens: tokens,
		events: make(chan push.Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events is the multiplexed stream. It is closed by Close.
func (h *Hub) Events() <-chan push.Event { return h.events }

// Tokens returns the hub's token cache.
func (h *Hub) Tokens() *TokenCache { return h.tokens }

// Publish enqueues ev, blocking until there is room, ctx ends or the hub
// closes. A TokenRefreshed event also updates the token cache.
func (h *Hub) Publish(ctx context.Context, ev push.Event) error {
	if ev == nil {
		return nil
	}
	if tr, ok := ev.(push.TokenRefreshed); ok {
		h.tokens.Set(ctx, tr.Token)
	}
	return h.enqueue(ctx, ev)
}

func (h *Hub) enqueue(ctx context.Context, ev push.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed || h.isDone() {
		return ErrClosed
	}
	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrClosed
	}
}

func (h *Hub) isDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// RequestToken asks the platform to rebroadcast the current token. It returns
// immediately; the token surfaces later as a TokenRefreshed event on the
// stream, possibly carrying nil when no token was ever issued.
func (h *Hub) RequestToken() {
	h.mu.RLock()
	if h.closed || h.isDone() {
		h.mu.RUnlock()
		return
	}
	h.wg.Add(1)
	h.mu.RUnlock()

	eventbus.Publish(h.bus, eventbus.TypeTokenRequested, nil)
	go func() {
		defer h.wg.Done()
		ev := push.TokenRefreshed{Token: h.tokens.Current()}
		if err := h.enqueue(context.Background(), ev); err != nil {
			h.log.Debug("token rebroadcast dropped", logx.Err(err))
		}
	}()
}

// Close stops intake, waits for pending rebroadcasts and closes the stream.
// It is idempotent.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		// Unblock waiting senders first, then wait for every shared holder
		// to leave so no RequestToken can Add after Wait starts.
		close(h.done)
		h.mu.Lock()
		h.mu.Unlock()

		h.wg.Wait()

		h.mu.Lock()
		h.closed = true
		close(h.events)
		h.mu.Unlock()
	})
}
