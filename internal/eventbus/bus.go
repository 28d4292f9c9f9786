package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by bridge components.
const (
	TypeDispatched      = "bridge.dispatched"
	TypeIgnored         = "bridge.ignored"
	TypeLaunchConsumed  = "bridge.launch_consumed"
	TypeConsumerAttach  = "consumer.attached"
	TypeConsumerDetach  = "consumer.detached"
	TypeConsumerDropped = "consumer.dropped"
	TypeTopicDone       = "topics.done"
	TypeTopicFailed     = "topics.failed"
	TypeTokenRequested  = "platform.token_requested"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//
// Events are observability signals only. Outbound consumer calls never go
// through the bus.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// CallInfo is the Data of TypeDispatched / TypeConsumerDropped events.
type CallInfo struct {
	Method string `json:"method"`
	ID     string `json:"id,omitempty"`
}

// TopicInfo is the Data of TypeTopicDone / TypeTopicFailed events.
type TopicInfo struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
	Error string `json:"error,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch; recover from send-on-closed.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish is a nil-safe helper for optional buses.
func Publish(b Bus, typ string, data any) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: typ, Time: time.Now(), Data: data})
}
