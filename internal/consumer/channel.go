package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"

	"pushbridge/internal/control"
	"pushbridge/internal/eventbus"
	"pushbridge/internal/metrics"
	"pushbridge/internal/push"
	logx "pushbridge/pkg/logx"
)

// Handler answers control requests read from the consumer.
type Handler interface {
	Handle(ctx context.Context, req control.Request) control.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req control.Request) control.Response

func (f HandlerFunc) Handle(ctx context.Context, req control.Request) control.Response {
	return f(ctx, req)
}

type Option func(*Channel)

func WithLogger(log logx.Logger) Option { return func(c *Channel) { c.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(c *Channel) { c.bus = bus } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Channel) { c.metrics = m } }

// WithQueueSize bounds the outbound queue. Calls beyond it are dropped.
func WithQueueSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// Channel is the single ordered outbound path to the consumer. It
// implements bridge.Outbound.
type Channel struct {
	log       logx.Logger
	bus       eventbus.Bus
	metrics   *metrics.Metrics
	handler   Handler
	queueSize int

	queue chan Frame
	done  chan struct{}

	mu        sync.Mutex
	conn      Conn
	ready     chan struct{} // closed on the next Attach
	closed    bool
	closeOnce sync.Once
}

func NewChannel(h Handler, opts ...Option) *Channel {
	c := &Channel{handler: h, queueSize: 256}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	c.log = c.log.With(logx.String("comp", "consumer"))
	c.queue = make(chan Frame, c.queueSize)
	c.done = make(chan struct{})
	c.ready = make(chan struct{})
	return c
}

// Invoke enqueues an outbound call without waiting for delivery. A full
// queue or an unencodable payload drops the call.
func (c *Channel) Invoke(method push.Method, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("outbound payload not encodable", logx.String("method", method.String()), logx.Err(err))
		c.drop(method.String(), "")
		return
	}
	f := Frame{Kind: KindCall, ID: uuid.NewString(), Method: method.String(), Payload: raw}
	if c.isClosed() {
		c.drop(f.Method, f.ID)
		return
	}
	select {
	case c.queue <- f:
	default:
		c.log.Warn("outbound queue full, call dropped", logx.String("method", f.Method), logx.String("id", f.ID))
		c.drop(f.Method, f.ID)
	}
}

func (c *Channel) drop(method, id string) {
	c.metrics.IncDropped(method)
	eventbus.Publish(c.bus, eventbus.TypeConsumerDropped, eventbus.CallInfo{Method: method, ID: id})
}

// Run is the single writer. It delivers queued frames in order to the
// attached consumer, waiting while none is attached, until ctx ends.
func (c *Channel) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case f := <-c.queue:
			if err := c.deliver(ctx, f); err != nil {
				return err
			}
		}
	}
}

func (c *Channel) deliver(ctx context.Context, f Frame) error {
	for {
		conn, ready := c.current()
		if conn == nil {
			select {
			case <-ready:
				continue
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return nil
			}
		}
		if err := conn.WriteFrame(f); err != nil {
			c.log.Warn("consumer write failed", logx.String("kind", f.Kind), logx.String("method", f.Method), logx.Err(err))
			if f.Kind == KindCall {
				c.drop(f.Method, f.ID)
			}
			c.detach(conn)
			return nil
		}
		if f.Kind == KindCall {
			c.metrics.IncOutbound(f.Method)
		}
		return nil
	}
}

func (c *Channel) current() (Conn, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.ready
}

// Attached reports whether a consumer is currently attached.
func (c *Channel) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Attach makes conn the consumer. Only one consumer may be attached.
func (c *Channel) Attach(conn Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return ErrBusy
	}
	c.conn = conn
	close(c.ready)
	c.ready = make(chan struct{})
	c.log.Info("consumer attached")
	eventbus.Publish(c.bus, eventbus.TypeConsumerAttach, nil)
	return nil
}

func (c *Channel) detach(conn Conn) {
	c.mu.Lock()
	was := c.conn == conn
	if was {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
	if was {
		c.log.Info("consumer detached")
		eventbus.Publish(c.bus, eventbus.TypeConsumerDetach, nil)
	}
}

// Serve attaches conn and handles its requests until the conn fails or ctx
// ends. The conn is detached and closed on return. A clean end of input
// returns nil.
func (c *Channel) Serve(ctx context.Context, conn Conn) error {
	if err := c.Attach(conn); err != nil {
		return err
	}
	defer c.detach(conn)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-c.done:
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				c.log.Warn("malformed frame ignored", logx.Err(err))
				continue
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil || c.isClosed() {
				return nil
			}
			return err
		}
		c.handle(ctx, f)
	}
}

func (c *Channel) handle(ctx context.Context, f Frame) {
	if f.Kind != KindRequest {
		c.log.Debug("unexpected frame ignored", logx.String("kind", f.Kind))
		return
	}
	resp := control.Response{Status: control.StatusNotImplemented}
	if c.handler != nil {
		resp = c.handler.Handle(ctx, control.Request{Method: f.Method, Args: f.Payload})
	}
	out := Frame{Kind: KindResponse, ID: f.ID, Status: string(resp.Status), Error: resp.Error}
	if resp.Status == control.StatusOK {
		raw, err := json.Marshal(resp.Result)
		if err != nil {
			out.Status, out.Error = string(control.StatusError), err.Error()
		} else {
			out.Payload = raw
		}
	}

	// Responses are never dropped: wait for queue space.
	select {
	case c.queue <- out:
	case <-ctx.Done():
	case <-c.done:
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops the writer and detaches the consumer. Queued frames are
// discarded.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.mu.Unlock()
		close(c.done)
		if conn != nil {
			c.detach(conn)
		}
	})
}
