// Package topics is the platform-side topic control plane: it subscribes and
// unsubscribes the device's registration token to messaging topics.
//
// Calls are fire-and-forget. Subscribe and Unsubscribe enqueue a job and
// return; workers drain the queue through a rate limiter. Failures are logged,
// counted and published on the bus. Nothing is retried.
package topics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"pushbridge/internal/eventbus"
	"pushbridge/internal/metrics"
	"pushbridge/internal/runtime/supervisor"
	logx "pushbridge/pkg/logx"
)

const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

var (
	ErrQueueFull    = errors.New("topic queue full")
	ErrInvalidTopic = errors.New("invalid topic name")
	ErrNoToken      = errors.New("no registration token")
)

var topicPattern = regexp.MustCompile(`^[a-zA-Z0-9_.~%-]+$`)

// ValidTopic reports whether name is an acceptable topic name.
func ValidTopic(name string) bool { return topicPattern.MatchString(name) }

type Config struct {
	Endpoint   string
	ServerKey  string
	Workers    int
	QueueSize  int
	RatePerSec int
	Timeout    time.Duration
}

// TokenSource yields the current registration token, nil when none.
type TokenSource interface {
	Current() *string
}

type job struct {
	op    string
	topic string
}

type Client struct {
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
	tokens  TokenSource

	mu      sync.Mutex
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	queue     chan job
	startOnce sync.Once
}

func New(cfg Config, tokens TokenSource, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = withDefaults(cfg)
	c := &Client{
		log:     log.With(logx.String("comp", "topics")),
		bus:     bus,
		metrics: m,
		tokens:  tokens,
		queue:   make(chan job, cfg.QueueSize),
	}
	c.apply(cfg)
	return c
}

func withDefaults(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return cfg
}

// Apply swaps endpoint, credentials and rate limit. Worker count and queue
// size are fixed at construction.
func (c *Client) Apply(cfg Config) {
	c.apply(withDefaults(cfg))
}

func (c *Client) apply(cfg Config) {
	var hc *http.Client
	if cfg.ServerKey != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.ServerKey, TokenType: "Bearer"})
		hc = oauth2.NewClient(context.Background(), ts)
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = cfg.Timeout

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.http = hc
	c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the worker pool under sup. Subsequent calls are no-ops.
func (c *Client) Start(sup *supervisor.Supervisor) {
	c.startOnce.Do(func() {
		c.mu.Lock()
		n := c.cfg.Workers
		c.mu.Unlock()
		for i := 0; i < n; i++ {
			sup.Go0(fmt.Sprintf("topics.worker.%d", i), c.worker)
		}
		c.log.Debug("topic workers started", logx.Int("workers", n))
	})
}

func (c *Client) Subscribe(topic string) { c.enqueue(OpSubscribe, topic) }

func (c *Client) Unsubscribe(topic string) { c.enqueue(OpUnsubscribe, topic) }

func (c *Client) enqueue(op, topic string) {
	if !ValidTopic(topic) {
		c.fail(op, topic, ErrInvalidTopic)
		return
	}
	select {
	case c.queue <- job{op: op, topic: topic}:
	default:
		c.fail(op, topic, ErrQueueFull)
	}
}

func (c *Client) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-c.queue:
			if err := c.exec(ctx, j); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				c.fail(j.op, j.topic, err)
				continue
			}
			c.metrics.IncTopic(j.op, "ok")
			eventbus.Publish(c.bus, eventbus.TypeTopicDone, eventbus.TopicInfo{Op: j.op, Topic: j.topic})
			c.log.Info("topic updated", logx.String("op", j.op), logx.String("topic", j.topic))
		}
	}
}

type batchRequest struct {
	To                 string   `json:"to"`
	RegistrationTokens []string `json:"registration_tokens"`
}

func (c *Client) exec(ctx context.Context, j job) error {
	var token *string
	if c.tokens != nil {
		token = c.tokens.Current()
	}
	if token == nil || *token == "" {
		return ErrNoToken
	}

	c.mu.Lock()
	lim, hc, endpoint := c.limiter, c.http, c.cfg.Endpoint
	c.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return err
	}

	path := "/iid/v1:batchAdd"
	if j.op == OpUnsubscribe {
		path = "/iid/v1:batchRemove"
	}
	body, err := json.Marshal(batchRequest{To: "/topics/" + j.topic, RegistrationTokens: []string{*token}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", j.op, j.topic, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", j.op, j.topic, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) fail(op, topic string, err error) {
	c.metrics.IncTopic(op, "error")
	eventbus.Publish(c.bus, eventbus.TypeTopicFailed, eventbus.TopicInfo{Op: op, Topic: topic, Error: err.Error()})
	c.log.Warn("topic update failed", logx.String("op", op), logx.String("topic", topic), logx.Err(err))
}
