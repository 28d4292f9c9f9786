// Package natsin feeds platform broadcasts published on a NATS subject into
// the platform hub.
package natsin

import (
	"context"
	"fmt"
	"strings"
	"time"

	natspkg "github.com/nats-io/nats.go"

	"pushbridge/internal/platform"
	"pushbridge/internal/push"
	logx "pushbridge/pkg/logx"
)

const DefaultSubject = "pushbridge.broadcast"

type Config struct {
	URL     string
	Subject string
	Name    string
}

// Publisher receives decoded platform events.
type Publisher interface {
	Publish(ctx context.Context, ev push.Event) error
}

type Client struct {
	nc      *natspkg.Conn
	sub     *natspkg.Subscription
	pub     Publisher
	log     logx.Logger
	timeout time.Duration
}

// Connect dials NATS and subscribes to the broadcast subject.
func Connect(cfg Config, pub Publisher, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("nats ingress: url is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Name == "" {
		cfg.Name = "pushbridge"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "natsin"), logx.String("subject", cfg.Subject))

	nc, err := natspkg.Connect(cfg.URL,
		natspkg.Name(cfg.Name),
		natspkg.MaxReconnects(-1),
		natspkg.DisconnectErrHandler(func(_ *natspkg.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		natspkg.ReconnectHandler(func(c *natspkg.Conn) {
			log.Info("nats reconnected", logx.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	c := &Client{nc: nc, pub: pub, log: log, timeout: 5 * time.Second}
	sub, err := nc.Subscribe(cfg.Subject, func(msg *natspkg.Msg) {
		_ = c.handle(msg.Data)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe %s: %w", cfg.Subject, err)
	}
	c.sub = sub
	log.Info("nats ingress subscribed")
	return c, nil
}

func (c *Client) handle(data []byte) error {
	b, err := platform.ParseBroadcast(data)
	if err != nil {
		c.log.Warn("malformed broadcast dropped", logx.Err(err))
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.pub.Publish(ctx, platform.Decode(b)); err != nil {
		c.log.Warn("broadcast not accepted", logx.String("action", b.Action), logx.Err(err))
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c != nil && c.nc != nil && c.nc.Status() == natspkg.CONNECTED
}

// Close drains the subscription and closes the connection.
func (c *Client) Close() {
	if c == nil || c.nc == nil {
		return
	}
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.nc.Close()
}
