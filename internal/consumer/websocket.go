package consumer

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	logx "pushbridge/pkg/logx"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WSConn carries one frame per websocket text message.
type WSConn struct {
	ws *websocket.Conn

	wmu       sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewWSConn(ws *websocket.Conn) *WSConn {
	ws.SetReadLimit(maxLine)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	c := &WSConn{ws: ws, done: make(chan struct{})}
	go c.keepalive()
	return c
}

func (c *WSConn) keepalive() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.wmu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *WSConn) ReadFrame() (Frame, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		return decodeFrame(data)
	}
}

func (c *WSConn) WriteFrame(f Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(f)
}

func (c *WSConn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *WSConn) closeWith(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// WSAcceptor upgrades HTTP requests to websocket consumer links.
type WSAcceptor struct {
	ch       *Channel
	log      logx.Logger
	upgrader websocket.Upgrader
}

func NewWSAcceptor(ch *Channel, log logx.Logger) *WSAcceptor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &WSAcceptor{
		ch:  ch,
		log: log.With(logx.String("comp", "consumer.ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The link is meant for a local consumer, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (a *WSAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.ch.Attached() {
		http.Error(w, ErrBusy.Error(), http.StatusConflict)
		return
	}
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket upgrade failed", logx.Err(err))
		return
	}
	conn := NewWSConn(ws)
	err = a.ch.Serve(r.Context(), conn)
	switch {
	case errors.Is(err, ErrBusy):
		// Lost the race with another consumer.
		_ = conn.closeWith(websocket.ClosePolicyViolation, ErrBusy.Error())
	case err != nil:
		a.log.Debug("websocket consumer gone", logx.Err(err))
	}
}
