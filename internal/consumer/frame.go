// Package consumer is the ordered, bidirectional link to the single
// application-side consumer.
//
// Outbound calls and control responses share one queue and one writer, so
// the consumer observes them in the order the bridge produced them.
package consumer

import (
	"encoding/json"
	"errors"
)

const (
	KindCall     = "call"
	KindRequest  = "request"
	KindResponse = "response"
)

var (
	ErrBusy           = errors.New("consumer already attached")
	ErrClosed         = errors.New("consumer channel closed")
	ErrMalformedFrame = errors.New("malformed frame")
)

// Frame is one message on the link, in either direction.
//
//	{"kind":"call","id":"…","method":"onMessage","payload":{…}}
//	{"kind":"request","id":"7","method":"configure","payload":null}
//	{"kind":"response","id":"7","status":"ok","payload":true}
type Frame struct {
	Kind    string          `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Status  string          `json:"status,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Conn carries frames to and from one consumer.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteFrame(f Frame) error
	Close() error
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, errors.Join(ErrMalformedFrame, err)
	}
	if f.Kind == "" {
		return Frame{}, errors.Join(ErrMalformedFrame, errors.New("missing kind"))
	}
	return f, nil
}
