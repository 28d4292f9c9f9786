package platform

import (
	"bytes"
	"encoding/json"
	"fmt"

	"pushbridge/internal/push"
)

// Broadcast is the raw shape of a platform broadcast as it arrives on the
// wire (HTTP body or NATS message).
//
//	{"action":"io.flutter.plugins.firebasemessaging.TOKEN","token":"..."}
//	{"action":"io.flutter.plugins.firebasemessaging.NOTIFICATION","message":{"data":{...},"notification":{...}}}
type Broadcast struct {
	Action  string         `json:"action"`
	Token   *string        `json:"token,omitempty"`
	Message *push.Envelope `json:"message,omitempty"`
}

// Decode maps a broadcast to its event. Unknown actions become
// push.Unrecognized; a message broadcast without a message body carries an
// empty envelope.
func Decode(b Broadcast) push.Event {
	switch b.Action {
	case push.ActionToken:
		return push.TokenRefreshed{Token: b.Token}
	case push.ActionRemoteMessage:
		var env push.Envelope
		if b.Message != nil {
			env = *b.Message
		}
		return push.MessageReceived{Envelope: env}
	default:
		return push.Unrecognized{Action: b.Action}
	}
}

// ParseBroadcast decodes a JSON broadcast body.
func ParseBroadcast(data []byte) (Broadcast, error) {
	var b Broadcast
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&b); err != nil {
		return Broadcast{}, fmt.Errorf("decode broadcast: %w", err)
	}
	return b, nil
}
