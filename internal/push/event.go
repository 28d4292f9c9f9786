// Package push holds the bridge's domain vocabulary: platform events, the
// message envelope, launch signals and the outbound method names.
package push

// Broadcast actions used on the multiplexed platform stream. They match the
// intent actions the messaging service stamps on its local broadcasts.
const (
	ActionToken         = "io.flutter.plugins.firebasemessaging.TOKEN"
	ActionRemoteMessage = "io.flutter.plugins.firebasemessaging.NOTIFICATION"
)

// Event is a platform notification event. The set of variants is closed:
// TokenRefreshed, MessageReceived and Unrecognized.
type Event interface {
	// Kind is a short label used for logs and metrics.
	Kind() string
	isEvent()
}

// TokenRefreshed carries a (re)issued registration token.
// A nil Token means the token was cleared and is forwarded as null.
type TokenRefreshed struct {
	Token *string
}

// MessageReceived carries a push message as delivered by the platform.
type MessageReceived struct {
	Envelope Envelope
}

// Unrecognized is a broadcast whose action the bridge does not handle.
// The platform shares the stream with unrelated signals; these are dropped.
type Unrecognized struct {
	Action string
}

func (TokenRefreshed) Kind() string  { return "token" }
func (MessageReceived) Kind() string { return "message" }
func (Unrecognized) Kind() string    { return "unrecognized" }

func (TokenRefreshed) isEvent()  {}
func (MessageReceived) isEvent() {}
func (Unrecognized) isEvent()    {}

// Envelope is a received push message: a data section plus optional
// notification metadata.
type Envelope struct {
	Data         map[string]string `json:"data,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
}

// Notification is the display part of a push message.
type Notification struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
