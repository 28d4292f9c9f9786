package control

import "encoding/json"

// RequestKind is the closed set of control requests the consumer may issue.
type RequestKind int

const (
	RequestUnknown RequestKind = iota
	RequestConfigure
	RequestSubscribe
	RequestUnsubscribe
	RequestIsCallReceiver
)

var requestNames = map[RequestKind]string{
	RequestConfigure:      "configure",
	RequestSubscribe:      "subscribeToTopic",
	RequestUnsubscribe:    "unsubscribeFromTopic",
	RequestIsCallReceiver: "isCallReceiver",
}

// ParseRequestKind maps a wire method name to its kind. Names are matched
// exactly.
func ParseRequestKind(method string) RequestKind {
	for k, name := range requestNames {
		if name == method {
			return k
		}
	}
	return RequestUnknown
}

// String returns the wire name, or "unknown".
func (k RequestKind) String() string {
	if name, ok := requestNames[k]; ok {
		return name
	}
	return "unknown"
}

type Status string

const (
	StatusOK             Status = "ok"
	StatusError          Status = "error"
	StatusNotImplemented Status = "not_implemented"
)

// Request is one inbound control request. Args is the raw JSON argument,
// empty when the consumer sent none.
type Request struct {
	Method string
	Args   json.RawMessage
}

type Response struct {
	Status Status
	Result any
	Error  string
}

func ok(result any) Response { return Response{Status: StatusOK, Result: result} }

func failed(msg string) Response { return Response{Status: StatusError, Error: msg} }
