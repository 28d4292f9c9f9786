package push

// Method is an outbound call name understood by the consumer.
type Method string

const (
	MethodToken   Method = "onToken"
	MethodMessage Method = "onMessage"
	MethodLaunch  Method = "onLaunch"
	MethodResume  Method = "onResume"
)

// Methods lists every outbound method, in a stable order.
var Methods = []Method{MethodToken, MethodMessage, MethodLaunch, MethodResume}

func (m Method) String() string { return string(m) }

// Valid reports whether m is one of the known outbound methods.
func (m Method) Valid() bool {
	switch m {
	case MethodToken, MethodMessage, MethodLaunch, MethodResume:
		return true
	default:
		return false
	}
}
