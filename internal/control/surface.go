// Package control answers the consumer's inbound requests: configure, topic
// subscription, and the call-receiver flag query.
package control

import (
	"context"
	"encoding/json"
	"sync"

	"pushbridge/internal/metrics"
	"pushbridge/internal/push"
	"pushbridge/internal/storage"
	logx "pushbridge/pkg/logx"
)

// Default location of the call-receiver flag.
const (
	DefaultFlagNamespace = "Interfone"
	DefaultFlagKey       = "INTERFONE_LIGACAO"
)

// TokenBroadcaster asks the platform to rebroadcast its current token.
// RequestToken must not block.
type TokenBroadcaster interface {
	RequestToken()
}

type LaunchHost interface {
	CurrentLaunch() (push.LaunchSignal, bool)
}

type LaunchBridge interface {
	OnAppLaunchOrResume(sig push.LaunchSignal, isFreshLaunch bool) bool
	Consumed(sig push.LaunchSignal) bool
}

// TopicPlane is the fire-and-forget topic control plane.
type TopicPlane interface {
	Subscribe(topic string)
	Unsubscribe(topic string)
}

type FlagLocation struct {
	Namespace string
	Key       string
}

type Deps struct {
	Tokens  TokenBroadcaster
	Host    LaunchHost
	Bridge  LaunchBridge
	Topics  TopicPlane
	Store   storage.Store
	Log     logx.Logger
	Metrics *metrics.Metrics
}

type Surface struct {
	tokens  TokenBroadcaster
	host    LaunchHost
	bridge  LaunchBridge
	topics  TopicPlane
	store   storage.Store
	log     logx.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	flag FlagLocation
}

func New(d Deps) *Surface {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Surface{
		tokens:  d.Tokens,
		host:    d.Host,
		bridge:  d.Bridge,
		topics:  d.Topics,
		store:   d.Store,
		log:     log.With(logx.String("comp", "control")),
		metrics: d.Metrics,
		flag:    FlagLocation{Namespace: DefaultFlagNamespace, Key: DefaultFlagKey},
	}
}

// SetFlagLocation moves the call-receiver flag. Empty fields keep defaults.
func (s *Surface) SetFlagLocation(loc FlagLocation) {
	if loc.Namespace == "" {
		loc.Namespace = DefaultFlagNamespace
	}
	if loc.Key == "" {
		loc.Key = DefaultFlagKey
	}
	s.mu.Lock()
	s.flag = loc
	s.mu.Unlock()
}

func (s *Surface) FlagLocation() FlagLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flag
}

// Handle answers one request. It never fails: problems are reported in the
// response status.
func (s *Surface) Handle(ctx context.Context, req Request) Response {
	kind := ParseRequestKind(req.Method)
	var resp Response
	switch kind {
	case RequestConfigure:
		resp = s.configure()
	case RequestSubscribe, RequestUnsubscribe:
		resp = s.topic(kind, req.Args)
	case RequestIsCallReceiver:
		loc := s.FlagLocation()
		resp = ok(s.QueryFlag(ctx, loc.Namespace, loc.Key))
	default:
		s.log.Debug("unknown request", logx.String("method", req.Method))
		resp = Response{Status: StatusNotImplemented}
	}
	s.metrics.IncControl(kind.String(), string(resp.Status))
	return resp
}

// configure rebroadcasts the token and replays a pending tap launch.
func (s *Surface) configure() Response {
	if s.tokens != nil {
		s.tokens.RequestToken()
	}
	if s.host == nil || s.bridge == nil {
		return ok(nil)
	}
	sig, present := s.host.CurrentLaunch()
	if present && !s.bridge.Consumed(sig) {
		s.bridge.OnAppLaunchOrResume(sig, true)
	}
	return ok(nil)
}

func (s *Surface) topic(kind RequestKind, args json.RawMessage) Response {
	var name *string
	if len(args) == 0 || json.Unmarshal(args, &name) != nil || name == nil {
		return failed("topic must be a string")
	}
	topic := *name
	if s.topics == nil {
		s.log.Warn("topic plane disabled", logx.String("request", kind.String()), logx.String("topic", topic))
		return ok(nil)
	}
	if kind == RequestSubscribe {
		s.topics.Subscribe(topic)
	} else {
		s.topics.Unsubscribe(topic)
	}
	return ok(nil)
}

// QueryFlag reads a boolean setting. Unset keys, a missing store and store
// errors all read as false.
func (s *Surface) QueryFlag(ctx context.Context, namespace, key string) bool {
	v, err := storage.Bool(ctx, s.store, namespace, key)
	if err != nil {
		s.log.Warn("flag read failed", logx.String("namespace", namespace), logx.String("key", key), logx.Err(err))
		return false
	}
	return v
}
