// Package payload converts platform-native message envelopes and launch
// extras into the uniform shapes sent to the consumer.
//
// Everything here is pure: no state, no I/O.
package payload

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"pushbridge/internal/push"
)

// Message is the normalized form of a push message.
//
// Encoded as {"data":{...},"notification":{"title":..,"body":..}}. The
// notification section is always present; missing values encode as null.
type Message struct {
	Data         map[string]string  `json:"data"`
	Notification NotificationFields `json:"notification"`
}

// NotificationFields is the fixed two-key notification section.
type NotificationFields struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
}

// Extras is the normalized form of a launch signal's extras bundle.
// JSON encoding of a Go map is key-sorted, so output is deterministic.
type Extras map[string]string

// Keys returns the keys in sorted order.
func (e Extras) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeMessage converts an envelope into a Message.
//
// An absent notification section yields {title:null, body:null}; it is never
// omitted. A nil data section becomes an empty map.
func NormalizeMessage(env push.Envelope) Message {
	data := make(map[string]string, len(env.Data))
	for k, v := range env.Data {
		data[k] = v
	}

	var nf NotificationFields
	if n := env.Notification; n != nil {
		nf.Title = copyString(n.Title)
		nf.Body = copyString(n.Body)
	}
	return Message{Data: data, Notification: nf}
}

// NormalizeExtras stringifies every non-nil value of an extras bundle.
//
// Keys whose value is nil are dropped entirely: they are not emitted as an
// empty string or a null marker. Consumers rely on this, so a "cleared" value
// sent as null is indistinguishable from an absent one.
//
// A nil bundle yields nil.
func NormalizeExtras(extras map[string]any) Extras {
	if extras == nil {
		return nil
	}
	out := make(Extras, len(extras))
	for k, v := range extras {
		if isNil(v) {
			continue
		}
		out[k] = Stringify(v)
	}
	return out
}

// Stringify renders an extras value as text.
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}
