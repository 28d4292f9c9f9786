package push

// ClickSentinel marks a launch/resume signal as coming from a tap on a
// rendered notification. The notification-rendering layer stamps this exact
// value; it is a wire constant.
const ClickSentinel = "FLUTTER_NOTIFICATION_CLICK"

// ClickActionExtra is the extras key that may carry the click sentinel.
const ClickActionExtra = "click_action"

// LaunchSignal describes why the application was started or brought forward.
//
// A nil Extras means the bundle is absent; an empty non-nil map means the
// bundle is present but carries nothing.
type LaunchSignal struct {
	// ID identifies this signal instance (assigned by ingress).
	ID          string         `json:"id,omitempty"`
	Action      string         `json:"action,omitempty"`
	ClickAction string         `json:"click_action,omitempty"`
	Extras      map[string]any `json:"extras"`
}

// EffectiveClickAction returns ClickAction, or the string value stored under
// "click_action" in Extras when ClickAction is empty.
func (s LaunchSignal) EffectiveClickAction() string {
	if s.ClickAction != "" {
		return s.ClickAction
	}
	if v, ok := s.Extras[ClickActionExtra].(string); ok {
		return v
	}
	return ""
}
