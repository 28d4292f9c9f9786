// Package launch decides whether a launch/resume signal is a notification tap.
package launch

import (
	"pushbridge/internal/payload"
	"pushbridge/internal/push"
)

// IsClick reports whether sig carries the click sentinel, either as its
// action or as its click_action extra. Matching is exact and case-sensitive.
func IsClick(sig push.LaunchSignal) bool {
	return sig.Action == push.ClickSentinel || sig.EffectiveClickAction() == push.ClickSentinel
}

// Classify returns the normalized extras of a notification-tap signal.
//
// ok is false when the signal is not a click, and also when it is a click
// but carries no extras bundle: there is nothing to deliver in that case.
// A present but empty bundle yields an empty map and ok=true.
func Classify(sig push.LaunchSignal) (extras payload.Extras, ok bool) {
	if !IsClick(sig) {
		return nil, false
	}
	if sig.Extras == nil {
		return nil, false
	}
	return payload.NormalizeExtras(sig.Extras), true
}
