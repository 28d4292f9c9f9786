// Package host tracks the launch signal the application is currently
// running under.
package host

import (
	"sync"

	"pushbridge/internal/push"
	logx "pushbridge/pkg/logx"
)

// Launcher is the part of the bridge the tracker drives on resume.
type Launcher interface {
	OnAppLaunchOrResume(sig push.LaunchSignal, isFreshLaunch bool) bool
}

// Tracker holds the current launch signal.
type Tracker struct {
	launcher Launcher
	log      logx.Logger

	mu      sync.Mutex
	current *push.LaunchSignal
}

func NewTracker(l Launcher, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{launcher: l, log: log}
}

// SetLaunch records the signal the process was started with. Nothing is
// emitted until the consumer configures.
func (t *Tracker) SetLaunch(sig push.LaunchSignal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := sig
	t.current = &s
	t.log.Debug("launch recorded", logx.String("id", sig.ID), logx.String("action", sig.Action))
}

// OnNewLaunch handles a signal delivered while running. A consumed signal
// becomes the current one.
func (t *Tracker) OnNewLaunch(sig push.LaunchSignal) bool {
	if t.launcher == nil || !t.launcher.OnAppLaunchOrResume(sig, false) {
		return false
	}
	t.mu.Lock()
	s := sig
	t.current = &s
	t.mu.Unlock()
	return true
}

func (t *Tracker) CurrentLaunch() (push.LaunchSignal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return push.LaunchSignal{}, false
	}
	return *t.current, true
}
